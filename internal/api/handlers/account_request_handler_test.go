package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Marga-Ghale/hdss-admin-backend/internal/models"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/repository"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/service"
)

type fakeAccountRequests struct {
	submitted service.SubmitInput
	submitErr error
	rows      map[int64]*repository.AccountRequest
	listErr   error
}

func (f *fakeAccountRequests) Submit(_ context.Context, in service.SubmitInput) (*repository.AccountRequest, error) {
	f.submitted = in
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &repository.AccountRequest{ID: 7, FullName: in.FullName, Email: in.Email, Status: "pending", CreatedAt: time.Now()}, nil
}

func (f *fakeAccountRequests) Get(_ context.Context, id int64) (*repository.AccountRequest, error) {
	if r, ok := f.rows[id]; ok {
		return r, nil
	}
	return nil, service.ErrRequestNotFound
}

func (f *fakeAccountRequests) List(_ context.Context, status string, limit, offset int) ([]*repository.AccountRequest, int, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	var out []*repository.AccountRequest
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, len(out), nil
}

type fakeApprovals struct {
	approveInput service.ApproveInput
	approveErr   error
	replayed     bool
	rejectInput  service.RejectInput
	rejectErr    error
}

func (f *fakeApprovals) Approve(_ context.Context, in service.ApproveInput) (*service.ApprovalResult, error) {
	f.approveInput = in
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	site := int64(900)
	return &service.ApprovalResult{
		SagaID:           "saga-1",
		RequestID:        in.RequestID,
		IdentityID:       "uid-1",
		ProfileID:        500,
		MembershipID:     &site,
		NotificationSent: true,
		Replayed:         f.replayed,
	}, nil
}

func (f *fakeApprovals) Reject(_ context.Context, in service.RejectInput) (*service.RejectionResult, error) {
	f.rejectInput = in
	if f.rejectErr != nil {
		return nil, f.rejectErr
	}
	return &service.RejectionResult{RequestID: in.RequestID, NotificationSent: false}, nil
}

func setupRouter(requests *fakeAccountRequests, approvals *fakeApprovals) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(&service.Services{AccountRequest: requests, Approval: approvals}, "admin", zap.NewNop())

	r := gin.New()
	r.POST("/api/account-requests", h.AccountRequest.Submit)
	admin := r.Group("/api/admin")
	admin.GET("/account-requests", h.AccountRequest.List)
	admin.GET("/account-requests/:id", h.AccountRequest.Get)
	admin.POST("/account-requests/:id/approve", h.AccountRequest.Approve)
	admin.POST("/account-requests/:id/reject", h.AccountRequest.Reject)
	admin.POST("/passwords", h.Password.Generate)
	return r
}

func do(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmit(t *testing.T) {
	requests := &fakeAccountRequests{}
	r := setupRouter(requests, &fakeApprovals{})

	w := do(r, http.MethodPost, "/api/account-requests", `{"fullName":"A B","email":"a@b.com","requestedSiteId":7}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp models.AccountRequestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.ID)
	assert.Equal(t, "pending", resp.Status)
	require.NotNil(t, requests.submitted.RequestedSiteID)
	assert.Equal(t, int64(7), *requests.submitted.RequestedSiteID)
}

func TestSubmit_Validation(t *testing.T) {
	r := setupRouter(&fakeAccountRequests{}, &fakeApprovals{})

	w := do(r, http.MethodPost, "/api/account-requests", `{"fullName":"A B","email":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r = setupRouter(&fakeAccountRequests{submitErr: service.ErrInvalidInput}, &fakeApprovals{})
	w = do(r, http.MethodPost, "/api/account-requests", `{"fullName":"A B","email":"a@b.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndGet(t *testing.T) {
	requests := &fakeAccountRequests{rows: map[int64]*repository.AccountRequest{
		42: {ID: 42, FullName: "A B", Email: "a@b.com", Status: "pending"},
	}}
	r := setupRouter(requests, &fakeApprovals{})

	w := do(r, http.MethodGet, "/api/admin/account-requests?status=pending", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list models.AccountRequestListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 50, list.Limit)

	w = do(r, http.MethodGet, "/api/admin/account-requests/42", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/admin/account-requests/43", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/admin/account-requests/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	requests.listErr = service.ErrInvalidInput
	w = do(r, http.MethodGet, "/api/admin/account-requests?status=archived", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApprove_WithPassword(t *testing.T) {
	approvals := &fakeApprovals{}
	r := setupRouter(&fakeAccountRequests{}, approvals)

	w := do(r, http.MethodPost, "/api/admin/account-requests/42/approve", `{"password":"Tmp#Pass123","idempotencyKey":"body-key"}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, int64(42), approvals.approveInput.RequestID)
	assert.Equal(t, "Tmp#Pass123", approvals.approveInput.Password)
	assert.Equal(t, "body-key", approvals.approveInput.IdempotencyKey)
	assert.Equal(t, "admin", approvals.approveInput.ReviewerID)

	var resp models.ApprovalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "approved", resp.Status)
	assert.True(t, resp.NotificationSent)
	assert.Empty(t, resp.GeneratedPassword)
}

func TestApprove_GeneratesPasswordAndReadsHeaderKey(t *testing.T) {
	approvals := &fakeApprovals{}
	r := setupRouter(&fakeAccountRequests{}, approvals)

	w := do(r, http.MethodPost, "/api/admin/account-requests/42/approve", "", "Idempotency-Key", "header-key")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "header-key", approvals.approveInput.IdempotencyKey)
	assert.Len(t, approvals.approveInput.Password, 12)

	var resp models.ApprovalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, approvals.approveInput.Password, resp.GeneratedPassword)
}

func TestApprove_ReplayHidesGeneratedPassword(t *testing.T) {
	r := setupRouter(&fakeAccountRequests{}, &fakeApprovals{replayed: true})

	w := do(r, http.MethodPost, "/api/admin/account-requests/42/approve", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.ApprovalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Replayed)
	assert.Empty(t, resp.GeneratedPassword)
}

func TestApprove_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", service.ErrRequestNotFound, http.StatusNotFound},
		{"not pending", service.ErrRequestNotPending, http.StatusConflict},
		{"in progress", service.ErrApprovalInProgress, http.StatusConflict},
		{"key reused", service.ErrIdempotencyKeyReused, http.StatusConflict},
		{"rolled back", service.ErrApprovalAbandoned, http.StatusConflict},
		{"unexpected", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(&fakeAccountRequests{}, &fakeApprovals{approveErr: tt.err})
			w := do(r, http.MethodPost, "/api/admin/account-requests/1/approve", "")
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestApprove_StepFailureRendersProviderMessage(t *testing.T) {
	stepErr := &service.ApprovalError{
		Kind: service.ErrIdentityCreationFailed,
		Err:  errors.New("A user with this email address has already been registered"),
	}
	r := setupRouter(&fakeAccountRequests{}, &fakeApprovals{approveErr: stepErr})

	w := do(r, http.MethodPost, "/api/admin/account-requests/1/approve", `{"password":"Tmp#Pass123"}`)
	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp models.ApprovalErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "identity", resp.Step)
	assert.Equal(t, "identity creation failed", resp.Error)
	assert.Equal(t, "A user with this email address has already been registered", resp.Message)
}

func TestApprove_InvalidBody(t *testing.T) {
	r := setupRouter(&fakeAccountRequests{}, &fakeApprovals{})

	w := do(r, http.MethodPost, "/api/admin/account-requests/1/approve", `{"password":"123"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/admin/account-requests/1/approve", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReject(t *testing.T) {
	approvals := &fakeApprovals{}
	r := setupRouter(&fakeAccountRequests{}, approvals)

	w := do(r, http.MethodPost, "/api/admin/account-requests/42/reject", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(42), approvals.rejectInput.RequestID)
	assert.Equal(t, "admin", approvals.rejectInput.ReviewerID)

	var resp models.RejectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rejected", resp.Status)
	assert.False(t, resp.NotificationSent)

	r = setupRouter(&fakeAccountRequests{}, &fakeApprovals{rejectErr: service.ErrRequestNotPending})
	w = do(r, http.MethodPost, "/api/admin/account-requests/42/reject", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGeneratePassword(t *testing.T) {
	r := setupRouter(&fakeAccountRequests{}, &fakeApprovals{})

	w := do(r, http.MethodPost, "/api/admin/passwords", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var resp models.GeneratedPasswordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Password, 12)
}
