package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Marga-Ghale/hdss-admin-backend/internal/api/middleware"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/models"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/repository"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/service"
)

// ============================================
// Account Request Handler
// ============================================

type AccountRequestHandler struct {
	accountRequestService service.AccountRequestService
	approvalService       service.ApprovalService
	reviewerID            string
	logger                *zap.Logger
}

func parseRequestID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid account request id"})
		return 0, false
	}
	return id, true
}

// Submit is the public endpoint applicants use to ask for an account.
func (h *AccountRequestHandler) Submit(c *gin.Context) {
	var req models.SubmitAccountRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.accountRequestService.Submit(c.Request.Context(), service.SubmitInput{
		FullName:        req.FullName,
		Email:           req.Email,
		PhoneNumber:     req.PhoneNumber,
		RequestedRoleID: req.RequestedRoleID,
		RequestedSiteID: req.RequestedSiteID,
		Reason:          req.Reason,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Full name and a valid email are required"})
			return
		}
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to submit account request"})
		return
	}

	c.JSON(http.StatusCreated, toAccountRequestResponse(created))
}

func (h *AccountRequestHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	status := c.Query("status")

	requests, total, err := h.accountRequestService.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter"})
			return
		}
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch account requests"})
		return
	}

	items := make([]models.AccountRequestResponse, len(requests))
	for i, r := range requests {
		items[i] = toAccountRequestResponse(r)
	}

	c.JSON(http.StatusOK, models.AccountRequestListResponse{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (h *AccountRequestHandler) Get(c *gin.Context) {
	id, ok := parseRequestID(c)
	if !ok {
		return
	}

	req, err := h.accountRequestService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account request not found"})
			return
		}
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch account request"})
		return
	}

	c.JSON(http.StatusOK, toAccountRequestResponse(req))
}

// Approve runs the account approval saga. Without a password in the body one
// is generated and returned so the admin can pass it on.
func (h *AccountRequestHandler) Approve(c *gin.Context) {
	id, ok := parseRequestID(c)
	if !ok {
		return
	}

	// The body is optional.
	var req models.ApproveAccountRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := req.IdempotencyKey
	if header := c.GetHeader("Idempotency-Key"); header != "" {
		key = header
	}

	password := req.Password
	generated := ""
	if password == "" {
		var err error
		if generated, err = service.GeneratePassword(); err != nil {
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate password"})
			return
		}
		password = generated
	}

	h.logger.Info("approving account request",
		zap.Int64("request_id", id),
		zap.String("operator", middleware.GetUserID(c)),
	)

	result, err := h.approvalService.Approve(c.Request.Context(), service.ApproveInput{
		RequestID:      id,
		Password:       password,
		IdempotencyKey: key,
		ReviewerID:     h.reviewerID,
	})
	if err != nil {
		writeApprovalError(c, err)
		return
	}

	resp := models.ApprovalResponse{
		RequestID:        result.RequestID,
		Status:           repository.AccountRequestStatusApproved,
		SagaID:           result.SagaID,
		IdentityID:       result.IdentityID,
		ProfileID:        result.ProfileID,
		MembershipID:     result.MembershipID,
		NotificationSent: result.NotificationSent,
		Replayed:         result.Replayed,
	}
	if !result.Replayed {
		resp.GeneratedPassword = generated
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AccountRequestHandler) Reject(c *gin.Context) {
	id, ok := parseRequestID(c)
	if !ok {
		return
	}

	h.logger.Info("rejecting account request",
		zap.Int64("request_id", id),
		zap.String("operator", middleware.GetUserID(c)),
	)

	result, err := h.approvalService.Reject(c.Request.Context(), service.RejectInput{
		RequestID:  id,
		ReviewerID: h.reviewerID,
	})
	if err != nil {
		writeApprovalError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.RejectionResponse{
		RequestID:        result.RequestID,
		Status:           repository.AccountRequestStatusRejected,
		AlreadyRejected:  result.AlreadyRejected,
		NotificationSent: result.NotificationSent,
	})
}

var approvalSteps = map[error]string{
	service.ErrIdentityCreationFailed:   "identity",
	service.ErrProfileCreationFailed:    "profile",
	service.ErrMembershipCreationFailed: "membership",
	service.ErrStatusUpdateFailed:       "status",
}

func writeApprovalError(c *gin.Context, err error) {
	var stepErr *service.ApprovalError
	if errors.As(err, &stepErr) {
		c.Error(err)
		c.JSON(http.StatusBadGateway, models.ApprovalErrorResponse{
			Error:   stepErr.Kind.Error(),
			Step:    approvalSteps[stepErr.Kind],
			Message: stepErr.Message(),
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrRequestNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Account request not found"})
	case errors.Is(err, service.ErrRequestNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": "Account request is not pending"})
	case errors.Is(err, service.ErrApprovalInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "Approval already in progress"})
	case errors.Is(err, service.ErrIdempotencyKeyReused):
		c.JSON(http.StatusConflict, gin.H{"error": "Idempotency key already used"})
	case errors.Is(err, service.ErrApprovalAbandoned):
		c.JSON(http.StatusConflict, gin.H{"error": "Approval was rolled back, please retry"})
	case errors.Is(err, service.ErrPasswordRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required"})
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process account request"})
	}
}
