package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/Marga-Ghale/hdss-admin-backend/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ============================================
// Account Request Service
// ============================================

type AccountRequestService interface {
	Submit(ctx context.Context, input SubmitInput) (*repository.AccountRequest, error)
	Get(ctx context.Context, id int64) (*repository.AccountRequest, error)
	List(ctx context.Context, status string, limit, offset int) ([]*repository.AccountRequest, int, error)
}

type SubmitInput struct {
	FullName        string
	Email           string
	PhoneNumber     *string
	RequestedRoleID *int64
	RequestedSiteID *int64
	Reason          *string
}

type accountRequestService struct {
	repo   repository.AccountRequestRepository
	events EventPublisher
	logger *zap.Logger
}

func NewAccountRequestService(repo repository.AccountRequestRepository, events EventPublisher, logger *zap.Logger) AccountRequestService {
	return &accountRequestService{repo: repo, events: events, logger: logger}
}

func (s *accountRequestService) Submit(ctx context.Context, input SubmitInput) (*repository.AccountRequest, error) {
	fullName := strings.TrimSpace(input.FullName)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if fullName == "" || email == "" {
		return nil, ErrInvalidInput
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, ErrInvalidInput
	}

	req := &repository.AccountRequest{
		FullName:        fullName,
		Email:           email,
		PhoneNumber:     trimmed(input.PhoneNumber),
		RequestedRoleID: input.RequestedRoleID,
		RequestedSiteID: input.RequestedSiteID,
		Reason:          trimmed(input.Reason),
		Status:          repository.AccountRequestStatusPending,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to create account request: %w", err)
	}

	s.logger.Info("account request submitted", zap.Int64("request_id", req.ID), zap.String("email", req.Email))
	if s.events != nil {
		s.events.BroadcastAccountRequestSubmitted(accountRequestPayload(req))
	}
	return req, nil
}

func (s *accountRequestService) Get(ctx context.Context, id int64) (*repository.AccountRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

func (s *accountRequestService) List(ctx context.Context, status string, limit, offset int) ([]*repository.AccountRequest, int, error) {
	switch status {
	case "", repository.AccountRequestStatusPending, repository.AccountRequestStatusApproved, repository.AccountRequestStatusRejected:
	default:
		return nil, 0, ErrInvalidInput
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	requests, err := s.repo.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountByStatus(ctx, status)
	if err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// accountRequestPayload is the WebSocket representation of a request.
func accountRequestPayload(req *repository.AccountRequest) map[string]interface{} {
	payload := map[string]interface{}{
		"id":        req.ID,
		"fullName":  req.FullName,
		"email":     req.Email,
		"status":    req.Status,
		"createdAt": req.CreatedAt,
	}
	if req.RequestedRoleID != nil {
		payload["requestedRoleId"] = *req.RequestedRoleID
	}
	if req.RequestedSiteID != nil {
		payload["requestedSiteId"] = *req.RequestedSiteID
	}
	if req.ReviewedBy != nil {
		payload["reviewedBy"] = *req.ReviewedBy
	}
	if req.ReviewedAt != nil {
		payload["reviewedAt"] = *req.ReviewedAt
	}
	return payload
}
