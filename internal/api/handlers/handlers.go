package handlers

import (
	"go.uber.org/zap"

	"github.com/Marga-Ghale/hdss-admin-backend/internal/models"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/repository"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/service"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	AccountRequest *AccountRequestHandler
	Password       *PasswordHandler
}

// NewHandlers creates all handlers. reviewerID is recorded as the reviewer
// on every approval and rejection.
func NewHandlers(services *service.Services, reviewerID string, logger *zap.Logger) *Handlers {
	return &Handlers{
		AccountRequest: &AccountRequestHandler{
			accountRequestService: services.AccountRequest,
			approvalService:       services.Approval,
			reviewerID:            reviewerID,
			logger:                logger,
		},
		Password: &PasswordHandler{},
	}
}

// ============================================
// Response Mappers
// ============================================

func toAccountRequestResponse(r *repository.AccountRequest) models.AccountRequestResponse {
	return models.AccountRequestResponse{
		ID:              r.ID,
		FullName:        r.FullName,
		Email:           r.Email,
		PhoneNumber:     r.PhoneNumber,
		RequestedRoleID: r.RequestedRoleID,
		RequestedSiteID: r.RequestedSiteID,
		Reason:          r.Reason,
		Status:          r.Status,
		ReviewedBy:      r.ReviewedBy,
		ReviewedAt:      r.ReviewedAt,
		CreatedAt:       r.CreatedAt,
	}
}
