package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Marga-Ghale/hdss-admin-backend/internal/config"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/identity"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/repository"
)

var (
	ErrInvalidToken         = errors.New("invalid token")
	ErrInvalidInput         = errors.New("invalid input")
	ErrRequestNotFound      = errors.New("account request not found")
	ErrRequestNotPending    = errors.New("account request is not pending")
	ErrPasswordRequired     = errors.New("password is required")
	ErrApprovalInProgress   = errors.New("approval already in progress")
	ErrIdempotencyKeyReused = errors.New("idempotency key already used")
	ErrApprovalAbandoned    = errors.New("approval was rolled back by recovery")
)

// ============================================
// Collaborators
// ============================================

// Notifier delivers account emails. A false return means the email was not
// sent; it is never an error for the caller.
type Notifier interface {
	SendWelcomeEmail(ctx context.Context, to, fullName, password string) bool
	SendRejectionEmail(ctx context.Context, to, fullName string) bool
}

// EventPublisher pushes account request changes to live dashboards.
type EventPublisher interface {
	BroadcastAccountRequestSubmitted(request map[string]interface{})
	BroadcastAccountRequestApproved(request map[string]interface{})
	BroadcastAccountRequestRejected(request map[string]interface{})
}

// ============================================
// Services Container
// ============================================

type Services struct {
	Auth           AuthService
	AccountRequest AccountRequestService
	Approval       ApprovalService
	Recovery       RecoveryService
}

// ServiceDeps contains all dependencies needed to create services
type ServiceDeps struct {
	Config   *config.Config
	Repos    *repository.Repositories
	Identity identity.Provider
	Notifier Notifier
	Locker   Locker
	Events   EventPublisher
	Logger   *zap.Logger
}

func NewServices(deps *ServiceDeps) *Services {
	locker := deps.Locker
	if locker == nil {
		locker = NewLocalLocker()
	}

	log := newSagaLog(deps.Repos.ApprovalSagaRepo, deps.Logger)
	undo := &compensator{
		identities:  deps.Identity,
		profiles:    deps.Repos.UserProfileRepo,
		memberships: deps.Repos.SiteMembershipRepo,
		log:         log,
		logger:      deps.Logger,
	}

	return &Services{
		Auth: NewAuthService(deps.Config),
		AccountRequest: NewAccountRequestService(
			deps.Repos.AccountRequestRepo,
			deps.Events,
			deps.Logger,
		),
		Approval: &approvalService{
			requests:      deps.Repos.AccountRequestRepo,
			profiles:      deps.Repos.UserProfileRepo,
			memberships:   deps.Repos.SiteMembershipRepo,
			sagas:         deps.Repos.ApprovalSagaRepo,
			identities:    deps.Identity,
			notifier:      deps.Notifier,
			locker:        locker,
			events:        deps.Events,
			log:           log,
			undo:          undo,
			defaultRoleID: deps.Config.DefaultRoleID,
			lockTTL:       deps.Config.ApprovalLockTTL,
			now:           time.Now,
			logger:        deps.Logger,
		},
		Recovery: &recoveryService{
			requests: deps.Repos.AccountRequestRepo,
			sagas:    deps.Repos.ApprovalSagaRepo,
			locker:   locker,
			log:      log,
			undo:     undo,
			lockTTL:  deps.Config.ApprovalLockTTL,
			now:      time.Now,
			logger:   deps.Logger,
		},
	}
}
