package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Marga-Ghale/hdss-admin-backend/internal/identity"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/repository"
)

// ============================================
// Approval Service
// ============================================

type ApprovalService interface {
	// Approve provisions an account for a pending request: identity, profile,
	// optional site membership, then the status change. A failed step undoes
	// the earlier ones before the error is returned.
	Approve(ctx context.Context, input ApproveInput) (*ApprovalResult, error)
	// Reject marks a pending request rejected and emails the applicant.
	Reject(ctx context.Context, input RejectInput) (*RejectionResult, error)
}

type ApproveInput struct {
	RequestID      int64
	Password       string
	IdempotencyKey string
	ReviewerID     string
}

type ApprovalResult struct {
	SagaID           string
	RequestID        int64
	IdentityID       string
	ProfileID        int64
	MembershipID     *int64
	NotificationSent bool
	// Replayed is set when the idempotency key matched an approval that
	// already completed; nothing was re-run.
	Replayed bool
}

type RejectInput struct {
	RequestID  int64
	ReviewerID string
}

type RejectionResult struct {
	RequestID        int64
	AlreadyRejected  bool
	NotificationSent bool
}

type approvalService struct {
	requests    repository.AccountRequestRepository
	profiles    repository.UserProfileRepository
	memberships repository.SiteMembershipRepository
	sagas       repository.ApprovalSagaRepository
	identities  identity.Provider
	notifier    Notifier
	locker      Locker
	events      EventPublisher
	log         *sagaLog
	undo        *compensator

	defaultRoleID int64
	lockTTL       time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

func approvalLockKey(requestID int64) string {
	return fmt.Sprintf("approval:%d", requestID)
}

func (s *approvalService) Approve(ctx context.Context, input ApproveInput) (*ApprovalResult, error) {
	if input.Password == "" {
		return nil, ErrPasswordRequired
	}
	if input.IdempotencyKey == "" {
		input.IdempotencyKey = uuid.NewString()
	}

	prior, err := s.sagas.FindByIdempotencyKey(ctx, input.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	if prior != nil {
		return s.replay(prior, input.RequestID)
	}

	unlock, ok, err := s.locker.Lock(ctx, approvalLockKey(input.RequestID), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire approval lock: %w", err)
	}
	if !ok {
		return nil, ErrApprovalInProgress
	}
	defer unlock()

	// Steps must finish while the lock is held; recovery only touches
	// approvals whose lock has lapsed.
	if s.lockTTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTTL)
		defer cancel()
	}

	req, err := s.requests.FindByID(ctx, input.RequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account request: %w", err)
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if req.Status != repository.AccountRequestStatusPending {
		return nil, ErrRequestNotPending
	}

	active, err := s.sagas.FindActiveByRequest(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up running approvals: %w", err)
	}
	if active != nil {
		return nil, ErrApprovalInProgress
	}

	saga := &repository.ApprovalSaga{
		ID:             uuid.NewString(),
		RequestID:      req.ID,
		IdempotencyKey: input.IdempotencyKey,
		State:          repository.SagaStarted,
	}
	if err := s.sagas.Create(ctx, saga); err != nil {
		return nil, fmt.Errorf("failed to record approval saga: %w", err)
	}

	logger := s.logger.With(zap.String("saga_id", saga.ID), zap.Int64("request_id", req.ID))
	logger.Info("approval started")

	result, err := s.runSteps(ctx, saga, req, input, logger)
	if err != nil {
		logger.Warn("approval failed", zap.Error(err))
		return nil, err
	}

	if s.events != nil {
		reviewedAt := s.now().UTC()
		req.Status = repository.AccountRequestStatusApproved
		req.ReviewedBy = &input.ReviewerID
		req.ReviewedAt = &reviewedAt
		s.events.BroadcastAccountRequestApproved(accountRequestPayload(req))
	}

	logger.Info("approval completed", zap.Bool("notification_sent", result.NotificationSent))
	return result, nil
}

func (s *approvalService) runSteps(
	ctx context.Context,
	saga *repository.ApprovalSaga,
	req *repository.AccountRequest,
	input ApproveInput,
	logger *zap.Logger,
) (*ApprovalResult, error) {
	// Identity
	metadata := identity.Metadata{FullName: req.FullName}
	if req.PhoneNumber != nil {
		metadata.PhoneNumber = *req.PhoneNumber
	}
	ident, err := s.identities.CreateIdentity(ctx, req.Email, input.Password, metadata)
	if err != nil {
		return nil, s.abort(ctx, saga, stepFailed(ErrIdentityCreationFailed, err))
	}
	saga.IdentityID = &ident.ID
	if err := s.log.checkpoint(ctx, saga, repository.SagaIdentityCreated); err != nil {
		return nil, s.abandon(ctx, saga, logger)
	}

	// Profile
	roleID := s.defaultRoleID
	if req.RequestedRoleID != nil {
		roleID = *req.RequestedRoleID
	}
	profile := &repository.UserProfile{
		IdentityID:  ident.ID,
		Email:       req.Email,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		RoleID:      roleID,
	}
	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, s.abort(ctx, saga, stepFailed(ErrProfileCreationFailed, err))
	}
	saga.ProfileID = &profile.ID
	if err := s.log.checkpoint(ctx, saga, repository.SagaProfileCreated); err != nil {
		return nil, s.abandon(ctx, saga, logger)
	}

	// Membership
	if req.RequestedSiteID != nil {
		membership := &repository.SiteMembership{
			SiteID:        *req.RequestedSiteID,
			RoleID:        roleID,
			UserProfileID: profile.ID,
		}
		if err := s.memberships.Create(ctx, membership); err != nil {
			return nil, s.abort(ctx, saga, stepFailed(ErrMembershipCreationFailed, err))
		}
		saga.MembershipID = &membership.ID
		if err := s.log.checkpoint(ctx, saga, repository.SagaMembershipCreated); err != nil {
			return nil, s.abandon(ctx, saga, logger)
		}
	}

	// Status
	updated, err := s.requests.UpdateStatusIfPending(ctx, req.ID, repository.AccountRequestStatusApproved, input.ReviewerID, s.now().UTC())
	if err == nil && !updated {
		err = ErrRequestNotPending
	}
	if err != nil {
		return nil, s.abort(ctx, saga, stepFailed(ErrStatusUpdateFailed, err))
	}
	if err := s.log.checkpoint(ctx, saga, repository.SagaStatusUpdated); err != nil && !s.rolledForward(ctx, saga) {
		logger.Error("request approved after its approval was rolled back")
		return nil, s.abandon(ctx, saga, logger)
	}

	// Notification
	sent := s.notifier.SendWelcomeEmail(ctx, req.Email, req.FullName, input.Password)
	if !sent {
		logger.Warn("account approved but welcome email was not sent", zap.String("email", req.Email))
	}
	if err := s.log.checkpoint(ctx, saga, repository.SagaCompleted); err != nil && !s.rolledForward(ctx, saga) {
		logger.Error("welcome email sent for an approval that was rolled back")
		return nil, s.abandon(ctx, saga, logger)
	}

	return &ApprovalResult{
		SagaID:           saga.ID,
		RequestID:        req.ID,
		IdentityID:       ident.ID,
		ProfileID:        profile.ID,
		MembershipID:     saga.MembershipID,
		NotificationSent: sent,
	}, nil
}

// abort compensates whatever the saga recorded and returns stepErr.
func (s *approvalService) abort(ctx context.Context, saga *repository.ApprovalSaga, stepErr *ApprovalError) error {
	if !s.undo.run(ctx, saga, stepErr, repository.ForwardSagaStates...) {
		s.undo.undo(ctx, saga, s.logger.With(zap.String("saga_id", saga.ID)))
	}
	return stepErr
}

// abandon is called once recovery has claimed the saga. Recovery only knows
// the persisted checkpoints, so this run removes what it created itself.
func (s *approvalService) abandon(ctx context.Context, saga *repository.ApprovalSaga, logger *zap.Logger) error {
	logger.Warn("approval was claimed by recovery, undoing local steps")
	s.undo.undo(ctx, saga, logger)
	return ErrApprovalAbandoned
}

// rolledForward reports whether recovery already completed the saga.
func (s *approvalService) rolledForward(ctx context.Context, saga *repository.ApprovalSaga) bool {
	current, err := s.sagas.FindByIdempotencyKey(context.WithoutCancel(ctx), saga.IdempotencyKey)
	return err == nil && current != nil && current.State == repository.SagaCompleted
}

func (s *approvalService) replay(prior *repository.ApprovalSaga, requestID int64) (*ApprovalResult, error) {
	if prior.RequestID != requestID {
		return nil, ErrIdempotencyKeyReused
	}
	switch {
	case prior.State == repository.SagaCompleted:
		result := &ApprovalResult{
			SagaID:       prior.ID,
			RequestID:    prior.RequestID,
			MembershipID: prior.MembershipID,
			Replayed:     true,
		}
		if prior.IdentityID != nil {
			result.IdentityID = *prior.IdentityID
		}
		if prior.ProfileID != nil {
			result.ProfileID = *prior.ProfileID
		}
		return result, nil
	case !prior.State.Terminal():
		return nil, ErrApprovalInProgress
	default:
		return nil, ErrIdempotencyKeyReused
	}
}

func (s *approvalService) Reject(ctx context.Context, input RejectInput) (*RejectionResult, error) {
	req, err := s.requests.FindByID(ctx, input.RequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account request: %w", err)
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}

	switch req.Status {
	case repository.AccountRequestStatusRejected:
		return &RejectionResult{RequestID: req.ID, AlreadyRejected: true}, nil
	case repository.AccountRequestStatusApproved:
		return nil, ErrRequestNotPending
	}

	updated, err := s.requests.UpdateStatusIfPending(ctx, req.ID, repository.AccountRequestStatusRejected, input.ReviewerID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to update request status: %w", err)
	}
	if !updated {
		// Lost a race; report what the other writer did.
		current, err := s.requests.FindByID(ctx, req.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load account request: %w", err)
		}
		if current != nil && current.Status == repository.AccountRequestStatusRejected {
			return &RejectionResult{RequestID: req.ID, AlreadyRejected: true}, nil
		}
		return nil, ErrRequestNotPending
	}

	sent := s.notifier.SendRejectionEmail(ctx, req.Email, req.FullName)
	if !sent {
		s.logger.Warn("request rejected but email was not sent",
			zap.Int64("request_id", req.ID), zap.String("email", req.Email))
	}

	if s.events != nil {
		reviewedAt := s.now().UTC()
		req.Status = repository.AccountRequestStatusRejected
		req.ReviewedBy = &input.ReviewerID
		req.ReviewedAt = &reviewedAt
		s.events.BroadcastAccountRequestRejected(accountRequestPayload(req))
	}

	s.logger.Info("account request rejected", zap.Int64("request_id", req.ID))
	return &RejectionResult{RequestID: req.ID, NotificationSent: sent}, nil
}
