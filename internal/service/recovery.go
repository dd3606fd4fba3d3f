package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Marga-Ghale/hdss-admin-backend/internal/repository"
)

const recoveryBatchSize = 100

var errSagaAbandoned = errors.New("approval abandoned before completion")

// ============================================
// Recovery Service
// ============================================

type RecoveryService interface {
	// RecoverStale settles approvals whose last checkpoint is older than
	// olderThan, and reports how many it settled.
	RecoverStale(ctx context.Context, olderThan time.Duration) (int, error)
	// PendingCount reports how many requests still await review.
	PendingCount(ctx context.Context) (int, error)
}

type recoveryService struct {
	requests repository.AccountRequestRepository
	sagas    repository.ApprovalSagaRepository
	locker   Locker
	log      *sagaLog
	undo     *compensator
	lockTTL  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func (s *recoveryService) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	// A saga younger than the approval lock may still be running.
	if olderThan < s.lockTTL {
		olderThan = s.lockTTL
	}

	stale, err := s.sagas.FindStale(ctx, s.now().UTC().Add(-olderThan), recoveryBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find stale approvals: %w", err)
	}

	recovered := 0
	for _, saga := range stale {
		if err := ctx.Err(); err != nil {
			return recovered, err
		}
		if s.recover(ctx, saga) {
			recovered++
		}
	}
	return recovered, nil
}

// recover settles one saga under its request's approval lock. It reports
// false when the saga is still owned by a running approval or changed
// since it was read.
func (s *recoveryService) recover(ctx context.Context, saga *repository.ApprovalSaga) bool {
	logger := s.logger.With(
		zap.String("saga_id", saga.ID),
		zap.Int64("request_id", saga.RequestID),
		zap.String("state", string(saga.State)),
	)

	unlock, ok, err := s.locker.Lock(ctx, approvalLockKey(saga.RequestID), s.lockTTL)
	if err != nil {
		logger.Error("failed to lock stale approval", zap.Error(err))
		return false
	}
	if !ok {
		logger.Info("stale approval is still locked, skipping")
		return false
	}
	defer unlock()

	approved, err := s.requestApproved(ctx, saga)
	if err != nil {
		logger.Error("failed to load request for stale approval", zap.Error(err))
		return false
	}

	read := saga.State

	// Once the status change committed the account is live; finish the
	// saga instead of tearing it down.
	if approved {
		if err := s.log.write(ctx, saga, repository.SagaCompleted, []repository.SagaState{read}); err != nil {
			logger.Info("stale approval changed before roll forward")
			return false
		}
		logger.Info("stale approval rolled forward")
		return true
	}

	if !s.undo.run(ctx, saga, errSagaAbandoned, read) {
		return false
	}
	logger.Info("stale approval compensated", zap.String("result", string(saga.State)))
	return true
}

func (s *recoveryService) requestApproved(ctx context.Context, saga *repository.ApprovalSaga) (bool, error) {
	if saga.State == repository.SagaStatusUpdated {
		return true, nil
	}
	req, err := s.requests.FindByID(ctx, saga.RequestID)
	if err != nil {
		return false, err
	}
	return req != nil && req.Status == repository.AccountRequestStatusApproved, nil
}

func (s *recoveryService) PendingCount(ctx context.Context) (int, error) {
	return s.requests.CountByStatus(ctx, repository.AccountRequestStatusPending)
}
