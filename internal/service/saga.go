package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Marga-Ghale/hdss-admin-backend/internal/identity"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/repository"
)

// sagaLog writes saga checkpoints. A failed write is logged and the saga
// carries on from its in-memory record; a write that loses to another
// process's transition is reported as repository.ErrSagaStateConflict.
type sagaLog struct {
	sagas  repository.ApprovalSagaRepository
	logger *zap.Logger
}

func newSagaLog(sagas repository.ApprovalSagaRepository, logger *zap.Logger) *sagaLog {
	return &sagaLog{sagas: sagas, logger: logger}
}

func (l *sagaLog) write(ctx context.Context, saga *repository.ApprovalSaga, state repository.SagaState, from []repository.SagaState) error {
	prev := saga.State
	saga.State = state
	err := l.sagas.Update(ctx, saga, from...)
	if errors.Is(err, repository.ErrSagaStateConflict) {
		saga.State = prev
		return err
	}
	if err != nil {
		l.logger.Warn("failed to checkpoint approval saga",
			zap.String("saga_id", saga.ID),
			zap.String("state", string(state)),
			zap.Error(err),
		)
	}
	return nil
}

// checkpoint advances a running saga. It fails once the saga has been taken
// over for compensation.
func (l *sagaLog) checkpoint(ctx context.Context, saga *repository.ApprovalSaga, state repository.SagaState) error {
	return l.write(ctx, saga, state, repository.ForwardSagaStates)
}

// compensator undoes the resources of a saga, newest first.
type compensator struct {
	identities  identity.Provider
	profiles    repository.UserProfileRepository
	memberships repository.SiteMembershipRepository
	log         *sagaLog
	logger      *zap.Logger
}

// run claims the saga for compensation while its stored state is one of from,
// then deletes membership, profile and identity. It returns false without
// touching anything when another process claimed the saga first. cause is
// kept on the saga as the reason it was compensated.
func (c *compensator) run(ctx context.Context, saga *repository.ApprovalSaga, cause error, from ...repository.SagaState) bool {
	ctx = context.WithoutCancel(ctx)
	logger := c.logger.With(zap.String("saga_id", saga.ID), zap.Int64("request_id", saga.RequestID))

	if err := c.log.write(ctx, saga, repository.SagaCompensating, from); err != nil {
		logger.Info("compensation: saga already taken over", zap.String("state", string(saga.State)))
		return false
	}

	final := repository.SagaCompensated
	if !c.undo(ctx, saga, logger) {
		final = repository.SagaCompensationFailed
	}

	msg := cause.Error()
	saga.Error = &msg
	settledFrom := append([]repository.SagaState{repository.SagaCompensating}, from...)
	if err := c.log.write(ctx, saga, final, settledFrom); err != nil {
		logger.Warn("compensation: could not record outcome", zap.Error(err))
	}
	return true
}

// undo deletes every resource recorded on the saga. Children whose checkpoint
// was lost are found through their parent. Failures are logged; the return
// value reports whether everything was removed.
func (c *compensator) undo(ctx context.Context, saga *repository.ApprovalSaga, logger *zap.Logger) bool {
	ctx = context.WithoutCancel(ctx)
	ok := true

	if saga.ProfileID == nil && saga.IdentityID != nil {
		profile, err := c.profiles.FindByIdentityID(ctx, *saga.IdentityID)
		if err != nil {
			ok = false
			logger.Error("compensation: failed to look up user profile", zap.Error(err))
		} else if profile != nil {
			saga.ProfileID = &profile.ID
		}
	}

	var membershipIDs []int64
	if saga.MembershipID != nil {
		membershipIDs = append(membershipIDs, *saga.MembershipID)
	} else if saga.ProfileID != nil {
		memberships, err := c.memberships.FindByProfileID(ctx, *saga.ProfileID)
		if err != nil {
			ok = false
			logger.Error("compensation: failed to look up site memberships", zap.Error(err))
		}
		for _, m := range memberships {
			membershipIDs = append(membershipIDs, m.ID)
		}
	}

	for _, id := range membershipIDs {
		if err := c.memberships.Delete(ctx, id); err != nil {
			ok = false
			logger.Error("compensation: failed to delete site membership",
				zap.Int64("membership_id", id), zap.Error(err))
		} else {
			logger.Info("compensation: deleted site membership", zap.Int64("membership_id", id))
		}
	}

	if saga.ProfileID != nil {
		if err := c.profiles.Delete(ctx, *saga.ProfileID); err != nil {
			ok = false
			logger.Error("compensation: failed to delete user profile",
				zap.Int64("profile_id", *saga.ProfileID), zap.Error(err))
		} else {
			logger.Info("compensation: deleted user profile", zap.Int64("profile_id", *saga.ProfileID))
		}
	}

	if saga.IdentityID != nil {
		err := c.identities.DeleteIdentity(ctx, *saga.IdentityID)
		switch {
		case err == nil, errors.Is(err, identity.ErrIdentityNotFound):
			logger.Info("compensation: deleted identity", zap.String("identity_id", *saga.IdentityID))
		default:
			ok = false
			logger.Error("compensation: failed to delete identity",
				zap.String("identity_id", *saga.IdentityID), zap.Error(err))
		}
	}

	return ok
}
