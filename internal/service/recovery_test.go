package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marga-Ghale/hdss-admin-backend/internal/identity"
	"github.com/Marga-Ghale/hdss-admin-backend/internal/repository"
)

func TestRecoverStale_CompensatesUnfinishedSagas(t *testing.T) {
	req := pendingRequest(1)
	h := newHarness(t, req)

	ident, err := h.identities.CreateIdentity(context.Background(), "a@b.com", "pw", identity.Metadata{})
	require.NoError(t, err)
	profile := &repository.UserProfile{IdentityID: ident.ID, Email: "a@b.com", RoleID: 3}
	require.NoError(t, h.profiles.Create(context.Background(), profile))

	h.sagas.put(&repository.ApprovalSaga{
		ID:         "crashed",
		RequestID:  1,
		State:      repository.SagaProfileCreated,
		IdentityID: &ident.ID,
		ProfileID:  &profile.ID,
		UpdatedAt:  time.Now().Add(-time.Hour),
	})

	n, err := h.services.Recovery.RecoverStale(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 0, h.identities.count())
	assert.Equal(t, 0, h.profiles.count())
	assert.Equal(t, repository.SagaCompensated, h.sagas.get("crashed").State)
	assert.Equal(t, repository.AccountRequestStatusPending, h.requests.status(1))
}

func TestRecoverStale_RollsForwardAfterStatusUpdate(t *testing.T) {
	req := pendingRequest(1)
	req.Status = repository.AccountRequestStatusApproved
	h := newHarness(t, req)

	h.sagas.put(&repository.ApprovalSaga{
		ID:         "updated",
		RequestID:  1,
		State:      repository.SagaStatusUpdated,
		IdentityID: strPtr("uid-9"),
		ProfileID:  int64Ptr(5),
		UpdatedAt:  time.Now().Add(-time.Hour),
	})
	// Status change committed but its checkpoint was lost.
	h.sagas.put(&repository.ApprovalSaga{
		ID:         "lagging",
		RequestID:  1,
		State:      repository.SagaProfileCreated,
		IdentityID: strPtr("uid-8"),
		ProfileID:  int64Ptr(6),
		UpdatedAt:  time.Now().Add(-time.Hour),
	})

	n, err := h.services.Recovery.RecoverStale(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.Equal(t, repository.SagaCompleted, h.sagas.get("updated").State)
	assert.Equal(t, repository.SagaCompleted, h.sagas.get("lagging").State)
	assert.Empty(t, h.calls.list())
}

func TestRecoverStale_SkipsFreshAndTerminalSagas(t *testing.T) {
	h := newHarness(t, pendingRequest(1))

	h.sagas.put(&repository.ApprovalSaga{
		ID:        "fresh",
		RequestID: 1,
		State:     repository.SagaIdentityCreated,
		UpdatedAt: time.Now(),
	})
	h.sagas.put(&repository.ApprovalSaga{
		ID:        "done",
		RequestID: 1,
		State:     repository.SagaCompleted,
		UpdatedAt: time.Now().Add(-time.Hour),
	})

	n, err := h.services.Recovery.RecoverStale(context.Background(), 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, repository.SagaIdentityCreated, h.sagas.get("fresh").State)
}

func TestPendingCount(t *testing.T) {
	approved := pendingRequest(2)
	approved.Status = repository.AccountRequestStatusApproved
	h := newHarness(t, pendingRequest(1), approved, pendingRequest(3))

	n, err := h.services.Recovery.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

type approveOutcome struct {
	result *ApprovalResult
	err    error
}

// parkAtProfile starts an approval and returns once it is blocked inside the
// profile step, after the identity checkpoint.
func parkAtProfile(t *testing.T, h *harness) chan approveOutcome {
	t.Helper()
	h.profiles.entered = make(chan struct{})
	h.profiles.block = make(chan struct{})

	done := make(chan approveOutcome, 1)
	go func() {
		result, err := h.services.Approval.Approve(context.Background(), ApproveInput{
			RequestID:      1,
			Password:       "pw",
			IdempotencyKey: "key-1",
		})
		done <- approveOutcome{result: result, err: err}
	}()
	<-h.profiles.entered
	return done
}

func TestRecoverStale_LeavesLockedApprovalAlone(t *testing.T) {
	h := newHarness(t, pendingRequest(1))
	h.recoverAt(time.Hour)
	done := parkAtProfile(t, h)

	n, err := h.services.Recovery.RecoverStale(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, h.identities.count())
	assert.Equal(t, repository.SagaIdentityCreated, h.sagas.byKey("key-1").State)

	close(h.profiles.block)
	out := <-done
	require.NoError(t, out.err)

	assert.Equal(t, 1, h.identities.count())
	assert.Equal(t, 1, h.profiles.count())
	assert.Equal(t, repository.AccountRequestStatusApproved, h.requests.status(1))
	assert.Equal(t, repository.SagaCompleted, h.sagas.byKey("key-1").State)
}

func TestRecoverStale_ClaimedApprovalUndoesItsOwnSteps(t *testing.T) {
	h := newHarness(t, pendingRequest(1))
	h.build(nil, 20*time.Millisecond)
	h.recoverAt(time.Hour)
	done := parkAtProfile(t, h)

	// Let the approval lock lapse while the step is stuck.
	time.Sleep(50 * time.Millisecond)

	n, err := h.services.Recovery.RecoverStale(context.Background(), time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, h.identities.count())
	assert.Equal(t, repository.SagaCompensated, h.sagas.byKey("key-1").State)

	close(h.profiles.block)
	out := <-done
	assert.ErrorIs(t, out.err, ErrApprovalAbandoned)
	assert.Nil(t, out.result)

	// No profile may outlive its identity.
	assert.Equal(t, 0, h.profiles.count())
	assert.Equal(t, 0, h.identities.count())
	assert.Equal(t, repository.AccountRequestStatusPending, h.requests.status(1))
	assert.Equal(t, repository.SagaCompensated, h.sagas.byKey("key-1").State)
	assert.Empty(t, h.notifier.welcomed)
}

func TestRecoverStale_FindsChildrenWithLostCheckpoints(t *testing.T) {
	h := newHarness(t, pendingRequest(1))
	ctx := context.Background()

	ident, err := h.identities.CreateIdentity(ctx, "a@b.com", "pw", identity.Metadata{})
	require.NoError(t, err)
	profile := &repository.UserProfile{IdentityID: ident.ID, Email: "a@b.com", RoleID: 3}
	require.NoError(t, h.profiles.Create(ctx, profile))
	require.NoError(t, h.memberships.Create(ctx, &repository.SiteMembership{SiteID: 7, RoleID: 3, UserProfileID: profile.ID}))

	// Only the identity checkpoint was written before the crash.
	h.sagas.put(&repository.ApprovalSaga{
		ID:         "crashed",
		RequestID:  1,
		State:      repository.SagaIdentityCreated,
		IdentityID: &ident.ID,
		UpdatedAt:  time.Now().Add(-time.Hour),
	})

	n, err := h.services.Recovery.RecoverStale(ctx, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 0, h.memberships.count())
	assert.Equal(t, 0, h.profiles.count())
	assert.Equal(t, 0, h.identities.count())
	assert.Equal(t, repository.SagaCompensated, h.sagas.get("crashed").State)
	assert.Equal(t, []string{
		"create identity", "create profile", "create membership",
		"delete membership", "delete profile", "delete identity",
	}, h.calls.list())
}

func TestRecoverStale_SkipsSagaChangedSinceRead(t *testing.T) {
	h := newHarness(t, pendingRequest(1))
	saga := &repository.ApprovalSaga{
		ID:        "moved",
		RequestID: 1,
		State:     repository.SagaIdentityCreated,
		UpdatedAt: time.Now().Add(-time.Hour),
	}

	rec := h.services.Recovery.(*recoveryService)
	h.sagas.put(saga)
	h.sagas.put(&repository.ApprovalSaga{ID: "moved", RequestID: 1, State: repository.SagaCompleted})

	assert.False(t, rec.recover(context.Background(), saga))
	assert.Equal(t, repository.SagaCompleted, h.sagas.get("moved").State)
	assert.Empty(t, h.calls.list())
}
