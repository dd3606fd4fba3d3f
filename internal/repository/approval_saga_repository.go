package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// ErrSagaStateConflict is returned by Update when the stored saga is no
// longer in any of the expected states.
var ErrSagaStateConflict = errors.New("approval saga state changed concurrently")

// SagaState is the last checkpoint an approval saga reached.
type SagaState string

const (
	SagaStarted            SagaState = "started"
	SagaIdentityCreated    SagaState = "identity_created"
	SagaProfileCreated     SagaState = "profile_created"
	SagaMembershipCreated  SagaState = "membership_created"
	SagaStatusUpdated      SagaState = "status_updated"
	SagaCompleted          SagaState = "completed"
	SagaCompensating       SagaState = "compensating"
	SagaCompensated        SagaState = "compensated"
	SagaCompensationFailed SagaState = "compensation_failed"
)

// ForwardSagaStates are the states of an approval that is still provisioning.
var ForwardSagaStates = []SagaState{
	SagaStarted, SagaIdentityCreated, SagaProfileCreated, SagaMembershipCreated, SagaStatusUpdated,
}

// Terminal reports whether no further work will happen on a saga in this state.
func (s SagaState) Terminal() bool {
	switch s {
	case SagaCompleted, SagaCompensated, SagaCompensationFailed:
		return true
	}
	return false
}

type ApprovalSaga struct {
	ID             string
	RequestID      int64
	IdempotencyKey string
	State          SagaState
	IdentityID     *string
	ProfileID      *int64
	MembershipID   *int64
	Error          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ApprovalSagaRepository interface {
	Create(ctx context.Context, saga *ApprovalSaga) error
	// Update stores saga only while its persisted state is one of from.
	Update(ctx context.Context, saga *ApprovalSaga, from ...SagaState) error
	FindByIdempotencyKey(ctx context.Context, key string) (*ApprovalSaga, error)
	FindActiveByRequest(ctx context.Context, requestID int64) (*ApprovalSaga, error)
	FindStale(ctx context.Context, before time.Time, limit int) ([]*ApprovalSaga, error)
}

type sqlApprovalSagaRepository struct {
	db *sql.DB
}

func NewApprovalSagaRepository(db *sql.DB) ApprovalSagaRepository {
	return &sqlApprovalSagaRepository{db: db}
}

const approvalSagaColumns = `id, request_id, idempotency_key, state, identity_id, profile_id,
		membership_id, error, created_at, updated_at`

// nonTerminalStates is shared by the active and stale lookups.
const nonTerminalStates = `('started', 'identity_created', 'profile_created', 'membership_created', 'status_updated', 'compensating')`

func scanApprovalSaga(row rowScanner) (*ApprovalSaga, error) {
	s := &ApprovalSaga{}
	err := row.Scan(
		&s.ID, &s.RequestID, &s.IdempotencyKey, &s.State, &s.IdentityID, &s.ProfileID,
		&s.MembershipID, &s.Error, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *sqlApprovalSagaRepository) Create(ctx context.Context, saga *ApprovalSaga) error {
	if saga.State == "" {
		saga.State = SagaStarted
	}
	query := `
		INSERT INTO approval_sagas (id, request_id, idempotency_key, state)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query,
		saga.ID, saga.RequestID, saga.IdempotencyKey, saga.State,
	).Scan(&saga.CreatedAt, &saga.UpdatedAt)
}

func (r *sqlApprovalSagaRepository) Update(ctx context.Context, saga *ApprovalSaga, from ...SagaState) error {
	expected := make([]string, len(from))
	for i, state := range from {
		expected[i] = string(state)
	}

	saga.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE approval_sagas
		SET state = $2, identity_id = $3, profile_id = $4, membership_id = $5, error = $6, updated_at = $7
		WHERE id = $1 AND state = ANY($8)
	`
	result, err := r.db.ExecContext(ctx, query,
		saga.ID, saga.State, saga.IdentityID, saga.ProfileID, saga.MembershipID, saga.Error, saga.UpdatedAt,
		pq.Array(expected),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSagaStateConflict
	}
	return nil
}

func (r *sqlApprovalSagaRepository) FindByIdempotencyKey(ctx context.Context, key string) (*ApprovalSaga, error) {
	query := `SELECT ` + approvalSagaColumns + ` FROM approval_sagas WHERE idempotency_key = $1`
	saga, err := scanApprovalSaga(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return saga, nil
}

func (r *sqlApprovalSagaRepository) FindActiveByRequest(ctx context.Context, requestID int64) (*ApprovalSaga, error) {
	query := `SELECT ` + approvalSagaColumns + ` FROM approval_sagas
		WHERE request_id = $1 AND state IN ` + nonTerminalStates + `
		ORDER BY created_at DESC LIMIT 1`
	saga, err := scanApprovalSaga(r.db.QueryRowContext(ctx, query, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return saga, nil
}

// FindStale returns non-terminal sagas whose last checkpoint is older than before.
func (r *sqlApprovalSagaRepository) FindStale(ctx context.Context, before time.Time, limit int) ([]*ApprovalSaga, error) {
	query := `SELECT ` + approvalSagaColumns + ` FROM approval_sagas
		WHERE state IN ` + nonTerminalStates + ` AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sagas []*ApprovalSaga
	for rows.Next() {
		saga, err := scanApprovalSaga(rows)
		if err != nil {
			return nil, err
		}
		sagas = append(sagas, saga)
	}
	return sagas, rows.Err()
}
