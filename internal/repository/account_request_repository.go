package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	AccountRequestStatusPending  = "pending"
	AccountRequestStatusApproved = "approved"
	AccountRequestStatusRejected = "rejected"
)

type AccountRequest struct {
	ID              int64
	FullName        string
	Email           string
	PhoneNumber     *string
	RequestedRoleID *int64
	RequestedSiteID *int64
	Reason          *string
	Status          string
	ReviewedBy      *string
	ReviewedAt      *time.Time
	CreatedAt       time.Time
}

type AccountRequestRepository interface {
	Create(ctx context.Context, req *AccountRequest) error
	FindByID(ctx context.Context, id int64) (*AccountRequest, error)
	List(ctx context.Context, status string, limit, offset int) ([]*AccountRequest, error)
	CountByStatus(ctx context.Context, status string) (int, error)
	// UpdateStatusIfPending moves a pending request to status. It reports false
	// when the request was no longer pending.
	UpdateStatusIfPending(ctx context.Context, id int64, status, reviewedBy string, reviewedAt time.Time) (bool, error)
}

type sqlAccountRequestRepository struct {
	db *sql.DB
}

func NewAccountRequestRepository(db *sql.DB) AccountRequestRepository {
	return &sqlAccountRequestRepository{db: db}
}

const accountRequestColumns = `id, full_name, email, phone_number, requested_role_id, requested_site_id,
		reason, status, reviewed_by, reviewed_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccountRequest(row rowScanner) (*AccountRequest, error) {
	r := &AccountRequest{}
	err := row.Scan(
		&r.ID, &r.FullName, &r.Email, &r.PhoneNumber, &r.RequestedRoleID, &r.RequestedSiteID,
		&r.Reason, &r.Status, &r.ReviewedBy, &r.ReviewedAt, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *sqlAccountRequestRepository) Create(ctx context.Context, req *AccountRequest) error {
	if req.Status == "" {
		req.Status = AccountRequestStatusPending
	}
	query := `
		INSERT INTO account_requests (full_name, email, phone_number, requested_role_id, requested_site_id, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query,
		req.FullName, req.Email, req.PhoneNumber, req.RequestedRoleID,
		req.RequestedSiteID, req.Reason, req.Status,
	).Scan(&req.ID, &req.CreatedAt)
}

func (r *sqlAccountRequestRepository) FindByID(ctx context.Context, id int64) (*AccountRequest, error) {
	query := `SELECT ` + accountRequestColumns + ` FROM account_requests WHERE id = $1`
	req, err := scanAccountRequest(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// List returns requests newest first. An empty status lists every request.
func (r *sqlAccountRequestRepository) List(ctx context.Context, status string, limit, offset int) ([]*AccountRequest, error) {
	query := `SELECT ` + accountRequestColumns + ` FROM account_requests
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*AccountRequest
	for rows.Next() {
		req, err := scanAccountRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func (r *sqlAccountRequestRepository) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM account_requests WHERE ($1 = '' OR status = $1)`, status,
	).Scan(&count)
	return count, err
}

func (r *sqlAccountRequestRepository) UpdateStatusIfPending(ctx context.Context, id int64, status, reviewedBy string, reviewedAt time.Time) (bool, error) {
	query := `
		UPDATE account_requests
		SET status = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, id, status, reviewedBy, reviewedAt)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}
