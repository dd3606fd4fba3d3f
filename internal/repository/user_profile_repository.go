package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type UserProfile struct {
	ID          int64
	IdentityID  string
	Email       string
	FullName    string
	PhoneNumber *string
	RoleID      int64
	SiteID      *int64
	Status      string
	CreatedAt   time.Time
}

type UserProfileRepository interface {
	Create(ctx context.Context, profile *UserProfile) error
	FindByIdentityID(ctx context.Context, identityID string) (*UserProfile, error)
	Delete(ctx context.Context, id int64) error
}

type sqlUserProfileRepository struct {
	db *sql.DB
}

func NewUserProfileRepository(db *sql.DB) UserProfileRepository {
	return &sqlUserProfileRepository{db: db}
}

func (r *sqlUserProfileRepository) Create(ctx context.Context, profile *UserProfile) error {
	if profile.Status == "" {
		profile.Status = "active"
	}
	query := `
		INSERT INTO user_profiles (identity_id, email, full_name, phone_number, role_id, site_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query,
		profile.IdentityID, profile.Email, profile.FullName, profile.PhoneNumber,
		profile.RoleID, profile.SiteID, profile.Status,
	).Scan(&profile.ID, &profile.CreatedAt)
}

func (r *sqlUserProfileRepository) FindByIdentityID(ctx context.Context, identityID string) (*UserProfile, error) {
	query := `
		SELECT id, identity_id, email, full_name, phone_number, role_id, site_id, status, created_at
		FROM user_profiles WHERE identity_id = $1
	`
	p := &UserProfile{}
	err := r.db.QueryRowContext(ctx, query, identityID).Scan(
		&p.ID, &p.IdentityID, &p.Email, &p.FullName, &p.PhoneNumber,
		&p.RoleID, &p.SiteID, &p.Status, &p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *sqlUserProfileRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM user_profiles WHERE id = $1`, id)
	return err
}
