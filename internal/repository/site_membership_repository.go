package repository

import (
	"context"
	"database/sql"
	"time"
)

type SiteMembership struct {
	ID            int64
	SiteID        int64
	RoleID        int64
	UserProfileID int64
	Status        string
	CreatedAt     time.Time
}

type SiteMembershipRepository interface {
	Create(ctx context.Context, membership *SiteMembership) error
	FindByProfileID(ctx context.Context, profileID int64) ([]*SiteMembership, error)
	Delete(ctx context.Context, id int64) error
}

type sqlSiteMembershipRepository struct {
	db *sql.DB
}

func NewSiteMembershipRepository(db *sql.DB) SiteMembershipRepository {
	return &sqlSiteMembershipRepository{db: db}
}

func (r *sqlSiteMembershipRepository) Create(ctx context.Context, membership *SiteMembership) error {
	if membership.Status == "" {
		membership.Status = "active"
	}
	query := `
		INSERT INTO site_memberships (site_id, role_id, user_profile_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query,
		membership.SiteID, membership.RoleID, membership.UserProfileID, membership.Status,
	).Scan(&membership.ID, &membership.CreatedAt)
}

func (r *sqlSiteMembershipRepository) FindByProfileID(ctx context.Context, profileID int64) ([]*SiteMembership, error) {
	query := `
		SELECT id, site_id, role_id, user_profile_id, status, created_at
		FROM site_memberships WHERE user_profile_id = $1 ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []*SiteMembership
	for rows.Next() {
		m := &SiteMembership{}
		if err := rows.Scan(&m.ID, &m.SiteID, &m.RoleID, &m.UserProfileID, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

func (r *sqlSiteMembershipRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM site_memberships WHERE id = $1`, id)
	return err
}
