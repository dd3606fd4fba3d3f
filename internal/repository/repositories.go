package repository

import (
	"database/sql"
)

type Repositories struct {
	AccountRequestRepo AccountRequestRepository
	UserProfileRepo    UserProfileRepository
	SiteMembershipRepo SiteMembershipRepository
	ApprovalSagaRepo   ApprovalSagaRepository
}

func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		AccountRequestRepo: NewAccountRequestRepository(db),
		UserProfileRepo:    NewUserProfileRepository(db),
		SiteMembershipRepo: NewSiteMembershipRepository(db),
		ApprovalSagaRepo:   NewApprovalSagaRepository(db),
	}
}
