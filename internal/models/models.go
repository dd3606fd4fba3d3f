package models

import "time"

// ============================================
// Account Request DTOs
// ============================================

type SubmitAccountRequestRequest struct {
	FullName        string  `json:"fullName" binding:"required,min=2"`
	Email           string  `json:"email" binding:"required,email"`
	PhoneNumber     *string `json:"phoneNumber,omitempty"`
	RequestedRoleID *int64  `json:"requestedRoleId,omitempty"`
	RequestedSiteID *int64  `json:"requestedSiteId,omitempty"`
	Reason          *string `json:"reason,omitempty" binding:"omitempty,max=2000"`
}

type AccountRequestResponse struct {
	ID              int64      `json:"id"`
	FullName        string     `json:"fullName"`
	Email           string     `json:"email"`
	PhoneNumber     *string    `json:"phoneNumber,omitempty"`
	RequestedRoleID *int64     `json:"requestedRoleId,omitempty"`
	RequestedSiteID *int64     `json:"requestedSiteId,omitempty"`
	Reason          *string    `json:"reason,omitempty"`
	Status          string     `json:"status"`
	ReviewedBy      *string    `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type AccountRequestListResponse struct {
	Items  []AccountRequestResponse `json:"items"`
	Total  int                      `json:"total"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// ============================================
// Approval DTOs
// ============================================

type ApproveAccountRequestRequest struct {
	Password       string `json:"password,omitempty" binding:"omitempty,min=6,max=72"`
	IdempotencyKey string `json:"idempotencyKey,omitempty" binding:"omitempty,max=128"`
}

type ApprovalResponse struct {
	RequestID        int64  `json:"requestId"`
	Status           string `json:"status"`
	SagaID           string `json:"sagaId"`
	IdentityID       string `json:"identityId"`
	ProfileID        int64  `json:"profileId"`
	MembershipID     *int64 `json:"membershipId,omitempty"`
	NotificationSent bool   `json:"notificationSent"`
	Replayed         bool   `json:"replayed"`

	// GeneratedPassword is only returned when the server picked the password.
	GeneratedPassword string `json:"generatedPassword,omitempty"`
}

type RejectionResponse struct {
	RequestID        int64  `json:"requestId"`
	Status           string `json:"status"`
	AlreadyRejected  bool   `json:"alreadyRejected"`
	NotificationSent bool   `json:"notificationSent"`
}

type GeneratedPasswordResponse struct {
	Password string `json:"password"`
}

// ApprovalErrorResponse describes which saga step failed.
type ApprovalErrorResponse struct {
	Error   string `json:"error"`
	Step    string `json:"step"`
	Message string `json:"message"`
}
