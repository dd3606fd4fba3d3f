package service

import (
	"errors"
	"fmt"
)

// Step failure kinds of the approval saga.
var (
	ErrIdentityCreationFailed   = errors.New("identity creation failed")
	ErrProfileCreationFailed    = errors.New("profile creation failed")
	ErrMembershipCreationFailed = errors.New("membership creation failed")
	ErrStatusUpdateFailed       = errors.New("status update failed")
)

// ApprovalError reports which saga step failed and why. errors.Is matches
// both the step kind and the underlying cause.
type ApprovalError struct {
	Kind error
	Err  error
}

func (e *ApprovalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *ApprovalError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Message is the underlying cause as reported by the failing system.
func (e *ApprovalError) Message() string {
	return e.Err.Error()
}

func stepFailed(kind, err error) *ApprovalError {
	return &ApprovalError{Kind: kind, Err: err}
}
