package models

import "errors"

// Sentinel errors shared by services and controllers. Store failures that
// wrap none of these are treated as transient: surfaced to the user and
// safe to retry manually.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotAuthorized    = errors.New("not authorized")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyMember    = errors.New("already a member")
	ErrValidation       = errors.New("validation failed")
)
