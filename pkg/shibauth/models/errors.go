package models

import "errors"

// User errors
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("user already exists")
	ErrUserDisabled  = errors.New("user account is disabled")
)

// Group errors
var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrDuplicateGroup = errors.New("group already exists")
)

// Authentication failures. These are expected per-request outcomes, not
// pipeline errors: the middleware maps any of them to "request proceeds
// unauthenticated".
var (
	// ErrNoCredential means the trusted header carried no username.
	ErrNoCredential = errors.New("no credential in trusted header")

	// ErrUnknownUser means auto-creation is disabled and no local account
	// matches the asserted username.
	ErrUnknownUser = errors.New("unknown user")
)
