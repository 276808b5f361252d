package service

import (
	"errors"

	"loyalty-hub/internal/repository"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidPolicy         = errors.New("invalid reward policy")
	ErrStoreNotFound         = errors.New("store not found")
	ErrNotConnectedToStore   = errors.New("user is not connected to store")
	ErrNotAuthorizedForStore = errors.New("not authorized for store")
	ErrVisitNotFound         = errors.New("visit not found")
	ErrVisitNotPending       = errors.New("visit is not pending")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientPoints    = errors.New("insufficient points")
	ErrCodeNotFound          = errors.New("redemption code not found")
	ErrAlreadyUsed           = errors.New("redemption code already used")
	ErrCodeSpaceExhausted    = errors.New("redemption code space exhausted")
	ErrCodeConflict          = errors.New("redemption code conflict")
	ErrConcurrencyConflict   = errors.New("concurrent update conflict")
)

// IsRetryable reports whether the whole operation can be replayed safely:
// these errors are only produced before anything was committed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrCodeConflict) ||
		errors.Is(err, ErrCodeSpaceExhausted) ||
		errors.Is(err, repository.ErrSerialization)
}

func strPtr(v string) *string {
	return &v
}
