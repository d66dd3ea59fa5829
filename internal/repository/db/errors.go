package db

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrInsufficientTokens     = errors.New("insufficient tokens")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrSessionNotFound        = errors.New("dream session not found")
	ErrSessionForbidden       = errors.New("unauthorized: user does not own this dream session")
	ErrConcurrentModification = errors.New("dream session was modified concurrently")
	ErrEmailTaken             = errors.New("email already registered")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrIdentityTaken          = errors.New("provider identity already linked to another user")
	ErrAlreadyApplied         = errors.New("credit already applied")
)

// StorageError wraps a driver failure. It matches ErrStorageUnavailable.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("error %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// Unavailable wraps err as a StorageError for the named operation
func Unavailable(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
