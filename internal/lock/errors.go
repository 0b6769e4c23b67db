package lock

import (
	"errors"
	"fmt"

	"github.com/roach88/waymark/internal/schema"
)

// ErrorCode categorizes lock manager errors.
type ErrorCode string

const (
	// ErrCodeLockConflict indicates an active lease is held by another holder.
	ErrCodeLockConflict ErrorCode = "LOCK_CONFLICT"

	// ErrCodeVersionConflict indicates the lease was valid but the resource
	// version moved between acquire and commit.
	ErrCodeVersionConflict ErrorCode = "VERSION_CONFLICT"

	// ErrCodeRetriesExhausted indicates UpdateWithRetry ran out of attempts.
	ErrCodeRetriesExhausted ErrorCode = "RETRIES_EXHAUSTED"
)

// ConflictError is returned by Acquire when the resource is held by a
// different holder under a live lease. Existing is a snapshot of the
// conflicting lease for caller diagnostics; it does not alias the
// manager's live record.
type ConflictError struct {
	ResourceID string
	HolderID   string
	Existing   *schema.Lock
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Existing != nil {
		return fmt.Sprintf("%s: resource %s held by %s until %s",
			ErrCodeLockConflict, e.ResourceID, e.Existing.HolderID,
			e.Existing.ExpiresAt.Format("15:04:05.000"))
	}
	return fmt.Sprintf("%s: resource %s is held", ErrCodeLockConflict, e.ResourceID)
}

// VersionConflictError is returned when validation at commit time finds
// the lease gone, expired, or bound to a different version than the one
// read at the start of the attempt.
type VersionConflictError struct {
	ResourceID string
	LockID     string
	Expected   int64
}

// Error implements the error interface.
func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s: resource %s no longer at version %d",
		ErrCodeVersionConflict, e.ResourceID, e.Expected)
}

// RetriesExhaustedError is returned by UpdateWithRetry after the final
// attempt fails with a lock or version conflict. Last is the conflict
// from that attempt.
type RetriesExhaustedError struct {
	ResourceID string
	Attempts   int
	Last       error
}

// Error implements the error interface.
func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s: resource %s after %d attempts: %v",
		ErrCodeRetriesExhausted, e.ResourceID, e.Attempts, e.Last)
}

// Unwrap exposes the final conflict for errors.Is/As.
func (e *RetriesExhaustedError) Unwrap() error {
	return e.Last
}

// IsConflict returns true if the error is a lock conflict.
// Uses errors.As to handle wrapped errors.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsVersionConflict returns true if the error is a version conflict.
// Uses errors.As to handle wrapped errors.
func IsVersionConflict(err error) bool {
	var ve *VersionConflictError
	return errors.As(err, &ve)
}

// IsRetriesExhausted returns true if the error is a retry exhaustion.
// Uses errors.As to handle wrapped errors.
func IsRetriesExhausted(err error) bool {
	var re *RetriesExhaustedError
	return errors.As(err, &re)
}
