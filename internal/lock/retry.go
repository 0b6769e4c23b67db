package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/waymark/internal/backoff"
	"github.com/roach88/waymark/internal/schema"
)

// DefaultMaxRetries bounds UpdateWithRetry when RetryOptions leaves
// MaxRetries at zero.
const DefaultMaxRetries = 3

// VersionFunc reads the current version of the contended resource,
// typically from a state store row. It is re-invoked at the start of
// every attempt so retries observe concurrent commits.
type VersionFunc func(ctx context.Context) (int64, error)

// UpdateFunc performs the caller's mutation while the lease is held.
// Errors from it are never retried.
type UpdateFunc func(ctx context.Context, lease *schema.Lock) error

// RetryOptions tunes UpdateWithRetry.
type RetryOptions struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Zero means DefaultMaxRetries; use a negative value for a single
	// attempt with no retries.
	MaxRetries int

	// Strategy computes the delay before each retry. Nil means
	// backoff.Default().
	Strategy backoff.Strategy

	// TTL is the lease lifetime per attempt. Non-positive means the
	// manager's default.
	TTL time.Duration
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	} else if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Strategy == nil {
		o.Strategy = backoff.Default()
	}
	return o
}

// UpdateWithRetry runs update under a lease on resourceID, retrying on
// lock and version conflicts with backoff.
//
// Each attempt reads the current version, acquires a lease bound to
// it, runs update, then validates the lease still holds that version
// before releasing. A failed validation means another writer committed
// concurrently (or the lease expired mid-update); the attempt is
// discarded and the loop re-reads the version.
//
// Errors from readVersion or update surface immediately and are never
// retried. On every exit path the lease held by this call is released.
// Context cancellation is honored between attempts and during backoff
// sleeps.
func (m *Manager) UpdateWithRetry(ctx context.Context, resourceID, holderID string, readVersion VersionFunc, update UpdateFunc, opts RetryOptions) error {
	opts = opts.withDefaults()

	var lastConflict error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("update %s: %w", resourceID, err)
		}

		version, err := readVersion(ctx)
		if err != nil {
			return fmt.Errorf("read version of %s: %w", resourceID, err)
		}

		lease, err := m.Acquire(resourceID, holderID, version, opts.TTL)
		if err != nil {
			lastConflict = err
			if attempt < opts.MaxRetries {
				if serr := sleep(ctx, opts.Strategy.Delay(attempt+1)); serr != nil {
					return fmt.Errorf("update %s: %w", resourceID, serr)
				}
				continue
			}
			break
		}

		if err := update(ctx, lease); err != nil {
			m.Release(lease.LockID)
			return fmt.Errorf("update %s: %w", resourceID, err)
		}

		if m.Validate(lease.LockID, version) {
			m.Release(lease.LockID)
			m.collector.ObserveUpdateAttempts(attempt + 1)
			return nil
		}

		m.Release(lease.LockID)
		m.collector.RecordVersionConflict()
		lastConflict = &VersionConflictError{
			ResourceID: resourceID,
			LockID:     lease.LockID,
			Expected:   version,
		}
		if attempt < opts.MaxRetries {
			if serr := sleep(ctx, opts.Strategy.Delay(attempt+1)); serr != nil {
				return fmt.Errorf("update %s: %w", resourceID, serr)
			}
		}
	}

	m.collector.RecordRetriesExhausted()
	return &RetriesExhaustedError{
		ResourceID: resourceID,
		Attempts:   opts.MaxRetries + 1,
		Last:       lastConflict,
	}
}

// sleep waits for d or until the context is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
