package schema

import "time"

// Lock is a time-bounded, versioned exclusive claim on a resource.
//
// Leases live only in process memory and are never persisted. For
// every ResourceID at most one non-expired lease exists at any
// instant; the lock manager's critical section enforces this.
type Lock struct {
	LockID     string         `json:"lock_id"`
	ResourceID string         `json:"resource_id"`
	HolderID   string         `json:"holder_id"`
	Version    int64          `json:"version"`
	AcquiredAt time.Time      `json:"acquired_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	Refreshes  int            `json:"refreshes"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Expired reports whether the lease has lapsed at the given instant.
func (l *Lock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Clone returns a copy of the lease safe to hand to callers. The
// manager mutates leases in place under its mutex, so diagnostic
// copies must not alias the live record.
func (l *Lock) Clone() *Lock {
	c := *l
	if l.Metadata != nil {
		c.Metadata = make(map[string]any, len(l.Metadata))
		for k, v := range l.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
