// Package lock arbitrates competing writers over logical resources
// with an in-process table of versioned, time-bounded leases.
//
// The manager holds no durable state: after a crash the table is
// simply empty and the persisted rows in the state store are the sole
// source of truth. Versions are caller-supplied; the manager records
// the version a holder claimed at acquire time and checks it again at
// validation, it never reads or owns business data.
package lock

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/waymark/internal/metrics"
	"github.com/roach88/waymark/internal/schema"
)

// DefaultTTL is the lease lifetime used when Acquire is called with a
// non-positive ttl.
const DefaultTTL = 30 * time.Second

// Clock abstracts time for deterministic expiry tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Manager is the in-process lease table. All methods are safe for
// concurrent use; the acquire check-then-act sequence runs under a
// single critical section so two concurrent acquirers can never both
// observe an empty slot for the same resource.
type Manager struct {
	mu         sync.Mutex
	byResource map[string]*schema.Lock
	byLockID   map[string]string // lock_id -> resource_id

	clock     Clock
	ttl       time.Duration
	collector *metrics.Collector
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithTTL sets the default lease lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithMetrics attaches a metrics collector. A nil collector is valid
// and records nothing.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.collector = c }
}

// NewManager creates an empty lease table.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		byResource: make(map[string]*schema.Lock),
		byLockID:   make(map[string]string),
		clock:      systemClock{},
		ttl:        DefaultTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire claims resourceID for holderID at the given version.
//
// Outcomes, decided atomically:
//   - no lease: a new lease is created with expiry now+ttl.
//   - lease held by the same holder: refreshed in place (version and
//     expiry updated, refresh count incremented). Re-entrant renewal,
//     not a conflict.
//   - live lease held by another holder: *ConflictError carrying a
//     snapshot of the blocking lease.
//   - expired lease held by another holder: evicted and replaced
//     (expiry takeover).
//
// The returned lease is a copy; mutating it has no effect on the table.
func (m *Manager) Acquire(resourceID, holderID string, version int64, ttl time.Duration) (*schema.Lock, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing := m.byResource[resourceID]; existing != nil {
		if existing.HolderID == holderID {
			existing.Version = version
			existing.ExpiresAt = now.Add(ttl)
			existing.Refreshes++
			m.collector.RecordLockRefresh()
			return existing.Clone(), nil
		}
		if !existing.Expired(now) {
			m.collector.RecordLockConflict()
			return nil, &ConflictError{
				ResourceID: resourceID,
				HolderID:   holderID,
				Existing:   existing.Clone(),
			}
		}
		delete(m.byLockID, existing.LockID)
		m.collector.RecordLockTakeover()
	}

	lease := &schema.Lock{
		LockID:     uuid.NewString(),
		ResourceID: resourceID,
		HolderID:   holderID,
		Version:    version,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	m.byResource[resourceID] = lease
	m.byLockID[lease.LockID] = resourceID
	m.collector.RecordLockAcquired()
	m.collector.SetActiveLeases(len(m.byResource))
	return lease.Clone(), nil
}

// Validate reports whether the lease identified by lockID is still
// live and bound to expectedVersion. An expired lease is evicted as a
// side effect. Success has no side effect.
func (m *Manager) Validate(lockID string, expectedVersion int64) bool {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	resourceID, ok := m.byLockID[lockID]
	if !ok {
		return false
	}
	lease := m.byResource[resourceID]
	if lease == nil || lease.LockID != lockID {
		// Stale index entry left behind by a takeover.
		delete(m.byLockID, lockID)
		return false
	}
	if lease.Expired(now) {
		m.evictLocked(lease)
		return false
	}
	return lease.Version == expectedVersion
}

// Release removes the lease identified by lockID. Returns false when
// no such lease exists, which is not an error: the lease may already
// have expired or been taken over.
func (m *Manager) Release(lockID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	resourceID, ok := m.byLockID[lockID]
	if !ok {
		return false
	}
	lease := m.byResource[resourceID]
	if lease == nil || lease.LockID != lockID {
		delete(m.byLockID, lockID)
		return false
	}
	m.evictLocked(lease)
	return true
}

// ForceRelease unconditionally evicts whatever lease holds resourceID,
// bypassing ownership. Callers are expected to pair it with an audit
// event; the manager only counts it.
func (m *Manager) ForceRelease(resourceID, adminID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	lease := m.byResource[resourceID]
	if lease == nil {
		return false
	}
	m.evictLocked(lease)
	m.collector.RecordForceRelease()
	return true
}

// CleanupExpired sweeps the table and evicts every lapsed lease,
// returning how many were removed. Safe to skip: expired leases are
// also evicted lazily by Acquire, Validate and Status.
func (m *Manager) CleanupExpired() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, lease := range m.byResource {
		if lease.Expired(now) {
			m.evictLocked(lease)
			removed++
		}
	}
	return removed
}

// Status returns a snapshot of the live lease on resourceID, or nil
// when the resource is unlocked. An expired lease is evicted and
// reported as unlocked.
func (m *Manager) Status(resourceID string) *schema.Lock {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	lease := m.byResource[resourceID]
	if lease == nil {
		return nil
	}
	if lease.Expired(now) {
		m.evictLocked(lease)
		return nil
	}
	return lease.Clone()
}

// Snapshot returns copies of every live lease, for diagnostics.
func (m *Manager) Snapshot() []*schema.Lock {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*schema.Lock, 0, len(m.byResource))
	for _, lease := range m.byResource {
		if !lease.Expired(now) {
			out = append(out, lease.Clone())
		}
	}
	return out
}

// evictLocked removes a lease from both indexes. Caller holds m.mu.
func (m *Manager) evictLocked(lease *schema.Lock) {
	delete(m.byResource, lease.ResourceID)
	delete(m.byLockID, lease.LockID)
	m.collector.SetActiveLeases(len(m.byResource))
}
