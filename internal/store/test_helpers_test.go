package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeClock is a manually advanced Clock for TTL and timestamp tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// createTestStore creates a file-backed store in a temp directory.
func createTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestJobParams builds minimal CreateJob parameters.
func createTestJobParams(jobID string) CreateJobParams {
	return CreateJobParams{
		JobID:     jobID,
		JobType:   "pipeline",
		Config:    map[string]any{"target": "staging"},
		Variables: map[string]any{"attempt": float64(1)},
		CreatedBy: "tester",
	}
}

// createTestStepParams builds minimal CreateStep parameters.
func createTestStepParams(stepID, jobID string, order int) CreateStepParams {
	return CreateStepParams{
		StepID:     stepID,
		JobID:      jobID,
		StepName:   "step-" + stepID,
		StepType:   "shell",
		OrderIndex: order,
		Command:    "true",
		MaxRetries: 3,
	}
}

// testEpoch is a fixed wall-clock origin for deterministic tests.
func testEpoch() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func timePtr(t time.Time) *time.Time { return &t }

func int64Ptr(v int64) *int64 { return &v }

func strPtr(s string) *string { return &s }

func intPtr(v int) *int { return &v }
