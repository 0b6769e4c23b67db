package store

import (
	"context"
	"testing"

	"github.com/roach88/waymark/internal/schema"
)

// seedJob creates a job with the given steps; each entry is
// (stepID, orderIndex, status).
func seedJob(t *testing.T, s *SQLiteStore, jobID string, steps []struct {
	id     string
	order  int
	status schema.StepStatus
}) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.CreateJob(ctx, createTestJobParams(jobID)); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	for _, step := range steps {
		if _, err := s.CreateStep(ctx, createTestStepParams(step.id, jobID, step.order)); err != nil {
			t.Fatalf("CreateStep(%s) failed: %v", step.id, err)
		}
		if step.status != schema.StepPending {
			if _, err := s.UpdateStepStatus(ctx, step.id, StepStatusUpdate{Status: step.status}); err != nil {
				t.Fatalf("UpdateStepStatus(%s) failed: %v", step.id, err)
			}
		}
	}
}

func TestGetResumePoint_LastCompletedStep(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seedJob(t, s, "job-1", []struct {
		id     string
		order  int
		status schema.StepStatus
	}{
		{"s1", 1, schema.StepCompleted},
		{"s2", 2, schema.StepPending},
	})

	rp, err := s.GetResumePoint(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetResumePoint failed: %v", err)
	}
	if rp == nil {
		t.Fatal("expected a resume point")
	}
	if rp.StepID != "s1" {
		t.Errorf("resume step = %q, expected s1", rp.StepID)
	}
	if rp.Data["status"] != string(schema.StepCompleted) {
		t.Errorf("resume data = %v, expected the step_complete snapshot", rp.Data)
	}
}

func TestGetResumePoint_NoCompletedSteps(t *testing.T) {
	s := createTestStore(t)

	seedJob(t, s, "job-1", []struct {
		id     string
		order  int
		status schema.StepStatus
	}{
		{"s1", 1, schema.StepPending},
		{"s2", 2, schema.StepRunning},
	})

	rp, err := s.GetResumePoint(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetResumePoint failed: %v", err)
	}
	if rp != nil {
		t.Errorf("expected nil resume point, got %+v", rp)
	}
}

func TestGetResumePoint_UnknownJob(t *testing.T) {
	s := createTestStore(t)

	rp, err := s.GetResumePoint(context.Background(), "no-such-job")
	if err != nil {
		t.Fatalf("GetResumePoint failed: %v", err)
	}
	if rp != nil {
		t.Errorf("expected nil resume point, got %+v", rp)
	}
}

func TestGetResumePoint_PicksMaxOrderIndex(t *testing.T) {
	s := createTestStore(t)

	seedJob(t, s, "job-1", []struct {
		id     string
		order  int
		status schema.StepStatus
	}{
		{"s1", 1, schema.StepCompleted},
		{"s3", 3, schema.StepCompleted},
		{"s2", 2, schema.StepCompleted},
		{"s4", 4, schema.StepFailed},
	})

	rp, err := s.GetResumePoint(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetResumePoint failed: %v", err)
	}
	if rp == nil {
		t.Fatal("expected a resume point")
	}
	if rp.StepID != "s3" {
		t.Errorf("resume step = %q, expected s3 (max completed order)", rp.StepID)
	}
}

func TestGetResumePoint_TiebreakByStepID(t *testing.T) {
	s := createTestStore(t)

	// Two completed steps share order_index 5; the higher step_id wins
	seedJob(t, s, "job-1", []struct {
		id     string
		order  int
		status schema.StepStatus
	}{
		{"s-a", 5, schema.StepCompleted},
		{"s-b", 5, schema.StepCompleted},
	})

	rp, err := s.GetResumePoint(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetResumePoint failed: %v", err)
	}
	if rp == nil {
		t.Fatal("expected a resume point")
	}
	if rp.StepID != "s-b" {
		t.Errorf("resume step = %q, expected s-b (step_id tiebreak)", rp.StepID)
	}
}

func TestGetResumePoint_CompletedStepWithoutCheckpoint(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seedJob(t, s, "job-1", []struct {
		id     string
		order  int
		status schema.StepStatus
	}{
		{"s1", 1, schema.StepCompleted},
	})

	// Remove the step_complete checkpoint to create the
	// inconsistent-but-tolerated state
	if _, err := s.db.Exec(
		"DELETE FROM checkpoints WHERE step_id = ? AND checkpoint_type = ?",
		"s1", string(schema.CheckpointStepComplete),
	); err != nil {
		t.Fatalf("delete checkpoint: %v", err)
	}

	rp, err := s.GetResumePoint(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetResumePoint failed: %v", err)
	}
	if rp != nil {
		t.Errorf("expected nil (resume from beginning), got %+v", rp)
	}
}

func TestGetResumePoint_UsesMostRecentCompletion(t *testing.T) {
	clock := newFakeClock(testEpoch())
	s := createTestStore(t, WithClock(clock))
	ctx := context.Background()

	seedJob(t, s, "job-1", []struct {
		id     string
		order  int
		status schema.StepStatus
	}{
		{"s1", 1, schema.StepCompleted},
	})

	// A retry completes the step again later; resume must see the
	// newer snapshot
	clock.Advance(1)
	if _, err := s.UpdateStepStatus(ctx, "s1", StepStatusUpdate{
		Status:     schema.StepCompleted,
		RetryCount: intPtr(1),
	}); err != nil {
		t.Fatalf("UpdateStepStatus failed: %v", err)
	}

	rp, err := s.GetResumePoint(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetResumePoint failed: %v", err)
	}
	if rp == nil {
		t.Fatal("expected a resume point")
	}
	if rp.Data["retry_count"] != float64(1) {
		t.Errorf("resume data = %v, expected the retry snapshot", rp.Data)
	}
}
