package store

import (
	"context"
	"testing"

	"github.com/roach88/waymark/internal/schema"
)

func TestGetJob_Absent(t *testing.T) {
	s := createTestStore(t)

	job, err := s.GetJob(context.Background(), "no-such-job")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job != nil {
		t.Errorf("expected nil for absent job, got %+v", job)
	}
}

func TestGetStep_Absent(t *testing.T) {
	s := createTestStore(t)

	step, err := s.GetStep(context.Background(), "no-such-step")
	if err != nil {
		t.Fatalf("GetStep failed: %v", err)
	}
	if step != nil {
		t.Errorf("expected nil for absent step, got %+v", step)
	}
}

func TestListSteps_OrderedByOrderIndexThenStepID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateJob(ctx, createTestJobParams("job-1")); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	// Insert out of order, with a duplicate order_index to exercise
	// the step_id tiebreak
	for _, step := range []struct {
		id    string
		order int
	}{
		{"s-c", 20},
		{"s-a", 10},
		{"s-b2", 15},
		{"s-b1", 15},
	} {
		if _, err := s.CreateStep(ctx, createTestStepParams(step.id, "job-1", step.order)); err != nil {
			t.Fatalf("CreateStep(%s) failed: %v", step.id, err)
		}
	}

	steps, err := s.ListSteps(ctx, "job-1")
	if err != nil {
		t.Fatalf("ListSteps failed: %v", err)
	}

	want := []string{"s-a", "s-b1", "s-b2", "s-c"}
	if len(steps) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(steps))
	}
	for i, id := range want {
		if steps[i].StepID != id {
			t.Errorf("steps[%d] = %q, expected %q", i, steps[i].StepID, id)
		}
	}
}

func TestListSteps_EmptyJob(t *testing.T) {
	s := createTestStore(t)

	steps, err := s.ListSteps(context.Background(), "no-such-job")
	if err != nil {
		t.Fatalf("ListSteps failed: %v", err)
	}
	if steps == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(steps) != 0 {
		t.Errorf("expected no steps, got %d", len(steps))
	}
}

func TestStepRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateJob(ctx, createTestJobParams("job-1")); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	p := createTestStepParams("s1", "job-1", 1)
	p.Environment = map[string]string{"PATH": "/usr/bin", "HOME": "/root"}
	p.Dependencies = []string{"s0a", "s0b"}
	p.WorkingDirectory = "/tmp/work"
	p.TimeoutSeconds = 300
	p.Metadata = map[string]any{"owner": "ops"}

	if _, err := s.CreateStep(ctx, p); err != nil {
		t.Fatalf("CreateStep failed: %v", err)
	}

	step, err := s.GetStep(ctx, "s1")
	if err != nil {
		t.Fatalf("GetStep failed: %v", err)
	}
	if step.Environment["PATH"] != "/usr/bin" {
		t.Errorf("environment lost: %v", step.Environment)
	}
	if len(step.Dependencies) != 2 || step.Dependencies[0] != "s0a" {
		t.Errorf("dependencies lost: %v", step.Dependencies)
	}
	if step.WorkingDirectory != "/tmp/work" {
		t.Errorf("working_directory = %q", step.WorkingDirectory)
	}
	if step.Metadata["owner"] != "ops" {
		t.Errorf("metadata lost: %v", step.Metadata)
	}
}

func TestLatestCheckpoint_PicksMostRecent(t *testing.T) {
	clock := newFakeClock(testEpoch())
	s := createTestStore(t, WithClock(clock))
	ctx := context.Background()

	for _, cursor := range []int{1, 2, 3} {
		_, err := s.CreateCheckpoint(ctx, schema.Checkpoint{
			JobID:          "job-1",
			StepID:         "s1",
			CheckpointType: schema.CheckpointStepComplete,
			Data:           map[string]any{"cursor": cursor},
		})
		if err != nil {
			t.Fatalf("CreateCheckpoint failed: %v", err)
		}
		clock.Advance(1)
	}

	cp, err := s.LatestCheckpoint(ctx, "job-1", "s1", schema.CheckpointStepComplete)
	if err != nil {
		t.Fatalf("LatestCheckpoint failed: %v", err)
	}
	if cp == nil {
		t.Fatal("expected a checkpoint")
	}
	if cp.Data["cursor"] != float64(3) {
		t.Errorf("cursor = %v, expected 3", cp.Data["cursor"])
	}
}

func TestLatestCheckpoint_Absent(t *testing.T) {
	s := createTestStore(t)

	cp, err := s.LatestCheckpoint(context.Background(), "job-1", "s1", schema.CheckpointStepComplete)
	if err != nil {
		t.Fatalf("LatestCheckpoint failed: %v", err)
	}
	if cp != nil {
		t.Errorf("expected nil, got %+v", cp)
	}
}

func TestStepVersion_BumpsOnUpdate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateJob(ctx, createTestJobParams("job-1")); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if _, err := s.CreateStep(ctx, createTestStepParams("s1", "job-1", 1)); err != nil {
		t.Fatalf("CreateStep failed: %v", err)
	}

	v, err := s.StepVersion(ctx, "s1")
	if err != nil || v != 1 {
		t.Fatalf("StepVersion = (%d, %v), expected (1, nil)", v, err)
	}

	if _, err := s.UpdateStepStatus(ctx, "s1", StepStatusUpdate{Status: schema.StepRunning}); err != nil {
		t.Fatalf("UpdateStepStatus failed: %v", err)
	}

	v, err = s.StepVersion(ctx, "s1")
	if err != nil || v != 2 {
		t.Fatalf("StepVersion = (%d, %v), expected (2, nil)", v, err)
	}

	// Unknown rows report version 0
	v, err = s.StepVersion(ctx, "no-such-step")
	if err != nil || v != 0 {
		t.Fatalf("StepVersion(unknown) = (%d, %v), expected (0, nil)", v, err)
	}
}
