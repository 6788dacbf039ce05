package server

import (
	"testing"
	"time"
)

func TestJobManager_CreateJob(t *testing.T) {
	jm := NewJobManager()

	bg := float32(0.5)
	config := JobConfig{
		RefPath:    "ref.png",
		DistPath:   "dist.png",
		Background: &bg,
	}

	job := jm.CreateJob(config)

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}

	if job.State != StatePending {
		t.Errorf("Initial state should be pending, got %s", job.State)
	}

	if job.Config.RefPath != "ref.png" || job.Config.DistPath != "dist.png" || *job.Config.Background != 0.5 {
		t.Errorf("Config not set correctly")
	}
}

func TestJobManager_GetJob(t *testing.T) {
	jm := NewJobManager()

	config := JobConfig{RefPath: "ref.png", DistPath: "dist.png"}
	job := jm.CreateJob(config)

	retrieved, exists := jm.GetJob(job.ID)
	if !exists {
		t.Error("Job should exist")
	}

	if retrieved.ID != job.ID {
		t.Error("Retrieved wrong job")
	}

	_, exists = jm.GetJob("nonexistent")
	if exists {
		t.Error("Should not find nonexistent job")
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := NewJobManager()

	if len(jm.ListJobs()) != 0 {
		t.Error("Should start with no jobs")
	}

	first := jm.CreateJob(JobConfig{RefPath: "test1.png"})
	time.Sleep(time.Millisecond)
	jm.CreateJob(JobConfig{RefPath: "test2.png"})

	jobs := jm.ListJobs()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != first.ID {
		t.Error("Jobs should be listed oldest first")
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{RefPath: "test.png"})

	score := 87.5
	err := jm.UpdateJob(job.ID, func(j *Job) {
		j.State = StateRunning
		j.Scales = 6
		j.Score = &score
	})

	if err != nil {
		t.Errorf("Update should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateRunning {
		t.Error("State should be updated")
	}
	if updated.Scales != 6 {
		t.Error("Scales should be updated")
	}
	if updated.Score == nil || *updated.Score != 87.5 {
		t.Error("Score should be updated")
	}

	// Snapshots are not affected by later updates
	jm.UpdateJob(job.ID, func(j *Job) { j.Scales = 3 })
	if updated.Scales != 6 {
		t.Error("GetJob should return a snapshot")
	}

	err = jm.UpdateJob("nonexistent", func(j *Job) {})
	if err == nil {
		t.Error("Update of nonexistent job should fail")
	}
}

func TestJobManager_ThreadSafety(t *testing.T) {
	jm := NewJobManager()

	job := jm.CreateJob(JobConfig{RefPath: "test.png"})

	// Simulate concurrent updates
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(iteration int) {
			jm.UpdateJob(job.ID, func(j *Job) {
				j.Scales = iteration
				time.Sleep(1 * time.Millisecond)
			})
			done <- true
		}(i)
	}

	// Wait for all updates
	for i := 0; i < 10; i++ {
		<-done
	}

	// Should not crash - actual value depends on race
	_, exists := jm.GetJob(job.ID)
	if !exists {
		t.Error("Job should still exist after concurrent updates")
	}
}

func TestJobManager_CancelJob(t *testing.T) {
	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{RefPath: "a.png", DistPath: "b.png"})

	if jm.CancelJob(job.ID) {
		t.Error("A job that was never started cannot be cancelled")
	}

	cancelled := false
	jm.setCancel(job.ID, func() { cancelled = true })
	if !jm.CancelJob(job.ID) || !cancelled {
		t.Error("Started job should be cancellable")
	}

	jm.UpdateJob(job.ID, func(j *Job) { j.State = StateCompleted })
	if jm.CancelJob(job.ID) {
		t.Error("Completed job should not be cancellable")
	}
	if jm.CancelJob("nonexistent") {
		t.Error("Unknown job should not be cancellable")
	}
}

func TestJobState_Terminal(t *testing.T) {
	for _, s := range []JobState{StateCompleted, StateFailed, StateCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []JobState{StatePending, StateRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
