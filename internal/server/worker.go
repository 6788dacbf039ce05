package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/ssimulacra2"
	"github.com/cwbudde/ssimulacra2/internal/batch"
	"github.com/cwbudde/ssimulacra2/internal/metric"
	"github.com/cwbudde/ssimulacra2/internal/store"
)

// runJob scores a job's image pair. If reportStore is not nil, the outcome
// of a completed job is persisted as a report under the job ID.
func runJob(ctx context.Context, jm *JobManager, reportStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// Check for cancellation while the job was queued
	select {
	case <-ctx.Done():
		markJobCancelled(jm, jobID)
		return ctx.Err()
	default:
	}

	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	}); err != nil {
		return err
	}
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateRunning, Timestamp: time.Now()})

	slog.Info("Starting job", "job_id", jobID, "ref", job.Config.RefPath, "dist", job.Config.DistPath)

	var opts []metric.Option
	if job.Config.Background != nil {
		opts = append(opts, metric.WithBackground(*job.Config.Background))
	}

	pair := batch.Pair{Ref: job.Config.RefPath, Dist: job.Config.DistPath}
	start := time.Now()
	res, err := batch.FileScorer(opts...)(ctx, pair)
	elapsed := time.Since(start)

	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		markJobCancelled(jm, jobID)
		return ctx.Err()
	}
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	endTime := time.Now()
	score := res.Score
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Score = &score
		j.Scales = res.Scales
		j.Composited = res.Composited
		j.Background = res.Background
		if j.Config.Features {
			j.Features = append([]float64(nil), res.Features[:]...)
		}
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}

	slog.Info("Job completed", "job_id", jobID, "elapsed", elapsed, "score", score, "scales", res.Scales)

	if reportStore != nil {
		result := batch.Result{Pair: pair, Score: res, Elapsed: elapsed}
		report := store.NewReport(jobID, store.SourceJob, []store.Record{result.Record(job.Config.Features)}, nil)
		if err := reportStore.SaveReport(report); err != nil {
			// the score is still served from memory
			slog.Error("Failed to save report", "job_id", jobID, "error", err)
		}
	}

	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateCompleted,
		Score:     &score,
		Elapsed:   elapsed.Seconds(),
		Timestamp: time.Now(),
	})
	return nil
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, jobID string, err error) {
	endTime := time.Now()
	kind := ssimulacra2.KindOf(err).String()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.ErrorKind = kind
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateFailed,
		Error:     err.Error(),
		Timestamp: endTime,
	})
	slog.Error("Job failed", "job_id", jobID, "kind", kind, "error", err)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, jobID string) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	jm.broadcaster.Broadcast(ProgressEvent{JobID: jobID, State: StateCancelled, Timestamp: endTime})
	slog.Info("Job cancelled", "job_id", jobID)
}
