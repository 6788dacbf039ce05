package server

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/ssimulacra2/internal/store"
)

// createTestImage writes a 32x32 PNG with a square whose position depends
// on offset, so two offsets give two different images.
func createTestImage(t *testing.T, path string, offset int, alpha uint8) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			c := color.NRGBA{240, 240, 240, alpha}
			if x >= 10+offset && x < 20+offset && y >= 10 && y < 20 {
				c = color.NRGBA{200, 30, 30, alpha}
			}
			img.Set(x, y, c)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create test image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
}

// testPair writes a reference and a shifted distorted image
func testPair(t *testing.T) (ref, dist string) {
	t.Helper()
	dir := t.TempDir()
	ref = filepath.Join(dir, "ref.png")
	dist = filepath.Join(dir, "dist.png")
	createTestImage(t, ref, 0, 255)
	createTestImage(t, dist, 2, 255)
	return ref, dist
}

func TestRunJob_Success(t *testing.T) {
	ref, dist := testPair(t)

	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{RefPath: ref, DistPath: dist, Features: true})

	if err := runJob(context.Background(), jm, nil, job.ID); err != nil {
		t.Fatalf("runJob should succeed: %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCompleted {
		t.Errorf("Job should be completed, got %s", updated.State)
	}
	if updated.Score == nil || *updated.Score >= 100 {
		t.Errorf("Expected a score below 100, got %v", updated.Score)
	}
	if updated.Scales != 4 {
		t.Errorf("32x32 images should compare 4 scales, got %d", updated.Scales)
	}
	if len(updated.Features) != 108 {
		t.Errorf("Expected 108 features, got %d", len(updated.Features))
	}
	if updated.EndTime == nil {
		t.Error("EndTime should be set")
	}
}

func TestRunJob_SavesReport(t *testing.T) {
	ref, dist := testPair(t)

	reports, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer reports.Close()

	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{RefPath: ref, DistPath: dist})
	if err := runJob(context.Background(), jm, reports, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	report, err := reports.LoadReport(job.ID)
	if err != nil {
		t.Fatalf("Report was not saved: %v", err)
	}
	if report.Source != store.SourceJob || len(report.Records) != 1 {
		t.Fatalf("Unexpected report: %+v", report)
	}
	updated, _ := jm.GetJob(job.ID)
	if report.Records[0].Score != *updated.Score {
		t.Errorf("Report score %v, job score %v", report.Records[0].Score, *updated.Score)
	}
	if report.Records[0].Features != nil {
		t.Error("Features were not requested")
	}
}

func TestRunJob_InvalidImage(t *testing.T) {
	ref, _ := testPair(t)

	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{RefPath: ref, DistPath: "/nonexistent/image.png"})

	err := runJob(context.Background(), jm, nil, job.ID)
	if err == nil {
		t.Fatal("runJob should fail with invalid image path")
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateFailed {
		t.Errorf("Job should be failed, got %s", updated.State)
	}
	if updated.Error == "" {
		t.Error("Error message should be set")
	}
	if updated.ErrorKind != "file_not_found" {
		t.Errorf("Expected file_not_found kind, got %q", updated.ErrorKind)
	}
}

func TestRunJob_SizeMismatch(t *testing.T) {
	ref, _ := testPair(t)
	small := filepath.Join(t.TempDir(), "small.png")
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	f, err := os.Create(small)
	if err != nil {
		t.Fatal(err)
	}
	png.Encode(f, img)
	f.Close()

	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{RefPath: ref, DistPath: small})
	if err := runJob(context.Background(), jm, nil, job.ID); err == nil {
		t.Fatal("Expected size mismatch error")
	}
	updated, _ := jm.GetJob(job.ID)
	if updated.ErrorKind != "size_mismatch" {
		t.Errorf("Expected size_mismatch kind, got %q", updated.ErrorKind)
	}
}

func TestRunJob_Cancellation(t *testing.T) {
	ref, dist := testPair(t)

	jm := NewJobManager()
	job := jm.CreateJob(JobConfig{RefPath: ref, DistPath: dist})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runJob(ctx, jm, nil, job.ID)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	updated, _ := jm.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Job should be cancelled, got %s", updated.State)
	}
}

func TestRunJob_NotFound(t *testing.T) {
	if err := runJob(context.Background(), NewJobManager(), nil, "missing"); err == nil {
		t.Error("Expected error for unknown job")
	}
}
