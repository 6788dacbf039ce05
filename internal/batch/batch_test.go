package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cwbudde/ssimulacra2/internal/imageio"
	"github.com/cwbudde/ssimulacra2/internal/metric"
	"github.com/cwbudde/ssimulacra2/internal/store"
)

func writeImage(t *testing.T, path string, shift int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			v := uint8((x*13 + y*5 + shift) % 256)
			img.Set(x, y, color.NRGBA{v, v / 2, 255 - v, 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func fakePairs(n int) []Pair {
	pairs := make([]Pair, n)
	for i := range pairs {
		pairs[i] = Pair{Ref: fmt.Sprintf("ref-%d", i), Dist: fmt.Sprintf("dist-%d", i)}
	}
	return pairs
}

func TestRunPreservesOrder(t *testing.T) {
	pairs := fakePairs(20)
	score := func(ctx context.Context, p Pair) (*metric.Result, error) {
		var i int
		fmt.Sscanf(p.Ref, "ref-%d", &i)
		// later pairs finish first
		time.Sleep(time.Duration(20-i) * time.Millisecond / 4)
		return &metric.Result{Score: float64(i)}, nil
	}

	var calls atomic.Int32
	results, err := Run(context.Background(), pairs, Options{
		Workers:  4,
		Score:    score,
		OnResult: func(int, Result) { calls.Add(1) },
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != len(pairs) {
		t.Fatalf("got %d results, want %d", len(results), len(pairs))
	}
	for i, r := range results {
		if r.Pair != pairs[i] || r.Score.Score != float64(i) {
			t.Errorf("result %d is %+v", i, r)
		}
	}
	if calls.Load() != int32(len(pairs)) {
		t.Errorf("OnResult called %d times, want %d", calls.Load(), len(pairs))
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	score := func(ctx context.Context, p Pair) (*metric.Result, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return &metric.Result{Score: 50}, nil
	}

	if _, err := Run(context.Background(), fakePairs(30), Options{Workers: 3, Score: score}); err != nil {
		t.Fatal(err)
	}
	if p := peak.Load(); p > 3 || p < 1 {
		t.Errorf("peak concurrency %d, want 1..3", p)
	}
}

func TestRunCapturesErrors(t *testing.T) {
	boom := errors.New("boom")
	score := func(ctx context.Context, p Pair) (*metric.Result, error) {
		if p.Ref == "ref-2" {
			return &metric.Result{Score: 1}, boom
		}
		return &metric.Result{Score: 70}, nil
	}

	results, err := Run(context.Background(), fakePairs(5), Options{Score: score})
	if err != nil {
		t.Fatalf("a failing pair must not fail the batch: %v", err)
	}
	for i, r := range results {
		if i == 2 {
			if !errors.Is(r.Err, boom) || r.Score != nil {
				t.Errorf("failed pair: %+v", r)
			}
			continue
		}
		if r.Err != nil || r.Score.Score != 70 {
			t.Errorf("pair %d: %+v", i, r)
		}
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	var startedCount atomic.Int32

	score := func(ctx context.Context, p Pair) (*metric.Result, error) {
		if startedCount.Add(1) == 1 {
			cancel()
		}
		<-release
		return &metric.Result{Score: 80}, nil
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	results, err := Run(ctx, fakePairs(50), Options{Workers: 2, Score: score})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if len(results) != 50 {
		t.Fatalf("got %d results, want 50", len(results))
	}

	var done, cancelled int
	for _, r := range results {
		switch {
		case r.Err == nil:
			done++
		case errors.Is(r.Err, context.Canceled):
			cancelled++
		}
	}
	if done == 0 || done > 4 {
		t.Errorf("%d pairs completed, want 1..4", done)
	}
	if done+cancelled != 50 {
		t.Errorf("%d completed + %d cancelled != 50", done, cancelled)
	}
}

func TestRunWithFiles(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "ref.png")
	dist := filepath.Join(dir, "dist.png")
	writeImage(t, ref, 0)
	writeImage(t, dist, 9)

	pairs := []Pair{
		{Ref: ref, Dist: ref},
		{Ref: ref, Dist: dist},
		{Ref: ref, Dist: filepath.Join(dir, "missing.png")},
	}
	results, err := Run(context.Background(), pairs, Options{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}

	if results[0].Err != nil || results[0].Score.Score != 100 {
		t.Errorf("identical pair: %+v", results[0])
	}
	if results[1].Err != nil || results[1].Score.Score >= 100 {
		t.Errorf("different pair: %+v", results[1])
	}
	if !errors.Is(results[2].Err, imageio.ErrFileNotFound) {
		t.Errorf("missing file: %v", results[2].Err)
	}

	rec := results[2].Record(false)
	if rec.Kind != "file_not_found" || !rec.Failed() {
		t.Errorf("failed record: %+v", rec)
	}
	rec = results[1].Record(true)
	if len(rec.Features) != metric.FeatureCount || rec.Score != results[1].Score.Score {
		t.Errorf("record has %d features, score %v", len(rec.Features), rec.Score)
	}
	if rec = results[1].Record(false); rec.Features != nil {
		t.Error("features included without being requested")
	}
}

func TestPairs(t *testing.T) {
	refDir := filepath.Join(t.TempDir(), "ref")
	distDir := filepath.Join(t.TempDir(), "dist")
	for _, d := range []string{refDir, distDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	touch := func(path string) {
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	touch(filepath.Join(refDir, "a.png"))
	touch(filepath.Join(refDir, "b.png"))
	touch(filepath.Join(refDir, "notes.txt"))
	touch(filepath.Join(distDir, "a.png"))
	touch(filepath.Join(distDir, "b.JPG"))
	touch(filepath.Join(distDir, "orphan.webp"))
	touch(filepath.Join(distDir, "readme.md"))

	pairs, err := Pairs(refDir, distDir)
	if err != nil {
		t.Fatalf("Pairs failed: %v", err)
	}
	want := []Pair{
		{filepath.Join(refDir, "a.png"), filepath.Join(distDir, "a.png")},
		{filepath.Join(refDir, "b.png"), filepath.Join(distDir, "b.JPG")},
	}
	if len(pairs) != len(want) {
		t.Fatalf("got %v, want %v", pairs, want)
	}
	for i := range want {
		if pairs[i] != want[i] {
			t.Errorf("pair %d = %v, want %v", i, pairs[i], want[i])
		}
	}

	if _, err := Pairs(refDir, t.TempDir()); err == nil {
		t.Error("expected error for empty distorted directory")
	}
	if _, err := Pairs(filepath.Join(refDir, "nope"), distDir); err == nil {
		t.Error("expected error for missing reference directory")
	}
}

func TestSummarize(t *testing.T) {
	var results []Result
	for _, s := range []float64{30, 10, 50, 20, 40} {
		results = append(results, Result{Score: &metric.Result{Score: s}})
	}
	results = append(results, Result{Err: errors.New("bad")})

	sum := Summarize(results)
	if sum.Count != 5 || sum.Failed != 1 {
		t.Errorf("count %d, failed %d", sum.Count, sum.Failed)
	}
	if sum.Mean != 30 || sum.Min != 10 || sum.Max != 50 {
		t.Errorf("mean %v, min %v, max %v", sum.Mean, sum.Min, sum.Max)
	}
	if math.Abs(sum.StdDev-math.Sqrt(250)) > 1e-9 {
		t.Errorf("stddev %v, want %v", sum.StdDev, math.Sqrt(250))
	}
	if sum.Median != 30 || sum.P10 != 10 {
		t.Errorf("median %v, p10 %v", sum.Median, sum.P10)
	}

	one := Summarize(results[:1])
	if one.Mean != 30 || one.StdDev != 0 || one.Median != 30 {
		t.Errorf("single result summary: %+v", one)
	}
	if none := Summarize(results[5:]); none.Count != 0 || none.Failed != 1 || none.Mean != 0 {
		t.Errorf("all-failed summary: %+v", none)
	}
}

func TestSummarizeRecords(t *testing.T) {
	var results []Result
	var records []store.Record
	for i, s := range []float64{72.5, 91, 64} {
		r := Result{Pair: fakePairs(3)[i], Score: &metric.Result{Score: s}}
		results = append(results, r)
		records = append(records, r.Record(false))
	}
	failed := Result{Pair: Pair{Ref: "a", Dist: "b"}, Err: metric.ErrSizeMismatch}
	results = append(results, failed)
	records = append(records, failed.Record(false))

	if got, want := SummarizeRecords(records), Summarize(results); got != want {
		t.Errorf("SummarizeRecords = %+v, want %+v", got, want)
	}
	if records[3].Kind != "size_mismatch" {
		t.Errorf("failed record kind %q", records[3].Kind)
	}
}
