// Package batch scores many reference/distorted pairs concurrently.
package batch

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/cwbudde/ssimulacra2"
	"github.com/cwbudde/ssimulacra2/internal/imageio"
	"github.com/cwbudde/ssimulacra2/internal/metric"
	"github.com/cwbudde/ssimulacra2/internal/store"
)

// Pair names the two image files of one comparison.
type Pair struct {
	Ref  string `json:"ref"`
	Dist string `json:"dist"`
}

// Result is the outcome of one pair. Exactly one of Score and Err is set.
type Result struct {
	Pair
	Score   *metric.Result
	Err     error
	Elapsed time.Duration
}

// Record converts the result into its persisted form. The feature vector
// is included only when withFeatures is set.
func (r *Result) Record(withFeatures bool) store.Record {
	rec := store.Record{
		Ref:       r.Ref,
		Dist:      r.Dist,
		Elapsed:   r.Elapsed,
		Timestamp: time.Now(),
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
		rec.Kind = ssimulacra2.KindOf(r.Err).String()
		return rec
	}
	rec.Score = r.Score.Score
	rec.Scales = r.Score.Scales
	rec.Composited = r.Score.Composited
	rec.Background = r.Score.Background
	if withFeatures {
		rec.Features = append([]float64(nil), r.Score.Features[:]...)
	}
	return rec
}

// ScoreFunc scores one pair.
type ScoreFunc func(ctx context.Context, p Pair) (*metric.Result, error)

// Options configures Run.
type Options struct {
	// Workers bounds the number of pairs scored at once. Zero means one per
	// CPU.
	Workers int

	// Score overrides how a pair is scored. The default decodes both files
	// and runs the metric with MetricOptions.
	Score ScoreFunc

	// MetricOptions are passed to every comparison of the default scorer.
	MetricOptions []metric.Option

	// OnResult is called once per pair as soon as it completes, in
	// completion order. Calls are serialized.
	OnResult func(index int, r Result)
}

// FileScorer returns the default ScoreFunc: decode both files, then
// compare.
func FileScorer(opts ...metric.Option) ScoreFunc {
	return func(ctx context.Context, p Pair) (*metric.Result, error) {
		ref, _, err := imageio.DecodeFile(p.Ref)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dist, _, err := imageio.DecodeFile(p.Dist)
		if err != nil {
			return nil, err
		}
		return metric.Compute(ref, dist, opts...)
	}
}

// Run scores every pair with a bounded worker pool. The returned slice has
// one entry per pair, in input order. A pair that fails records its error
// and the batch carries on.
//
// When ctx is cancelled no further pairs are started, pairs in flight are
// allowed to finish, and every pair that never started gets ctx.Err(). Run
// then returns ctx.Err() alongside the partial results.
func Run(ctx context.Context, pairs []Pair, opts Options) ([]Result, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = max(1, min(workers, len(pairs)))

	score := opts.Score
	if score == nil {
		score = FileScorer(opts.MetricOptions...)
	}

	results := make([]Result, len(pairs))
	indices := make(chan int)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				start := time.Now()
				res, err := score(ctx, pairs[i])
				r := Result{Pair: pairs[i], Score: res, Err: err, Elapsed: time.Since(start)}
				if err != nil {
					r.Score = nil
					slog.Debug("Pair failed", "ref", r.Ref, "dist", r.Dist, "error", err)
				}
				results[i] = r

				if opts.OnResult != nil {
					mu.Lock()
					opts.OnResult(i, r)
					mu.Unlock()
				}
			}
		}()
	}

	started := 0
dispatch:
	for i := range pairs {
		select {
		case <-ctx.Done():
			break dispatch
		case indices <- i:
			started++
		}
	}
	close(indices)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		for i := started; i < len(pairs); i++ {
			results[i] = Result{Pair: pairs[i], Err: err}
		}
		slog.Info("Batch cancelled", "started", started, "total", len(pairs))
		return results, err
	}

	slog.Debug("Batch complete", "pairs", len(pairs), "workers", workers)
	return results, nil
}
