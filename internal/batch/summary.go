package batch

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/ssimulacra2/internal/store"
)

// Summary aggregates the scores of a batch.
type Summary = store.Summary

// Summarize computes statistics over the successful results. Failed results
// are only counted. With fewer than two scores the standard deviation is 0.
func Summarize(results []Result) Summary {
	scores := make([]float64, 0, len(results))
	failed := 0
	for i := range results {
		if results[i].Err != nil || results[i].Score == nil {
			failed++
			continue
		}
		scores = append(scores, results[i].Score.Score)
	}
	return summarize(scores, failed)
}

// SummarizeRecords is Summarize over persisted records, used when a resumed
// batch combines earlier results with new ones.
func SummarizeRecords(records []store.Record) Summary {
	scores := make([]float64, 0, len(records))
	failed := 0
	for i := range records {
		if records[i].Failed() {
			failed++
			continue
		}
		scores = append(scores, records[i].Score)
	}
	return summarize(scores, failed)
}

func summarize(scores []float64, failed int) Summary {
	sum := Summary{Count: len(scores), Failed: failed}
	if sum.Count == 0 {
		return sum
	}

	sort.Float64s(scores)
	sum.Min = floats.Min(scores)
	sum.Max = floats.Max(scores)
	sum.Median = stat.Quantile(0.5, stat.Empirical, scores, nil)
	sum.P10 = stat.Quantile(0.1, stat.Empirical, scores, nil)
	if sum.Count == 1 {
		sum.Mean = scores[0]
	} else {
		sum.Mean, sum.StdDev = stat.MeanStdDev(scores, nil)
	}
	return sum
}
