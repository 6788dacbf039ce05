package store

import (
	"fmt"
	"time"
)

// Report sources.
const (
	SourceJob   = "job"
	SourceBatch = "batch"
)

// Record is the outcome of scoring one reference/distorted pair. It is the
// unit of both persisted reports and batch result streams.
type Record struct {
	Ref  string `json:"ref"`
	Dist string `json:"dist"`

	Score      float64 `json:"score"`
	Scales     int     `json:"scales,omitempty"`
	Composited bool    `json:"composited,omitempty"`
	Background float32 `json:"background,omitempty"`

	// Features is the full 108-entry feature vector, included on request
	Features []float64 `json:"features,omitempty"`

	// Error and Kind are set instead of the score fields on failure
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`

	Elapsed   time.Duration `json:"elapsedNs"`
	Timestamp time.Time     `json:"timestamp"`
}

// Failed reports whether the pair could not be scored.
func (r *Record) Failed() bool {
	return r.Error != ""
}

// Key identifies the pair a record belongs to.
func (r *Record) Key() string {
	return r.Ref + "\x00" + r.Dist
}

// Summary holds aggregate statistics over the successful records of a batch.
// This is a copy of the batch summary shape to avoid an import cycle.
type Summary struct {
	Count  int     `json:"count"`
	Failed int     `json:"failed"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
	P10    float64 `json:"p10"`
}

// Report is a persisted set of scores: a single server job or a whole batch
// run.
type Report struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
	Records   []Record  `json:"records"`
	Summary   *Summary  `json:"summary,omitempty"`
}

// ReportInfo is the listing view of a report, without its records.
type ReportInfo struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
	Pairs     int       `json:"pairs"`
	Failed    int       `json:"failed"`
}

// NewReport creates a report stamped with the current time.
func NewReport(id, source string, records []Record, summary *Summary) *Report {
	return &Report{
		ID:        id,
		Source:    source,
		CreatedAt: time.Now(),
		Records:   records,
		Summary:   summary,
	}
}

// ToInfo converts a full Report to its listing view.
func (r *Report) ToInfo() ReportInfo {
	info := ReportInfo{
		ID:        r.ID,
		Source:    r.Source,
		CreatedAt: r.CreatedAt,
		Pairs:     len(r.Records),
	}
	for i := range r.Records {
		if r.Records[i].Failed() {
			info.Failed++
		}
	}
	return info
}

// Validate checks if the report has valid data.
func (r *Report) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if r.Source != SourceJob && r.Source != SourceBatch {
		return &ValidationError{Field: "Source", Reason: fmt.Sprintf("unknown source %q", r.Source)}
	}
	if r.CreatedAt.IsZero() {
		return &ValidationError{Field: "CreatedAt", Reason: "cannot be zero"}
	}
	if len(r.Records) == 0 {
		return &ValidationError{Field: "Records", Reason: "cannot be empty"}
	}
	for i := range r.Records {
		rec := &r.Records[i]
		if rec.Ref == "" || rec.Dist == "" {
			return &ValidationError{Field: fmt.Sprintf("Records[%d]", i), Reason: "missing image path"}
		}
		if !rec.Failed() && rec.Score > 100 {
			return &ValidationError{Field: fmt.Sprintf("Records[%d].Score", i), Reason: "exceeds 100"}
		}
	}
	return nil
}

// ValidationError represents a report validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
