package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cwbudde/ssimulacra2"
	"github.com/cwbudde/ssimulacra2/internal/metric"
)

// errorResponse is the JSON body of every failed API request
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Code  int    `json:"code,omitempty"`
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeError reports a scoring error with its kind and a matching status
func writeError(w http.ResponseWriter, err error) {
	kind := ssimulacra2.KindOf(err)
	writeJSON(w, statusForKind(kind), errorResponse{
		Error: err.Error(),
		Kind:  kind.String(),
		Code:  int(kind),
	})
}

func statusForKind(kind ssimulacra2.ErrorKind) int {
	switch kind {
	case ssimulacra2.FileNotFound:
		return http.StatusNotFound
	case ssimulacra2.OutOfMemory:
		return http.StatusRequestEntityTooLarge
	case ssimulacra2.UnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case ssimulacra2.InvalidInput, ssimulacra2.SizeMismatch, ssimulacra2.TooSmall,
		ssimulacra2.CorruptData, ssimulacra2.EmptyData, ssimulacra2.DecodeFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// parseBackground parses an optional matte intensity form value
func parseBackground(s string) (*float32, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return nil, fmt.Errorf("background %q is not a number: %w", s, metric.ErrInvalidInput)
	}
	bg := float32(v)
	if err := metric.ValidateBackground(bg); err != nil {
		return nil, err
	}
	return &bg, nil
}

// scoreResponse is the JSON body of a synchronous comparison
type scoreResponse struct {
	Score      float64   `json:"score"`
	Scales     int       `json:"scales"`
	Composited bool      `json:"composited"`
	Background float32   `json:"background,omitempty"`
	Features   []float64 `json:"features,omitempty"`
	Elapsed    float64   `json:"elapsed"`
}
