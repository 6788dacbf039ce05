// Package ssimulacra2 scores the perceptual similarity of a distorted image
// to its reference with the SSIMULACRA2 metric.
//
// Scores are at most 100 for identical images. Roughly, 90 means visually
// lossless at normal viewing distance, 70 high quality, 50 medium quality
// and 30 low quality. Heavy distortion produces negative scores.
package ssimulacra2

import (
	"errors"
	"image"

	"github.com/cwbudde/ssimulacra2/internal/imageio"
	"github.com/cwbudde/ssimulacra2/internal/metric"
)

// Version is the SSIMULACRA2 model version implemented.
const Version = "2.1.0"

// VersionString names the model the way the reference tool reports it.
const VersionString = "SSIMULACRA 2.1"

type (
	// Result carries the score of a comparison along with its feature
	// vector.
	Result = metric.Result
	// Option configures a comparison.
	Option = metric.Option
)

// WithBackground composites images with alpha over one matte of the given
// intensity in [0,1]. Without it, a reference with alpha reports the worse
// score over a dark and a light matte, and an opaque reference uses
// metric.DefaultBackground. Opaque pairs are unaffected.
func WithBackground(intensity float32) Option {
	return metric.WithBackground(intensity)
}

// Compute scores two decoded images of identical size.
func Compute(ref, dist image.Image, opts ...Option) (*Result, error) {
	return metric.Compute(metric.FromImage(ref), metric.FromImage(dist), opts...)
}

// ComputeFromFiles decodes and scores two image files.
func ComputeFromFiles(refPath, distPath string, opts ...Option) (*Result, error) {
	ref, _, err := imageio.DecodeFile(refPath)
	if err != nil {
		return nil, err
	}
	dist, _, err := imageio.DecodeFile(distPath)
	if err != nil {
		return nil, err
	}
	return metric.Compute(ref, dist, opts...)
}

// ComputeFromFilesWithBackground is ComputeFromFiles over a single matte.
func ComputeFromFilesWithBackground(refPath, distPath string, background float32) (*Result, error) {
	return ComputeFromFiles(refPath, distPath, WithBackground(background))
}

// ComputeFromMemory decodes and scores two encoded images held in memory.
// Any format Sniff recognizes is accepted.
func ComputeFromMemory(ref, dist []byte, opts ...Option) (*Result, error) {
	refBuf, _, err := imageio.Decode(ref)
	if err != nil {
		return nil, err
	}
	distBuf, _, err := imageio.Decode(dist)
	if err != nil {
		return nil, err
	}
	return metric.Compute(refBuf, distBuf, opts...)
}

// ComputeFromMemoryWithBackground is ComputeFromMemory over a single matte.
func ComputeFromMemoryWithBackground(ref, dist []byte, background float32) (*Result, error) {
	return ComputeFromMemory(ref, dist, WithBackground(background))
}

// ErrorKind classifies an error returned by this package. The numeric
// values are stable and suitable for exit codes or foreign callers.
type ErrorKind int

const (
	OK                ErrorKind = 0
	InvalidInput      ErrorKind = -1
	FileNotFound      ErrorKind = -2
	UnsupportedFormat ErrorKind = -3
	SizeMismatch      ErrorKind = -4
	TooSmall          ErrorKind = -5
	OutOfMemory       ErrorKind = -6
	CorruptData       ErrorKind = -7
	EmptyData         ErrorKind = -8
	DecodeFailed      ErrorKind = -9
	Unknown           ErrorKind = -99
)

var kindInfo = map[ErrorKind]struct {
	name, message string
}{
	OK:                {"ok", "Success"},
	InvalidInput:      {"invalid_input", "Invalid input parameters"},
	FileNotFound:      {"file_not_found", "File not found or could not be loaded"},
	UnsupportedFormat: {"unsupported_format", "Unsupported image format"},
	SizeMismatch:      {"size_mismatch", "Image size mismatch"},
	TooSmall:          {"too_small", "Image too small (minimum 8x8 pixels)"},
	OutOfMemory:       {"out_of_memory", "Out of memory"},
	CorruptData:       {"corrupt_data", "Corrupt or invalid image data"},
	EmptyData:         {"empty_data", "Empty data buffer"},
	DecodeFailed:      {"decode_failed", "Failed to decode image data"},
	Unknown:           {"unknown", "Unknown error"},
}

func (k ErrorKind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return kindInfo[Unknown].name
}

// Message returns a human-readable description of the kind.
func (k ErrorKind) Message() string {
	if info, ok := kindInfo[k]; ok {
		return info.message
	}
	return kindInfo[Unknown].message
}

// kindOrder lists sentinels most specific first: a too-small image found
// while decoding is TooSmall, not a decode failure.
var kindOrder = []struct {
	err  error
	kind ErrorKind
}{
	{metric.ErrTooSmall, TooSmall},
	{metric.ErrSizeMismatch, SizeMismatch},
	{metric.ErrInvalidInput, InvalidInput},
	{imageio.ErrFileNotFound, FileNotFound},
	{imageio.ErrEmptyData, EmptyData},
	{imageio.ErrUnsupportedFormat, UnsupportedFormat},
	{imageio.ErrCorruptData, CorruptData},
	{imageio.ErrTooLarge, OutOfMemory},
	{imageio.ErrDecodeFailed, DecodeFailed},
}

// KindOf classifies err. It returns OK for nil and Unknown for errors that
// did not originate in this package.
func KindOf(err error) ErrorKind {
	if err == nil {
		return OK
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return Unknown
}
