// Package imageio decodes image files into metric pixel buffers.
//
// PNG, JPEG and GIF come from the standard library, BMP, TIFF and WebP from
// golang.org/x/image. Failures are reported as *DecodeError carrying a
// header analysis of the offending data.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"io/fs"
	"log/slog"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/cwbudde/ssimulacra2/internal/metric"
)

var (
	ErrFileNotFound      = errors.New("file not found")
	ErrEmptyData         = errors.New("empty image data")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrCorruptData       = errors.New("corrupt or truncated image data")
	ErrDecodeFailed      = errors.New("image decode failed")

	// ErrTooLarge reports an image whose pixel count exceeds MaxPixels. It
	// is checked from the header before any pixel memory is allocated.
	ErrTooLarge = errors.New("image too large")
)

// MaxPixels bounds width*height of a decoded image.
const MaxPixels = 1 << 28

// DecodeError is returned for every decode failure.
type DecodeError struct {
	// Path is the file name, empty for in-memory data.
	Path string
	// Analysis is the header report from Analyze.
	Analysis string
	Err      error
}

func (e *DecodeError) Error() string {
	src := e.Path
	if src == "" {
		src = "<memory>"
	}
	if e.Analysis == "" {
		return fmt.Sprintf("decode %s: %v", src, e.Err)
	}
	return fmt.Sprintf("decode %s: %v (%s)", src, e.Err, e.Analysis)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode decodes an in-memory image. It returns the buffer and the format
// name. Images smaller than metric.MinSize in either dimension are rejected
// with an error wrapping metric.ErrTooSmall.
func Decode(data []byte) (*metric.PixelBuffer, Format, error) {
	return decode("", data)
}

// DecodeFile reads and decodes the image at path.
func DecodeFile(path string) (*metric.PixelBuffer, Format, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, FormatUnknown, &DecodeError{Path: path, Err: ErrFileNotFound}
		}
		return nil, FormatUnknown, &DecodeError{Path: path, Err: fmt.Errorf("read: %w", err)}
	}
	return decode(path, data)
}

func decode(path string, data []byte) (*metric.PixelBuffer, Format, error) {
	fail := func(err error) (*metric.PixelBuffer, Format, error) {
		return nil, FormatUnknown, &DecodeError{Path: path, Analysis: Analyze(data), Err: err}
	}

	if len(data) == 0 {
		return fail(ErrEmptyData)
	}
	if Sniff(data) == FormatUnknown {
		return fail(ErrUnsupportedFormat)
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fail(classify(err))
	}
	if cfg.Width < metric.MinSize || cfg.Height < metric.MinSize {
		return fail(fmt.Errorf("%dx%d, minimum is %dx%d: %w",
			cfg.Width, cfg.Height, metric.MinSize, metric.MinSize, metric.ErrTooSmall))
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return fail(fmt.Errorf("%dx%d exceeds %d pixels: %w", cfg.Width, cfg.Height, MaxPixels, ErrTooLarge))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fail(classify(err))
	}

	buf := metric.FromImage(img)
	slog.Debug("Decoded image", "path", path, "format", name,
		"width", buf.Width, "height", buf.Height, "alpha", buf.HasAlpha)
	return buf, Format(name), nil
}

// classify maps a codec error onto the package sentinels, keeping the codec
// message.
func classify(err error) error {
	switch {
	case errors.Is(err, image.ErrFormat):
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return fmt.Errorf("%w: %v", ErrCorruptData, err)
	default:
		return fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
}
