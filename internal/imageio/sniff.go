package imageio

import (
	"bytes"
	"fmt"
	"strings"
)

// Format names an image container. The values match the names the image
// package registers decoders under.
type Format string

const (
	FormatUnknown Format = ""
	FormatPNG     Format = "png"
	FormatJPEG    Format = "jpeg"
	FormatGIF     Format = "gif"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatWebP    Format = "webp"
)

func (f Format) String() string {
	if f == FormatUnknown {
		return "unknown"
	}
	return strings.ToUpper(string(f))
}

// headerLen is the number of leading bytes reported by Analyze.
const headerLen = 16

var magics = []struct {
	format Format
	match  func([]byte) bool
}{
	{FormatPNG, prefix("\x89PNG\r\n\x1a\n")},
	{FormatJPEG, prefix("\xff\xd8\xff")},
	{FormatGIF, func(b []byte) bool {
		return bytes.HasPrefix(b, []byte("GIF87a")) || bytes.HasPrefix(b, []byte("GIF89a"))
	}},
	{FormatBMP, prefix("BM")},
	{FormatTIFF, func(b []byte) bool {
		return bytes.HasPrefix(b, []byte("II*\x00")) || bytes.HasPrefix(b, []byte("MM\x00*"))
	}},
	{FormatWebP, func(b []byte) bool {
		return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WEBP"
	}},
}

func prefix(magic string) func([]byte) bool {
	return func(b []byte) bool {
		return bytes.HasPrefix(b, []byte(magic))
	}
}

// Sniff identifies the container format from the leading magic bytes.
func Sniff(data []byte) Format {
	for _, m := range magics {
		if m.match(data) {
			return m.format
		}
	}
	return FormatUnknown
}

// Analyze describes the header of data for error reports: its size, the
// first bytes in hex and the format they suggest.
func Analyze(data []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, "size: %d bytes", len(data))
	if len(data) == 0 {
		b.WriteString("; format: empty")
		return b.String()
	}

	n := min(len(data), headerLen)
	fmt.Fprintf(&b, "; first %d bytes: % x", n, data[:n])

	switch f := Sniff(data); {
	case f != FormatUnknown:
		fmt.Fprintf(&b, "; format: %s", f)
	case len(data) < 4:
		b.WriteString("; format: too small to identify")
	default:
		b.WriteString("; format: unknown")
	}
	return b.String()
}
