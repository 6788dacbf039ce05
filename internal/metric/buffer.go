package metric

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// PixelBuffer holds a decoded image as interleaved float samples.
//
// Samples are gamma-encoded sRGB in [0,1]. When HasAlpha is set every pixel
// carries a fourth, straight (non-premultiplied) alpha sample.
type PixelBuffer struct {
	Width    int
	Height   int
	HasAlpha bool
	Pix      []float32
}

// NewPixelBuffer allocates a zeroed buffer of the given size.
func NewPixelBuffer(width, height int, hasAlpha bool) *PixelBuffer {
	b := &PixelBuffer{Width: width, Height: height, HasAlpha: hasAlpha}
	b.Pix = make([]float32, width*height*b.Channels())
	return b
}

// Channels returns the number of samples per pixel (3 or 4).
func (b *PixelBuffer) Channels() int {
	if b.HasAlpha {
		return 4
	}
	return 3
}

// Offset returns the index of the first sample of pixel (x, y).
func (b *PixelBuffer) Offset(x, y int) int {
	return (y*b.Width + x) * b.Channels()
}

// validate checks the buffer is non-empty, its sample slice matches its
// declared geometry and every sample is finite.
func (b *PixelBuffer) validate(name string) error {
	if b == nil {
		return fmt.Errorf("%s image is nil: %w", name, ErrInvalidInput)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%s image is empty (%dx%d): %w", name, b.Width, b.Height, ErrInvalidInput)
	}
	if want := b.Width * b.Height * b.Channels(); len(b.Pix) != want {
		return fmt.Errorf("%s image has %d samples, want %d: %w", name, len(b.Pix), want, ErrInvalidInput)
	}
	for i, v := range b.Pix {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%s image has non-finite sample %v at %d: %w", name, v, i, ErrInvalidInput)
		}
	}
	return nil
}

// FromImage converts any image.Image into a PixelBuffer with 16-bit sample
// precision. Alpha is kept only when the image reports itself as not opaque.
func FromImage(img image.Image) *PixelBuffer {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	hasAlpha := true
	if o, ok := img.(interface{ Opaque() bool }); ok {
		hasAlpha = !o.Opaque()
	}

	buf := NewPixelBuffer(width, height, hasAlpha)
	ch := buf.Channels()

	// Fast path for the layout most decoders produce
	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := 0; y < height; y++ {
			src := nrgba.Pix[nrgba.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			dst := buf.Pix[y*width*ch:]
			for x := 0; x < width; x++ {
				s := src[x*4 : x*4+4]
				d := dst[x*ch : x*ch+ch]
				d[0] = float32(s[0]) / 255
				d[1] = float32(s[1]) / 255
				d[2] = float32(s[2]) / 255
				if hasAlpha {
					d[3] = float32(s[3]) / 255
				}
			}
		}
		return buf
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
			buf.Pix[i+0] = float32(c.R) / 65535
			buf.Pix[i+1] = float32(c.G) / 65535
			buf.Pix[i+2] = float32(c.B) / 65535
			if hasAlpha {
				buf.Pix[i+3] = float32(c.A) / 65535
			}
			i += ch
		}
	}
	return buf
}

// Image3 is a three-plane float image. It holds linear RGB before the color
// transform and positive XYB after it.
type Image3 struct {
	Width  int
	Height int
	Planes [3][]float32
}

// NewImage3 allocates a zeroed three-plane image.
func NewImage3(width, height int) *Image3 {
	img := &Image3{Width: width, Height: height}
	for c := range img.Planes {
		img.Planes[c] = make([]float32, width*height)
	}
	return img
}
