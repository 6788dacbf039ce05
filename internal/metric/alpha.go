package metric

// Matte intensities used when an image has transparency and the caller did
// not choose one. Blending artifacts can hide against one and show against
// the other.
const (
	DarkBackground  float32 = 0.1
	LightBackground float32 = 0.9
)

// DefaultBackground is the matte for a distorted image with alpha compared
// against an opaque reference.
const DefaultBackground float32 = 0.5

// Composite blends a buffer with alpha over a solid gray background of the
// given intensity, returning an opaque buffer. A buffer without alpha is
// returned unchanged.
func Composite(buf *PixelBuffer, background float32) *PixelBuffer {
	if !buf.HasAlpha {
		return buf
	}

	out := NewPixelBuffer(buf.Width, buf.Height, false)
	for i, j := 0, 0; i < len(buf.Pix); i, j = i+4, j+3 {
		a := buf.Pix[i+3]
		bg := (1 - a) * background
		out.Pix[j+0] = a*buf.Pix[i+0] + bg
		out.Pix[j+1] = a*buf.Pix[i+1] + bg
		out.Pix[j+2] = a*buf.Pix[i+2] + bg
	}
	return out
}
