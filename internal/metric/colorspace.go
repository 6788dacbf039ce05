package metric

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Opsin absorbance matrix and bias of the XYB color space. Rows mix linear
// RGB into the long, medium and short cone responses.
const (
	opsinM00 = 0.30
	opsinM01 = 1.0 - opsinM02 - opsinM00
	opsinM02 = 0.078
	opsinM10 = 0.23
	opsinM11 = 1.0 - opsinM12 - opsinM10
	opsinM12 = 0.078
	opsinM20 = 0.24342268924547819
	opsinM21 = 0.20476744424496821
	opsinM22 = 1.0 - opsinM20 - opsinM21

	opsinBias = 0.0037930732552754493
)

var negBiasCbrt = -float32(math.Cbrt(opsinBias))

const linearLUTSize = 1 << 16

// linearLUT maps every 16-bit encoded sample k/65535 to linear light.
var linearLUT = func() []float32 {
	lut := make([]float32, linearLUTSize)
	for i := range lut {
		lut[i] = float32(srgbToLinear64(float64(i) / (linearLUTSize - 1)))
	}
	return lut
}()

func srgbToLinear64(v float64) float64 {
	r, _, _ := colorful.Color{R: v, G: v, B: v}.LinearRgb()
	return r
}

// srgbToLinear inverts the sRGB transfer function. Samples on the 16-bit
// grid (all decoder output) come from the table; blended samples are
// evaluated exactly.
func srgbToLinear(v float32) float32 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 1
	}
	idx := int(v*(linearLUTSize-1) + 0.5)
	if float32(idx)/(linearLUTSize-1) == v {
		return linearLUT[idx]
	}
	return float32(srgbToLinear64(float64(v)))
}

// Linearize converts the RGB samples of an opaque buffer to planar linear
// light. An alpha channel, if present, is ignored; compositing must happen
// before this step.
func Linearize(buf *PixelBuffer) *Image3 {
	out := NewImage3(buf.Width, buf.Height)
	ch := buf.Channels()
	r, g, b := out.Planes[0], out.Planes[1], out.Planes[2]
	for i, j := 0, 0; i < len(r); i, j = i+1, j+ch {
		r[i] = srgbToLinear(buf.Pix[j+0])
		g[i] = srgbToLinear(buf.Pix[j+1])
		b[i] = srgbToLinear(buf.Pix[j+2])
	}
	return out
}

// ToXYB converts a linear RGB image to the positive XYB representation used
// for comparison: X scaled and offset, Y offset, and B expressed relative to
// Y so all three channels are non-negative for in-gamut input.
func ToXYB(lin *Image3) *Image3 {
	out := NewImage3(lin.Width, lin.Height)
	r, g, b := lin.Planes[0], lin.Planes[1], lin.Planes[2]
	ox, oy, ob := out.Planes[0], out.Planes[1], out.Planes[2]

	for i := range r {
		x, y, bb := linearToXYB(r[i], g[i], b[i])
		ob[i] = (bb - y) + 0.55
		ox[i] = x*14 + 0.42
		oy[i] = y + 0.01
	}
	return out
}

// linearToXYB maps one linear RGB pixel into XYB.
func linearToXYB(r, g, b float32) (x, y, bb float32) {
	m0 := opsinM00*r + opsinM01*g + opsinM02*b + opsinBias
	m1 := opsinM10*r + opsinM11*g + opsinM12*b + opsinBias
	m2 := opsinM20*r + opsinM21*g + opsinM22*b + opsinBias

	// Wide-gamut input can push the mix slightly negative
	m0 = cbrtPlusBias(m0)
	m1 = cbrtPlusBias(m1)
	m2 = cbrtPlusBias(m2)

	x = 0.5 * (m0 - m1)
	y = 0.5 * (m0 + m1)
	return x, y, m2
}

func cbrtPlusBias(v float32) float32 {
	if v < 0 {
		v = 0
	}
	return float32(math.Cbrt(float64(v))) + negBiasCbrt
}
