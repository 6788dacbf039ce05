package metric

import "fmt"

const (
	// NumScales is the number of pyramid levels compared.
	NumScales = 6

	// MinSize is the smallest width or height the metric accepts. A coarser
	// level is only built while the level above it is at least this large.
	MinSize = 8
)

// Downsample halves an image with a 2x2 box filter. For odd dimensions the
// last output row/column averages the edge-clamped block, so its size is
// ceil(n/2) and no input sample is dropped.
func Downsample(in *Image3) *Image3 {
	outW := (in.Width + 1) / 2
	outH := (in.Height + 1) / 2
	out := NewImage3(outW, outH)

	const normalize = 1.0 / 4
	for c := range in.Planes {
		src := in.Planes[c]
		dst := out.Planes[c]
		for oy := 0; oy < outH; oy++ {
			y0 := 2 * oy
			y1 := min(y0+1, in.Height-1)
			row0 := src[y0*in.Width : (y0+1)*in.Width]
			row1 := src[y1*in.Width : (y1+1)*in.Width]
			for ox := 0; ox < outW; ox++ {
				x0 := 2 * ox
				x1 := min(x0+1, in.Width-1)
				var sum float32
				sum += row0[x0]
				sum += row0[x1]
				sum += row1[x0]
				sum += row1[x1]
				dst[oy*outW+ox] = sum * normalize
			}
		}
	}
	return out
}

// Pyramid walks the reference and distorted images down the scale levels in
// lockstep. Only the current level pair is retained.
type Pyramid struct {
	ref, dist *Image3
	scale     int
}

// NewPyramid starts a pyramid at full resolution. The images must already
// have identical dimensions; a mismatch here is a caller bug.
func NewPyramid(ref, dist *Image3) *Pyramid {
	if ref.Width != dist.Width || ref.Height != dist.Height {
		panic(fmt.Sprintf("pyramid: dimensions differ: %dx%d vs %dx%d",
			ref.Width, ref.Height, dist.Width, dist.Height))
	}
	return &Pyramid{ref: ref, dist: dist, scale: -1}
}

// Next advances to the next level and returns it. ok is false once
// NumScales levels were produced or the previous level is below MinSize.
func (p *Pyramid) Next() (ref, dist *Image3, ok bool) {
	switch {
	case p.scale+1 >= NumScales:
		return nil, nil, false
	case p.scale >= 0:
		if p.ref.Width < MinSize || p.ref.Height < MinSize {
			return nil, nil, false
		}
		p.ref = Downsample(p.ref)
		p.dist = Downsample(p.dist)
	}
	p.scale++
	return p.ref, p.dist, true
}

// Scale returns the index of the current level, or -1 before the first
// call to Next.
func (p *Pyramid) Scale() int {
	return p.scale
}
