package metric

import "math"

// MapType identifies one per-pixel error map.
type MapType int

const (
	// MapSSIM is 1 - SSIM, with the luminance term's denominator dropped.
	MapSSIM MapType = iota
	// MapArtifact measures edges in the distorted image where the reference
	// is smooth: ringing, banding, blockiness.
	MapArtifact
	// MapDetailLost measures edges in the reference that are smoothed away
	// in the distorted image: blur, smearing.
	MapDetailLost

	NumMaps = 3
)

func (m MapType) String() string {
	switch m {
	case MapSSIM:
		return "ssim"
	case MapArtifact:
		return "artifact"
	case MapDetailLost:
		return "detail_lost"
	default:
		return "unknown"
	}
}

// ssimC2 stabilizes the contrast/structure term against near-zero variance.
const ssimC2 = 0.0009

// StatMaps holds the error maps of one channel at one scale. Every map has
// Width*Height entries; the ideal value everywhere is 0.
type StatMaps struct {
	Width  int
	Height int
	Maps   [NumMaps][]float64
}

// channelStats computes local moments of a reference/distorted plane pair
// and derives the error maps. The scratch buffers are owned by the caller so
// one worker can reuse them across channels.
type channelStats struct {
	blur                    *blurrer
	mu1, mu2, s11, s22, s12 []float32
	mul                     []float32
}

func newChannelStats(width, height int) *channelStats {
	n := width * height
	return &channelStats{
		blur: newBlurrer(width, height),
		mu1:  make([]float32, n),
		mu2:  make([]float32, n),
		s11:  make([]float32, n),
		s22:  make([]float32, n),
		s12:  make([]float32, n),
		mul:  make([]float32, n),
	}
}

// compute fills maps for planes x1 (reference) and x2 (distorted).
func (cs *channelStats) compute(x1, x2 []float32, maps *StatMaps) {
	for i := range x1 {
		cs.mul[i] = x1[i] * x1[i]
	}
	cs.blur.blur(cs.mul, cs.s11)

	for i := range x2 {
		cs.mul[i] = x2[i] * x2[i]
	}
	cs.blur.blur(cs.mul, cs.s22)

	for i := range x1 {
		cs.mul[i] = x1[i] * x2[i]
	}
	cs.blur.blur(cs.mul, cs.s12)

	cs.blur.blur(x1, cs.mu1)
	cs.blur.blur(x2, cs.mu2)

	ssimMap(cs.mu1, cs.mu2, cs.s11, cs.s22, cs.s12, maps.Maps[MapSSIM])
	edgeMaps(x1, cs.mu1, x2, cs.mu2, maps.Maps[MapArtifact], maps.Maps[MapDetailLost])
}

// ComputeStatMaps computes the error maps of a single plane pair. It is the
// sequential entry point; the orchestrator reuses scratch space instead.
func ComputeStatMaps(ref, dist []float32, width, height int) *StatMaps {
	maps := newStatMaps(width, height)
	newChannelStats(width, height).compute(ref, dist, maps)
	return maps
}

func newStatMaps(width, height int) *StatMaps {
	m := &StatMaps{Width: width, Height: height}
	for i := range m.Maps {
		m.Maps[i] = make([]float64, width*height)
	}
	return m
}

// ssimMap writes 1 - SSIM per pixel, clamped at 0.
//
// The classic luminance term 2*mu1*mu2/(mu1^2+mu2^2) equals
// 1 - (mu1-mu2)^2/(mu1^2+mu2^2). Its denominator weighs errors in the darks
// more than in the brights, which only makes sense for linear luma; the XYB
// values are already perceptually spaced, so the denominator is dropped.
func ssimMap(mu1, mu2, s11, s22, s12 []float32, out []float64) {
	for i := range out {
		m1, m2 := mu1[i], mu2[i]
		mu11 := m1 * m1
		mu22 := m2 * m2
		mu12 := m1 * m2
		numM := float32(1.0 - (m1-m2)*(m1-m2))
		numS := 2*(s12[i]-mu12) + ssimC2
		denomS := (s11[i] - mu11) + (s22[i] - mu22) + ssimC2

		d := 1.0 - float64(numM*numS/denomS)
		out[i] = math.Max(d, 0)
	}
}

// edgeMaps compares the local high-frequency magnitude |x - mu| of both
// images. A ratio above 1 means the distorted image gained edges, below 1
// means it lost them.
func edgeMaps(x1, mu1, x2, mu2 []float32, artifact, detailLost []float64) {
	for i := range artifact {
		e1 := float64(abs32(x1[i] - mu1[i]))
		e2 := float64(abs32(x2[i] - mu2[i]))
		d := (1.0+e2)/(1.0+e1) - 1.0

		artifact[i] = math.Max(d, 0)
		detailLost[i] = math.Max(-d, 0)
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
