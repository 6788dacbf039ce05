package metric

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Result is the outcome of one comparison.
type Result struct {
	// Score is at most MaxScore (identical images) and unbounded below.
	Score float64
	// Features holds the norms of the pass that produced Score.
	Features FeatureVector
	// Scales is the number of pyramid levels actually compared.
	Scales int
	// Composited reports whether alpha compositing was applied, and
	// Background the matte intensity used for the reported pass.
	Composited bool
	Background float32
}

type config struct {
	background    float32
	hasBackground bool
	parallel      bool
}

// Option configures Compute.
type Option func(*config)

// WithBackground composites images with alpha over a single matte of the
// given intensity instead of taking the worse of a dark and a light one.
// It has no effect on opaque images.
func WithBackground(intensity float32) Option {
	return func(c *config) {
		c.background = intensity
		c.hasBackground = true
	}
}

// Sequential disables the per-channel and per-matte goroutines. The score
// is bit-identical either way.
func Sequential() Option {
	return func(c *config) {
		c.parallel = false
	}
}

// Validate checks the preconditions of Compute without doing any work.
func Validate(ref, dist *PixelBuffer) error {
	if err := ref.validate("reference"); err != nil {
		return err
	}
	if err := dist.validate("distorted"); err != nil {
		return err
	}
	if ref.Width != dist.Width || ref.Height != dist.Height {
		return fmt.Errorf("%dx%d vs %dx%d: %w", ref.Width, ref.Height, dist.Width, dist.Height, ErrSizeMismatch)
	}
	if ref.Width < MinSize || ref.Height < MinSize {
		return fmt.Errorf("%dx%d, minimum is %dx%d: %w", ref.Width, ref.Height, MinSize, MinSize, ErrTooSmall)
	}
	return nil
}

// ValidateBackground checks a matte intensity lies in [0,1].
func ValidateBackground(intensity float32) error {
	if math.IsNaN(float64(intensity)) || intensity < 0 || intensity > 1 {
		return fmt.Errorf("background intensity %v outside [0,1]: %w", intensity, ErrInvalidInput)
	}
	return nil
}

// Compute scores a distorted image against its reference.
//
// Whether alpha is handled is decided by the reference. Without reference
// alpha the pair is compared once; a distorted image with alpha is then
// composited over the WithBackground intensity, or DefaultBackground. With
// reference alpha both images are composited over the WithBackground
// intensity when given, otherwise over DarkBackground and LightBackground,
// reporting the lower of the two scores.
func Compute(ref, dist *PixelBuffer, opts ...Option) (*Result, error) {
	cfg := config{parallel: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := Validate(ref, dist); err != nil {
		return nil, err
	}
	if cfg.hasBackground {
		if err := ValidateBackground(cfg.background); err != nil {
			return nil, err
		}
	}

	if !ref.HasAlpha {
		if !dist.HasAlpha {
			return computePass(ref, dist, cfg.parallel), nil
		}
		background := DefaultBackground
		if cfg.hasBackground {
			background = cfg.background
		}
		return computeComposited(ref, dist, background, cfg.parallel), nil
	}

	if cfg.hasBackground {
		res := computeComposited(ref, dist, cfg.background, cfg.parallel)
		return res, nil
	}

	var dark, light *Result
	if cfg.parallel {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			dark = computeComposited(ref, dist, DarkBackground, true)
		}()
		go func() {
			defer wg.Done()
			light = computeComposited(ref, dist, LightBackground, true)
		}()
		wg.Wait()
	} else {
		dark = computeComposited(ref, dist, DarkBackground, false)
		light = computeComposited(ref, dist, LightBackground, false)
	}

	slog.Debug("Alpha passes complete", "dark", dark.Score, "light", light.Score)

	if light.Score < dark.Score {
		return light, nil
	}
	return dark, nil
}

func computeComposited(ref, dist *PixelBuffer, background float32, parallel bool) *Result {
	res := computePass(Composite(ref, background), Composite(dist, background), parallel)
	res.Composited = true
	res.Background = background
	return res
}

// computePass runs color transform, pyramid, statistics, norms and score
// combination for one pair of opaque buffers.
func computePass(ref, dist *PixelBuffer, parallel bool) *Result {
	res := &Result{}
	pyr := NewPyramid(Linearize(ref), Linearize(dist))

	for {
		refLin, distLin, ok := pyr.Next()
		if !ok {
			break
		}
		scale := pyr.Scale()
		res.Features.addScale(scale, ToXYB(refLin), ToXYB(distLin), parallel)
		res.Scales++
	}

	res.Score = Combine(&res.Features, res.Scales)
	slog.Debug("Comparison pass complete",
		"width", ref.Width, "height", ref.Height,
		"scales", res.Scales, "score", res.Score)
	return res
}

// addScale computes the maps of every channel at one scale and stores their
// norms. Channels run concurrently when parallel is set; each goroutine owns
// its scratch space and writes disjoint feature positions.
func (f *FeatureVector) addScale(scale int, ref, dist *Image3, parallel bool) {
	w, h := ref.Width, ref.Height

	channel := func(c int) {
		maps := newStatMaps(w, h)
		newChannelStats(w, h).compute(ref.Planes[c], dist.Planes[c], maps)
		f.aggregate(scale, c, maps)
	}

	if !parallel {
		for c := 0; c < NumChannels; c++ {
			channel(c)
		}
		return
	}

	var wg sync.WaitGroup
	for c := 0; c < NumChannels; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			channel(c)
		}()
	}
	wg.Wait()
}
