package metric

import (
	"errors"
	"image"
	"image/color"
	"math"
	"runtime"
	"testing"
)

func TestComputeIdentity(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
	}{
		{"minimum", 8, 8},
		{"odd", 37, 23},
		{"square", 64, 64},
		{"wide", 300, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := FromImage(texturedImage(tt.width, tt.height, 1))
			res := mustCompute(t, img, img)
			if res.Score != MaxScore {
				t.Errorf("identical images scored %v, want %v", res.Score, MaxScore)
			}
			for i, f := range res.Features {
				if f != 0 {
					t.Fatalf("feature %d = %v for identical images, want 0", i, f)
				}
			}
		})
	}
}

func TestComputeSolidGrayNoise(t *testing.T) {
	ref := solidImage(64, 64, 128)
	refBuf := FromImage(ref)

	same := mustCompute(t, refBuf, FromImage(solidImage(64, 64, 128)))
	if same.Score != MaxScore {
		t.Fatalf("identical gray images scored %v, want 100", same.Score)
	}

	const sigma = 8.0
	noisy := mustCompute(t, refBuf, FromImage(addNoise(ref, sigma, 7)))
	noisier := mustCompute(t, refBuf, FromImage(addNoise(ref, 2*sigma, 7)))

	if noisy.Score >= MaxScore {
		t.Errorf("noise sigma %v scored %v, want < 100", sigma, noisy.Score)
	}
	if noisier.Score >= noisy.Score {
		t.Errorf("noise sigma %v scored %v, not below sigma %v score %v",
			2*sigma, noisier.Score, sigma, noisy.Score)
	}
}

func TestComputeMonotonicUnderBlur(t *testing.T) {
	src := texturedImage(128, 96, 3)
	ref := FromImage(src)

	prev := MaxScore
	for _, sigma := range []float32{0.5, 1, 2, 4} {
		res := mustCompute(t, ref, FromImage(gaussianBlur(src, sigma)))
		if res.Score > prev {
			t.Errorf("blur sigma %v scored %v, above weaker blur's %v", sigma, res.Score, prev)
		}
		if res.Score > MaxScore {
			t.Errorf("score %v exceeds %v", res.Score, MaxScore)
		}
		prev = res.Score
	}

	// Blur removes detail, so the detail-lost maps must register it
	res := mustCompute(t, ref, FromImage(gaussianBlur(src, 2)))
	if res.Features.At(0, 1, MapDetailLost, NormAverage) <= 0 {
		t.Error("blur produced no detail-lost error at full resolution")
	}
}

func TestComputeBounded(t *testing.T) {
	ref := FromImage(texturedImage(48, 48, 1))
	for seed := int64(2); seed < 6; seed++ {
		res := mustCompute(t, ref, FromImage(texturedImage(48, 48, seed)))
		if res.Score > MaxScore {
			t.Errorf("seed %d: score %v exceeds %v", seed, res.Score, MaxScore)
		}
	}

	black := FromImage(solidImage(32, 32, 0))
	white := FromImage(solidImage(32, 32, 255))
	res := mustCompute(t, black, white)
	if res.Score >= MaxScore {
		t.Errorf("black vs white scored %v", res.Score)
	}
}

func TestComputeAlphaTakesWorseBackground(t *testing.T) {
	ref := FromImage(withAlpha(texturedImage(64, 64, 1)))
	dist := FromImage(withAlpha(addNoise(texturedImage(64, 64, 1), 12, 9)))
	if !ref.HasAlpha || !dist.HasAlpha {
		t.Fatal("test images lost their alpha channel")
	}

	dark := mustCompute(t, ref, dist, WithBackground(DarkBackground))
	light := mustCompute(t, ref, dist, WithBackground(LightBackground))
	both := mustCompute(t, ref, dist)

	want := math.Min(dark.Score, light.Score)
	if both.Score != want {
		t.Errorf("default alpha score %v, want min(%v, %v) = %v", both.Score, dark.Score, light.Score, want)
	}
	if !both.Composited {
		t.Error("alpha comparison not marked as composited")
	}
	if both.Background != DarkBackground && both.Background != LightBackground {
		t.Errorf("reported background %v is neither matte", both.Background)
	}
}

func TestComputeOpaqueReferenceDecidesAlpha(t *testing.T) {
	ref := FromImage(texturedImage(48, 48, 1))
	dist := FromImage(withAlpha(addNoise(texturedImage(48, 48, 1), 10, 3)))
	if ref.HasAlpha || !dist.HasAlpha {
		t.Fatal("test images have the wrong alpha layout")
	}

	single := mustCompute(t, ref, dist, WithBackground(DefaultBackground))
	tests := []struct {
		name       string
		opts       []Option
		background float32
		want       float64
	}{
		{"default matte", nil, DefaultBackground, single.Score},
		{"explicit matte", []Option{WithBackground(LightBackground)}, LightBackground,
			mustCompute(t, Composite(ref, LightBackground), Composite(dist, LightBackground)).Score},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := mustCompute(t, ref, dist, tt.opts...)
			if res.Score != tt.want {
				t.Errorf("Expected score %v, got %v", tt.want, res.Score)
			}
			if !res.Composited || res.Background != tt.background {
				t.Errorf("Expected composited over %v, got %v over %v", tt.background, res.Composited, res.Background)
			}
		})
	}

	dark := mustCompute(t, ref, dist, WithBackground(DarkBackground))
	light := mustCompute(t, ref, dist, WithBackground(LightBackground))
	if single.Score == math.Min(dark.Score, light.Score) {
		t.Error("Expected an opaque reference to skip the dark and light passes")
	}
}

func TestComputeExplicitBackgroundOpaque(t *testing.T) {
	ref := FromImage(texturedImage(32, 32, 1))
	dist := FromImage(addNoise(texturedImage(32, 32, 1), 6, 2))

	plain := mustCompute(t, ref, dist)
	withBg := mustCompute(t, ref, dist, WithBackground(0.5))
	if plain.Score != withBg.Score {
		t.Errorf("background changed opaque score: %v vs %v", plain.Score, withBg.Score)
	}
	if withBg.Composited {
		t.Error("opaque images should not be composited")
	}
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	good := FromImage(texturedImage(16, 16, 1))

	tests := []struct {
		name      string
		ref, dist *PixelBuffer
		opts      []Option
		wantErr   error
	}{
		{"nil reference", nil, good, nil, ErrInvalidInput},
		{"nil distorted", good, nil, nil, ErrInvalidInput},
		{"empty", &PixelBuffer{}, good, nil, ErrInvalidInput},
		{"short samples", &PixelBuffer{Width: 16, Height: 16, Pix: make([]float32, 10)}, good, nil, ErrInvalidInput},
		{"NaN reference sample", withSample(good, 5, float32(math.NaN())), good, nil, ErrInvalidInput},
		{"infinite distorted sample", good, withSample(good, 300, float32(math.Inf(1))), nil, ErrInvalidInput},
		{"negative infinite sample", good, withSample(good, 0, float32(math.Inf(-1))), nil, ErrInvalidInput},
		{"width mismatch", FromImage(texturedImage(17, 16, 1)), good, nil, ErrSizeMismatch},
		{"height mismatch", good, FromImage(texturedImage(16, 15, 1)), nil, ErrSizeMismatch},
		{"too narrow", FromImage(texturedImage(7, 16, 1)), FromImage(texturedImage(7, 16, 1)), nil, ErrTooSmall},
		{"too short", FromImage(texturedImage(16, 7, 1)), FromImage(texturedImage(16, 7, 1)), nil, ErrTooSmall},
		{"background below range", good, good, []Option{WithBackground(-0.1)}, ErrInvalidInput},
		{"background above range", good, good, []Option{WithBackground(1.5)}, ErrInvalidInput},
		{"background NaN", good, good, []Option{WithBackground(float32(math.NaN()))}, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compute(tt.ref, tt.dist, tt.opts...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got error %v, want %v", err, tt.wantErr)
			}
			if res != nil {
				t.Errorf("got result %+v alongside error", res)
			}
		})
	}
}

func TestComputeDeterministic(t *testing.T) {
	src := texturedImage(90, 70, 4)
	ref := FromImage(src)
	dist := FromImage(gaussianBlur(src, 1.5))

	first := mustCompute(t, ref, dist, Sequential())
	for i := 0; i < 3; i++ {
		again := mustCompute(t, ref, dist, Sequential())
		if math.Float64bits(again.Score) != math.Float64bits(first.Score) {
			t.Fatalf("run %d: score %v differs from %v", i, again.Score, first.Score)
		}
	}

	par := mustCompute(t, ref, dist)
	if math.Float64bits(par.Score) != math.Float64bits(first.Score) {
		t.Errorf("parallel score %v differs from sequential %v", par.Score, first.Score)
	}
	if par.Features != first.Features {
		t.Error("parallel features differ from sequential")
	}
}

func TestComputeFeatureShape(t *testing.T) {
	small := texturedImage(16, 16, 1)
	large := texturedImage(300, 300, 1)

	smallRes := mustCompute(t, FromImage(small), FromImage(addNoise(small, 10, 1)))
	largeRes := mustCompute(t, FromImage(large), FromImage(addNoise(large, 10, 1)))

	if len(smallRes.Features) != len(largeRes.Features) {
		t.Fatalf("feature lengths differ: %d vs %d", len(smallRes.Features), len(largeRes.Features))
	}

	// 16 -> 8 -> 4, then the 4x4 level is too small to descend from
	if smallRes.Scales != 3 {
		t.Errorf("16x16 compared %d scales, want 3", smallRes.Scales)
	}
	if largeRes.Scales != NumScales {
		t.Errorf("300x300 compared %d scales, want %d", largeRes.Scales, NumScales)
	}

	for scale := smallRes.Scales; scale < NumScales; scale++ {
		for c := 0; c < NumChannels; c++ {
			for m := MapType(0); m < NumMaps; m++ {
				for n := NormType(0); n < NumNorms; n++ {
					if v := smallRes.Features.At(scale, c, m, n); v != 0 {
						t.Errorf("uncomputed scale %d has feature %v", scale, v)
					}
				}
			}
		}
	}
}

// withSample returns a copy of buf with one sample replaced.
func withSample(buf *PixelBuffer, i int, v float32) *PixelBuffer {
	out := *buf
	out.Pix = append([]float32(nil), buf.Pix...)
	out.Pix[i] = v
	return &out
}

// pinnedPair is a fixed 16x16 gradient and a copy with a brightened red
// checkerboard and a darker blue lower half.
func pinnedPair() (ref, dist *image.NRGBA) {
	ref = image.NewNRGBA(image.Rect(0, 0, 16, 16))
	dist = image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			r, g, b := x*16, y*16, (x+y)*8
			ref.Set(x, y, color.NRGBA{uint8(r), uint8(g), uint8(b), 255})
			if (x/4+y/4)%2 == 0 {
				r = min(255, r+32)
			}
			if y >= 8 {
				b = max(0, b-24)
			}
			dist.Set(x, y, color.NRGBA{uint8(r), uint8(g), uint8(b), 255})
		}
	}
	return ref, dist
}

func TestComputePinnedScore(t *testing.T) {
	ref, dist := pinnedPair()
	res := mustCompute(t, FromImage(ref), FromImage(dist))

	// Architectures that fuse multiply-adds round the float32 stages
	// differently.
	tolerance := 1e-6
	if runtime.GOARCH != "amd64" && runtime.GOARCH != "386" {
		tolerance = 1e-3
	}

	const want = 77.93858371076
	if res.Scales != 3 {
		t.Fatalf("Expected 3 scales, got %d", res.Scales)
	}
	if math.Abs(res.Score-want) > tolerance {
		t.Errorf("Expected score %.8f, got %.8f", want, res.Score)
	}
	if got := res.Features.At(0, 1, MapSSIM, NormAverage); math.Abs(got-0.0214485155884) > tolerance {
		t.Errorf("Expected luma SSIM average 0.0214485156, got %.10f", got)
	}
}
