package metric

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/disintegration/gift"
)

// texturedImage builds a deterministic image with edges, gradients and
// noise so every map has something to respond to.
func texturedImage(width, height int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 240) / width)
			g := uint8((y * 255) / height)
			b := uint8(40)
			if (x/8+y/8)%2 == 0 {
				b = 200
			}
			n := uint8(rng.Intn(16))
			img.Set(x, y, color.NRGBA{r + n/2, g, b + n, 255})
		}
	}
	return img
}

// solidImage builds an opaque image of a single gray level.
func solidImage(width, height int, v uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = v
		img.Pix[i+1] = v
		img.Pix[i+2] = v
		img.Pix[i+3] = 255
	}
	return img
}

// addNoise returns a copy with zero-mean Gaussian noise of the given sigma
// (in 8-bit units) added to every color sample.
func addNoise(src *image.NRGBA, sigma float64, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	dst := image.NewNRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	for i := 0; i < len(dst.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := float64(dst.Pix[i+c]) + rng.NormFloat64()*sigma
			dst.Pix[i+c] = uint8(max(0, min(255, v+0.5)))
		}
	}
	return dst
}

// gaussianBlur returns src blurred with the given sigma.
func gaussianBlur(src image.Image, sigma float32) *image.NRGBA {
	g := gift.New(gift.GaussianBlur(sigma))
	dst := image.NewNRGBA(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst
}

// withAlpha returns a copy whose alpha varies across the image.
func withAlpha(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	w := src.Bounds().Dx()
	for y := 0; y < src.Bounds().Dy(); y++ {
		for x := 0; x < w; x++ {
			dst.Pix[dst.PixOffset(x, y)+3] = uint8((x * 255) / (w - 1))
		}
	}
	return dst
}

func mustCompute(t *testing.T, ref, dist *PixelBuffer, opts ...Option) *Result {
	t.Helper()
	res, err := Compute(ref, dist, opts...)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	return res
}
