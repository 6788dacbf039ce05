package metric

import (
	"image"
	"math"
)

// heatmapChannel is the luma-like Y channel of XYB.
const heatmapChannel = 1

// Heatmap renders the full-resolution SSIM error of the luma channel as a
// grayscale image: black where the images match, white where the error
// reaches 1. Images with alpha are composited over background first.
func Heatmap(ref, dist *PixelBuffer, background float32) (*image.Gray, error) {
	if err := Validate(ref, dist); err != nil {
		return nil, err
	}
	if err := ValidateBackground(background); err != nil {
		return nil, err
	}

	refXYB := ToXYB(Linearize(Composite(ref, background)))
	distXYB := ToXYB(Linearize(Composite(dist, background)))
	maps := ComputeStatMaps(refXYB.Planes[heatmapChannel], distXYB.Planes[heatmapChannel], ref.Width, ref.Height)

	img := image.NewGray(image.Rect(0, 0, ref.Width, ref.Height))
	for i, d := range maps.Maps[MapSSIM] {
		img.Pix[i] = uint8(math.Round(math.Min(d, 1) * 255))
	}
	return img, nil
}
