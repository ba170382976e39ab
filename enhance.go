package watermark

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultEnhanceThreshold is the gray level at or below which enhanced
	// pixels are zeroed.
	DefaultEnhanceThreshold = 70

	// contrastFactor scales gray values toward the image mean.
	contrastFactor = 0.85
)

// edgeEnhanceMore is the aggressive 3x3 edge enhancement kernel.
var edgeEnhanceMore = [9]float64{
	-1, -1, -1,
	-1, 9, -1,
	-1, -1, -1,
}

// EnhanceResult holds the single-channel stages of an enhancement run. Both
// images carry the gray value replicated in R, G and B.
type EnhanceResult struct {
	// Sharpened is the contrast-reduced, edge-enhanced image before thresholding.
	Sharpened *image.NRGBA
	// Output is Sharpened with every value <= threshold set to zero.
	Output *image.NRGBA
}

// Enhance prepares an image for watermark detection. The input is converted to
// luminance, its contrast is reduced, edges are enhanced and dark values are
// clipped to zero. The result is a new RGB image with the gray value in every
// channel; img is never modified.
func Enhance(img image.Image, threshold int) *image.NRGBA {
	return EnhanceStages(img, threshold).Output
}

// EnhanceStages runs Enhance and also returns the pre-threshold stage.
func EnhanceStages(img image.Image, threshold int) EnhanceResult {
	opaque := imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		c.A = 0xff
		return c
	})
	gray := imaging.Grayscale(opaque)

	mean := math.Floor(meanGray(gray) + 0.5)
	contrast := imaging.AdjustFunc(gray, func(c color.NRGBA) color.NRGBA {
		v := uint8(mean + contrastFactor*(float64(c.R)-mean))
		return color.NRGBA{R: v, G: v, B: v, A: c.A}
	})

	sharpened := imaging.Convolve3x3(contrast, edgeEnhanceMore, nil)

	cut := clampThreshold(threshold)
	out := imaging.AdjustFunc(sharpened, func(c color.NRGBA) color.NRGBA {
		if int(c.R) > cut {
			return c
		}
		return color.NRGBA{A: c.A}
	})

	return EnhanceResult{Sharpened: sharpened, Output: out}
}

// meanGray averages the gray channel of an image produced by imaging.Grayscale.
func meanGray(gray *image.NRGBA) float64 {
	n := len(gray.Pix) / 4
	if n == 0 {
		return 0
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(gray.Pix[i*4])
	}
	return stat.Mean(values, nil)
}

func clampThreshold(threshold int) int {
	switch {
	case threshold < 0:
		return -1
	case threshold > 255:
		return 255
	}
	return threshold
}
