package watermark

import (
	"context"
	"image"

	"github.com/pkg/errors"
)

const (
	// Brightness difference at which a corner logo is considered present.
	// Overlay logos are light on darker content, so the mean luma inside the
	// logo rectangle should be noticeably higher than its surroundings.
	lumaPresenceThreshold = 6.0

	// lumaFullScore is the luma difference mapped to confidence 1.
	lumaFullScore = 64.0
)

// errNoLogoRoom is returned when an image is too small to hold a corner logo.
var errNoLogoRoom = errors.New("image too small for a corner logo")

// logoPlacement describes where a corner logo is expected for a given image
// size.
type logoPlacement struct {
	LogoSize     int
	MarginRight  int
	MarginBottom int
}

// placementFor selects the logo size and margins: images larger than 1024 in
// both dimensions carry a 96x96 logo with 64px margins, everything else a
// 48x48 logo with 32px margins.
func placementFor(width, height int) logoPlacement {
	if width > 1024 && height > 1024 {
		return logoPlacement{LogoSize: 96, MarginRight: 64, MarginBottom: 64}
	}
	return logoPlacement{LogoSize: 48, MarginRight: 32, MarginBottom: 32}
}

// logoRect computes the expected logo rectangle in image coordinates.
func logoRect(bounds image.Rectangle, p logoPlacement) (image.Rectangle, error) {
	x := bounds.Max.X - p.MarginRight - p.LogoSize
	y := bounds.Max.Y - p.MarginBottom - p.LogoSize

	rect := image.Rect(x, y, x+p.LogoSize, y+p.LogoSize)
	if !rect.In(bounds) {
		return image.Rectangle{}, errors.Wrapf(errNoLogoRoom, "logo rectangle %v out of bounds %v", rect, bounds)
	}
	return rect, nil
}

// LumaDetector is a model-free Detector for bright logos stamped in the
// bottom-right corner. It compares the average luma inside the expected logo
// rectangle with a surrounding band and reports the rectangle when the inside
// is brighter.
type LumaDetector struct{}

// Detect implements Detector. Images too small to hold a logo yield no regions.
func (LumaDetector) Detect(ctx context.Context, img image.Image, params Params) ([]Region, error) {
	if img == nil {
		return nil, errors.New("nil image provided")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	score, rect, err := LumaScore(img)
	if errors.Is(err, errNoLogoRoom) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if score <= lumaPresenceThreshold {
		return nil, nil
	}

	conf := score / lumaFullScore
	if conf > 1 {
		conf = 1
	}
	region := Region{
		Box: BoundingBox{
			XMin: float64(rect.Min.X),
			YMin: float64(rect.Min.Y),
			XMax: float64(rect.Max.X - 1),
			YMax: float64(rect.Max.Y - 1),
		},
		Confidence: conf,
	}
	return FilterRegions([]Region{region}, params), nil
}

// LumaScore returns the brightness of the expected logo rectangle relative to
// its surroundings, along with the rectangle itself.
func LumaScore(img image.Image) (float64, image.Rectangle, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return 0, image.Rectangle{}, errors.Errorf("invalid image dimensions %dx%d", width, height)
	}

	p := placementFor(width, height)
	rect, err := logoRect(bounds, p)
	if err != nil {
		return 0, image.Rectangle{}, err
	}

	// Use a surrounding band to approximate the background without the logo.
	band := p.LogoSize / 3
	if band < 8 {
		band = 8
	}
	outer := rect.Inset(-band).Intersect(bounds)

	inMean, inCount := meanLuma(img, rect, image.Rectangle{})
	bgMean, bgCount := meanLuma(img, outer, rect)
	if inCount == 0 || bgCount == 0 {
		return 0, image.Rectangle{}, errors.New("insufficient pixels to evaluate logo")
	}

	return inMean - bgMean, rect, nil
}

// meanLuma computes the average luma for pixels in region. If exclude is not
// empty, pixels inside exclude are skipped.
func meanLuma(img image.Image, region image.Rectangle, exclude image.Rectangle) (float64, int) {
	var sum float64
	var count int

	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			if !exclude.Empty() && (image.Point{X: x, Y: y}).In(exclude) {
				continue
			}

			r, g, b, _ := img.At(x, y).RGBA()
			// Convert to luma in [0, 255].
			luma := 0.2126*float64(r)/257.0 + 0.7152*float64(g)/257.0 + 0.0722*float64(b)/257.0
			sum += luma
			count++
		}
	}

	if count == 0 {
		return 0, 0
	}

	return sum / float64(count), count
}
