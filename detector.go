package watermark

import (
	"context"
	"image"
	"math"
	"sort"
)

const (
	// DefaultConfidence is the score floor used for batch runs.
	DefaultConfidence = 0.004
	// DefaultIoU disables overlap suppression, so every surviving box is kept.
	DefaultIoU = 0.0
)

// BoundingBox is an axis-aligned box in image pixel coordinates.
type BoundingBox struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// Rect truncates the box to integer pixel coordinates with Min <= Max.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(int(b.XMin), int(b.YMin), int(b.XMax), int(b.YMax))
}

// Area returns the box area, zero for degenerate boxes.
func (b BoundingBox) Area() float64 {
	w, h := b.XMax-b.XMin, b.YMax-b.YMin
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Region is a single detection returned by a Detector.
type Region struct {
	Box        BoundingBox `json:"box"`
	Confidence float64     `json:"confidence"`
}

// Params controls how permissive a Detector is.
type Params struct {
	// Confidence is the minimum score a region needs to be reported.
	Confidence float64
	// IoU is the overlap ratio above which the weaker of two boxes is
	// suppressed. Zero disables suppression.
	IoU float64
}

// DefaultParams returns the recall-oriented parameters used for batch runs.
func DefaultParams() Params {
	return Params{Confidence: DefaultConfidence, IoU: DefaultIoU}
}

// A Detector finds watermark regions in an image. Implementations are loaded
// once and reused for every image; they must not retain img.
type Detector interface {
	Detect(ctx context.Context, img image.Image, params Params) ([]Region, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image, params Params) ([]Region, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, img image.Image, params Params) ([]Region, error) {
	return f(ctx, img, params)
}

// IoU returns the intersection-over-union of two boxes.
func IoU(a, b BoundingBox) float64 {
	inter := BoundingBox{
		XMin: math.Max(a.XMin, b.XMin),
		YMin: math.Max(a.YMin, b.YMin),
		XMax: math.Min(a.XMax, b.XMax),
		YMax: math.Min(a.YMax, b.YMax),
	}.Area()
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// FilterRegions drops regions scoring below params.Confidence and, when
// params.IoU is positive, greedily suppresses lower-scoring boxes that overlap
// a kept box by more than params.IoU. Input order is preserved among the
// survivors.
func FilterRegions(regions []Region, params Params) []Region {
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		if r.Confidence >= params.Confidence {
			out = append(out, r)
		}
	}
	if params.IoU <= 0 || len(out) < 2 {
		return out
	}

	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return out[order[i]].Confidence > out[order[j]].Confidence
	})

	suppressed := make([]bool, len(out))
	for i, a := range order {
		if suppressed[a] {
			continue
		}
		for _, b := range order[i+1:] {
			if !suppressed[b] && IoU(out[a].Box, out[b].Box) > params.IoU {
				suppressed[b] = true
			}
		}
	}

	kept := out[:0]
	for i, r := range out {
		if !suppressed[i] {
			kept = append(kept, r)
		}
	}
	return kept
}
