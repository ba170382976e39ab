package watermark

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

// BoxStrokeWidth is the outline thickness, in pixels, of drawn regions.
const BoxStrokeWidth = 3

// BoxColor is the outline color of drawn regions.
var BoxColor = color.RGBA{R: 0xff, A: 0xff}

// WatermarkStatus is the verdict for one input image.
type WatermarkStatus struct {
	Image  string `json:"image"`
	Status bool   `json:"status"`
}

// Classify decides whether an image is watermarked and produces the image to
// save. Any region at all marks the image; the detector's confidence floor is
// the only gate. Each region is outlined on a copy of original. With no
// regions, original itself is returned so it is saved unmodified.
func Classify(path string, original image.Image, regions []Region) (WatermarkStatus, image.Image) {
	status := WatermarkStatus{Image: path, Status: len(regions) > 0}
	if !status.Status {
		return status, original
	}

	// imaging.Clone keeps straight alpha and moves the origin to 0,0.
	out := imaging.Clone(original)
	origin := original.Bounds().Min

	dc := gg.NewContext(out.Bounds().Dx(), out.Bounds().Dy())
	dc.SetColor(color.White)
	for _, r := range regions {
		drawOutline(dc, r.Box.Rect().Sub(origin), BoxStrokeWidth)
	}
	dc.Fill()

	draw.DrawMask(out, out.Bounds(), &image.Uniform{C: BoxColor}, image.Point{}, dc.Image(), image.Point{}, draw.Over)
	return status, out
}

// drawOutline adds the border of r to the current path, inclusive of its Max
// edge, growing inward by width pixels. The strips sit on whole pixels so the
// filled mask is either fully on or fully off.
func drawOutline(dc *gg.Context, r image.Rectangle, width int) {
	x0, y0 := float64(r.Min.X), float64(r.Min.Y)
	w, h := float64(r.Dx()+1), float64(r.Dy()+1)
	sw := float64(width)
	if sw > w {
		sw = w
	}
	sh := float64(width)
	if sh > h {
		sh = h
	}

	dc.DrawRectangle(x0, y0, w, sh)
	dc.DrawRectangle(x0, y0+h-sh, w, sh)
	dc.DrawRectangle(x0, y0, sw, h)
	dc.DrawRectangle(x0+w-sw, y0, sw, h)
}
