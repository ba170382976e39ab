package watermark

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func imagesEqual(a, b image.Image) bool {
	if !a.Bounds().Eq(b.Bounds()) {
		return false
	}

	ab := imageToNRGBA(a)
	bb := imageToNRGBA(b)

	return bytes.Equal(ab.Pix, bb.Pix)
}

func imageToNRGBA(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	out := image.NewNRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)
	return out
}

// uniformImage returns a w x h opaque image filled with gray level v.
func uniformImage(w, h int, v uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.NRGBA{R: v, G: v, B: v, A: 0xff}}, image.Point{}, draw.Src)
	return img
}

// patternImage returns a deterministic colored gradient with a bright
// rectangle stamped at patch.
func patternImage(w, h int, patch image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x * 7) % 200),
				G: uint8((y * 5) % 180),
				B: uint8((x + y) % 160),
				A: 0xff,
			})
		}
	}
	draw.Draw(img, patch, &image.Uniform{C: color.NRGBA{R: 250, G: 250, B: 250, A: 0xff}}, image.Point{}, draw.Src)
	return img
}

func isRed(c color.NRGBA) bool {
	return c == color.NRGBA{R: 0xff, A: 0xff}
}

// outlinePixels returns the set of pixels covered by the outline of r drawn
// with the given stroke width.
func outlinePixels(r image.Rectangle, width int) map[image.Point]bool {
	set := map[image.Point]bool{}
	for y := r.Min.Y; y <= r.Max.Y; y++ {
		for x := r.Min.X; x <= r.Max.X; x++ {
			if x < r.Min.X+width || x > r.Max.X-width || y < r.Min.Y+width || y > r.Max.Y-width {
				set[image.Pt(x, y)] = true
			}
		}
	}
	return set
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	test.That(t, os.MkdirAll(filepath.Dir(path), 0o755), test.ShouldBeNil)
	f, err := os.Create(path)
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()
	test.That(t, EncodePNG(f, img), test.ShouldBeNil)
}

func readPNG(t *testing.T, path string) *image.NRGBA {
	t.Helper()
	img, err := LoadImage(path)
	test.That(t, err, test.ShouldBeNil)
	return imageToNRGBA(img)
}

// tinyWebP is a 1x1 lossless WebP image.
const tinyWebP = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

func writeWebP(t *testing.T, path string) {
	t.Helper()
	data, err := base64.StdEncoding.DecodeString(tinyWebP)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, os.MkdirAll(filepath.Dir(path), 0o755), test.ShouldBeNil)
	test.That(t, os.WriteFile(path, data, 0o644), test.ShouldBeNil)
}
