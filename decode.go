package watermark

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	// Register common decoders, including WebP, BMP and TIFF via x/image.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	_ "image/gif"
	_ "image/jpeg"
)

// DecodeImageBytes decodes an in-memory image and returns it with its format
// name ("png", "jpeg", "webp", etc.).
func DecodeImageBytes(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", errors.New("empty image data")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.Wrap(err, "decode image")
	}
	return img, format, nil
}

// EncodePNG writes the provided image to the writer as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// LoadImage opens and decodes the image at path. EXIF orientation is not
// applied so that detector coordinates line up with the stored pixels.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return img, nil
}

// SaveImage encodes img to path, choosing the encoder from the file extension.
// Image types that can be read but not encoded, such as WebP, are written as
// PNG data under the same name.
func SaveImage(path string, img image.Image) error {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		if !IsImageFile(path) {
			return errors.Wrapf(err, "save %s", path)
		}
		format = imaging.PNG
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	if err := imaging.Encode(f, img, format); err != nil {
		f.Close()
		return errors.Wrapf(err, "save %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	return nil
}
