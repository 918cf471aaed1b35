package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrInvalidImage is returned when an upload is not a decodable image.
var ErrInvalidImage = errors.New("upload a valid image")

var extensions = map[string]string{
	"jpeg": ".jpg",
	"png":  ".png",
	"gif":  ".gif",
	"bmp":  ".bmp",
	"tiff": ".tiff",
	"webp": ".webp",
}

// MaxImagePixels caps width*height before the pixel buffer is allocated.
const MaxImagePixels = 89_478_485

// DetectedImage describes a validated upload.
type DetectedImage struct {
	Format      string
	Ext         string
	ContentType string
}

// DecodeImage fully decodes data and reports its format.
// Truncated or corrupt files are rejected, not only unknown headers.
func DecodeImage(data []byte) (DetectedImage, error) {
	if len(data) == 0 {
		return DetectedImage{}, ErrInvalidImage
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return DetectedImage{}, errors.Join(ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return DetectedImage{}, errors.Join(ErrInvalidImage, fmt.Errorf("image is %dx%d pixels", cfg.Width, cfg.Height))
	}
	_, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return DetectedImage{}, errors.Join(ErrInvalidImage, err)
	}
	ext, ok := extensions[format]
	if !ok {
		return DetectedImage{}, ErrInvalidImage
	}
	return DetectedImage{Format: format, Ext: ext, ContentType: "image/" + format}, nil
}
