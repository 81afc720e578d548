package extract

import (
	"bytes"
	"image"
	_ "image/gif"  // register GIF decoder for image.DecodeConfig
	_ "image/jpeg" // register JPEG decoder for image.DecodeConfig
	_ "image/png"  // register PNG decoder for image.DecodeConfig
)

// decodeImageSize returns the pixel dimensions of an image's encoded
// bytes. It returns (nil, err) for formats image.DecodeConfig does not
// recognize (e.g. webp, svg) — callers treat that as non-fatal per
// spec.md §4.1 ("failure to fetch or decode leaves size = null").
func decodeImageSize(body []byte) (*Size, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return &Size{Width: cfg.Width, Height: cfg.Height}, nil
}
