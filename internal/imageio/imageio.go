// Package imageio decodes base64 image payloads into raster images and prepares them
// for the detection and OCR collaborators.
package imageio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/nikhilbhutani/assistgateway/internal/apperr"
)

// Payload is a base64-encoded image as received in a request body.
type Payload struct {
	Data     []byte
	MimeType string
}

// DecodePayload strips an optional data: URL prefix and decodes standard or URL-safe
// base64. The MIME type comes from the data URL when present, otherwise it is sniffed.
func DecodePayload(s string) (*Payload, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, apperr.InvalidInput("image is required")
	}

	var hintMIME string
	if strings.HasPrefix(strings.ToLower(s), "data:") {
		idx := strings.IndexByte(s, ',')
		if idx < 0 {
			return nil, apperr.DecodeFailure("image is not valid base64", errors.New("data url without payload"))
		}
		meta := s[len("data:"):idx]
		if semi := strings.IndexByte(meta, ';'); semi >= 0 {
			meta = meta[:semi]
		}
		hintMIME = meta
		s = s[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		var urlErr error
		data, urlErr = base64.URLEncoding.DecodeString(s)
		if urlErr != nil {
			return nil, apperr.DecodeFailure("image is not valid base64", err)
		}
	}
	if len(data) == 0 {
		return nil, apperr.DecodeFailure("image is empty", nil)
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") && strings.HasPrefix(hintMIME, "image/") {
		mime = hintMIME
	}
	return &Payload{Data: data, MimeType: mime}, nil
}

// RequireImageMIME fails unless the payload sniffs as an image container.
func (p *Payload) RequireImageMIME() error {
	if !strings.HasPrefix(p.MimeType, "image/") {
		return apperr.DecodeFailure("payload is not an image", fmt.Errorf("detected content type %s", p.MimeType))
	}
	return nil
}

// DefaultMaxPixels caps decoded images at roughly 40 megapixels.
const DefaultMaxPixels = 40_000_000

// Decode parses the payload into pixels, refusing images larger than DefaultMaxPixels.
func (p *Payload) Decode() (image.Image, error) {
	return p.DecodeLimit(DefaultMaxPixels)
}

// DecodeLimit is Decode with an explicit pixel cap. The header is checked before any
// pixel buffer is allocated. maxPixels <= 0 selects DefaultMaxPixels.
func (p *Payload) DecodeLimit(maxPixels int) (image.Image, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(p.Data))
	if err != nil {
		return nil, apperr.DecodeFailure("image could not be decoded", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, apperr.DecodeFailure("image has no pixels", nil)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, apperr.DecodeFailure("image dimensions exceed limit",
			fmt.Errorf("%dx%d exceeds %d pixels", cfg.Width, cfg.Height, maxPixels))
	}

	img, _, err := image.Decode(bytes.NewReader(p.Data))
	if err != nil {
		return nil, apperr.DecodeFailure("image could not be decoded", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, apperr.DecodeFailure("image has no pixels", nil)
	}
	return img, nil
}

// Grayscale converts img to a single-channel luma image.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// Fit downscales img so neither side exceeds maxDim. Smaller images and maxDim <= 0
// return img unchanged.
func Fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	if maxDim <= 0 || (b.Dx() <= maxDim && b.Dy() <= maxDim) {
		return img
	}
	return imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
}

// EncodeJPEG writes img as a JPEG for transports that expect an encoded container.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(92)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG writes img losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
