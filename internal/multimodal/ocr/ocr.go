// Package ocr turns single-channel images into text.
package ocr

import (
	"context"
	"image"
)

// Engine recognizes the text in a grayscale image.
type Engine interface {
	Recognize(ctx context.Context, img *image.Gray) (string, error)
	Name() string
}
