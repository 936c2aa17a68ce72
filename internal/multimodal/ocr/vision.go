package ocr

import (
	"context"
	"image"

	"github.com/nikhilbhutani/assistgateway/internal/apperr"
	"github.com/nikhilbhutani/assistgateway/internal/imageio"
	"github.com/nikhilbhutani/assistgateway/internal/llm"
)

// TextExtractor is satisfied by multimodal.VisionService.
type TextExtractor interface {
	ExtractText(ctx context.Context, img llm.Image) (string, error)
}

// Vision recognizes text by asking a vision-language model to transcribe it.
type Vision struct {
	extractor TextExtractor
}

func NewVision(extractor TextExtractor) *Vision {
	return &Vision{extractor: extractor}
}

func (v *Vision) Name() string { return "vision" }

func (v *Vision) Recognize(ctx context.Context, img *image.Gray) (string, error) {
	png, err := imageio.EncodePNG(img)
	if err != nil {
		return "", apperr.Internal("ocr vision", err)
	}
	return v.extractor.ExtractText(ctx, llm.Image{Data: png, MimeType: "image/png"})
}
