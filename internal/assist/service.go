// Package assist implements the four assistive operations on top of the injected
// collaborators. It owns input validation, per-call timeouts and result caching; the HTTP
// layer only translates requests and errors.
package assist

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/assistgateway/internal/apperr"
	"github.com/nikhilbhutani/assistgateway/internal/cache"
	"github.com/nikhilbhutani/assistgateway/internal/imageio"
	"github.com/nikhilbhutani/assistgateway/internal/llm"
	"github.com/nikhilbhutani/assistgateway/internal/multimodal/detect"
	"github.com/nikhilbhutani/assistgateway/internal/multimodal/ocr"
	"github.com/nikhilbhutani/assistgateway/internal/multimodal/tts"
)

// SceneDescriber is satisfied by multimodal.VisionService.
type SceneDescriber interface {
	DescribeScene(ctx context.Context, img llm.Image) (string, error)
}

// Deps are the collaborators. Any of them may be nil, in which case the matching
// operation fails as upstream_unavailable. Cache is optional.
type Deps struct {
	Detector detect.Detector
	Vision   SceneDescriber
	Speech   tts.Provider
	OCR      ocr.Engine
	Cache    cache.Store
}

type Options struct {
	DetectTimeout time.Duration
	VisionTimeout time.Duration
	TTSTimeout    time.Duration
	OCRTimeout    time.Duration

	// DetectMaxDimension downsizes images before detection; 0 sends them as decoded.
	DetectMaxDimension int
	// MaxImagePixels rejects larger images before decoding; 0 uses imageio.DefaultMaxPixels.
	MaxImagePixels int
	CacheTTL       time.Duration
}

type Service struct {
	deps Deps
	opts Options
}

func NewService(deps Deps, opts Options) *Service {
	return &Service{deps: deps, opts: opts}
}

// DetectObjects returns the detected labels in detector order. The result is never nil.
func (s *Service) DetectObjects(ctx context.Context, payload string) ([]string, error) {
	const op = "detect_objects"

	p, err := imageio.DecodePayload(payload)
	if err != nil {
		return nil, err
	}
	img, err := p.DecodeLimit(s.opts.MaxImagePixels)
	if err != nil {
		return nil, err
	}
	if s.deps.Detector == nil {
		return nil, apperr.Unavailable(op, apperr.ErrNotConfigured)
	}
	if s.opts.DetectMaxDimension > 0 {
		img = imageio.Fit(img, s.opts.DetectMaxDimension)
	}

	ctx, cancel := withTimeout(ctx, s.opts.DetectTimeout)
	defer cancel()

	detections, err := s.deps.Detector.Detect(ctx, img)
	if err != nil {
		return nil, collaboratorErr(op, err)
	}

	labels := make([]string, 0, len(detections))
	for _, d := range detections {
		labels = append(labels, d.Label)
	}
	return labels, nil
}

// DescribeScene forwards the encoded image bytes unchanged to the vision model.
func (s *Service) DescribeScene(ctx context.Context, payload string) (string, error) {
	const op = "describe_scene"

	p, err := imageio.DecodePayload(payload)
	if err != nil {
		return "", err
	}
	if err := p.RequireImageMIME(); err != nil {
		return "", err
	}
	if s.deps.Vision == nil {
		return "", apperr.Unavailable(op, apperr.ErrNotConfigured)
	}

	return s.cached(ctx, op, p.Data, func() (string, error) {
		ctx, cancel := withTimeout(ctx, s.opts.VisionTimeout)
		defer cancel()

		desc, err := s.deps.Vision.DescribeScene(ctx, llm.Image{Data: p.Data, MimeType: p.MimeType})
		if err != nil {
			return "", collaboratorErr(op, err)
		}
		return desc, nil
	})
}

// Speak synthesizes text as MP3. The audio is returned in memory and belongs to this call.
func (s *Service) Speak(ctx context.Context, text string) (*tts.SynthesisResult, error) {
	const op = "speak"

	if strings.TrimSpace(text) == "" {
		return nil, apperr.InvalidInput("text is required")
	}
	if s.deps.Speech == nil {
		return nil, apperr.Unavailable(op, apperr.ErrNotConfigured)
	}

	ctx, cancel := withTimeout(ctx, s.opts.TTSTimeout)
	defer cancel()

	res, err := s.deps.Speech.Synthesize(ctx, tts.SynthesisRequest{Input: text})
	if err != nil {
		return nil, collaboratorErr(op, err)
	}
	if res.ContentType == "" {
		res.ContentType = tts.ContentTypeMP3
	}
	return res, nil
}

// ReadText recognizes text in a single-channel rendition of the image.
func (s *Service) ReadText(ctx context.Context, payload string) (string, error) {
	const op = "read_text"

	p, err := imageio.DecodePayload(payload)
	if err != nil {
		return "", err
	}
	img, err := p.DecodeLimit(s.opts.MaxImagePixels)
	if err != nil {
		return "", err
	}
	if s.deps.OCR == nil {
		return "", apperr.Unavailable(op, apperr.ErrNotConfigured)
	}

	return s.cached(ctx, op, p.Data, func() (string, error) {
		ctx, cancel := withTimeout(ctx, s.opts.OCRTimeout)
		defer cancel()

		text, err := s.deps.OCR.Recognize(ctx, imageio.Grayscale(img))
		if err != nil {
			return "", collaboratorErr(op, err)
		}
		return strings.TrimSpace(text), nil
	})
}

// cached consults the result cache around fn. Cache failures never fail the request.
func (s *Service) cached(ctx context.Context, op string, payload []byte, fn func() (string, error)) (string, error) {
	if s.deps.Cache == nil {
		return fn()
	}

	key := cache.Key(op, payload)
	var hit string
	err := s.deps.Cache.Get(ctx, key, &hit)
	switch {
	case err == nil:
		slog.Debug("cache hit", "op", op)
		return hit, nil
	case !errors.Is(err, cache.ErrMiss):
		slog.Warn("cache read failed", "op", op, "error", err)
	}

	result, err := fn()
	if err != nil {
		return "", err
	}
	if err := s.deps.Cache.Set(ctx, key, result, s.opts.CacheTTL); err != nil {
		slog.Warn("cache write failed", "op", op, "error", err)
	}
	return result, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// collaboratorErr keeps classified errors as they are and classifies anything else as an
// upstream failure of op.
func collaboratorErr(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Upstream(op, 0, err)
}
