package tts

import "context"

// ContentTypeMP3 is the only output format requested from backends.
const ContentTypeMP3 = "audio/mpeg"

// SynthesisRequest holds the parameters for text-to-speech generation.
type SynthesisRequest struct {
	Input string  `json:"input"`
	Voice string  `json:"voice,omitempty"` // backend default when empty
	Speed float64 `json:"speed,omitempty"` // honored by openai only
}

// SynthesisResult holds the generated audio. It is owned by the caller and never shared.
type SynthesisResult struct {
	Audio       []byte
	ContentType string
}

// Provider is the interface for text-to-speech backends.
type Provider interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
	Name() string
}
