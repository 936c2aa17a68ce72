package multimodal

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nikhilbhutani/assistgateway/internal/apperr"
	"github.com/nikhilbhutani/assistgateway/internal/llm"
)

const (
	sceneSystemPrompt = "You are an assistant that describes scenes for a visually impaired user."
	sceneUserPrompt   = "Describe this scene in a few clear sentences, mentioning the most important objects and any hazards."

	textSystemPrompt = "You transcribe text from images for a visually impaired user."
	textUserPrompt   = "Extract all text visible in this image. Return only the text, preserving line breaks. Return nothing if there is no text."
)

// VisionService runs image understanding tasks against a vision-capable model.
type VisionService struct {
	gateway llm.Gateway
}

func NewVisionService(gw llm.Gateway) *VisionService {
	return &VisionService{gateway: gw}
}

// DescribeScene returns the model's description of a single image.
func (v *VisionService) DescribeScene(ctx context.Context, img llm.Image) (string, error) {
	return v.analyze(ctx, "describe_scene", img, sceneSystemPrompt, sceneUserPrompt)
}

// ExtractText asks the model to transcribe the text in img.
func (v *VisionService) ExtractText(ctx context.Context, img llm.Image) (string, error) {
	text, err := v.analyze(ctx, "extract_text", img, textSystemPrompt, textUserPrompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (v *VisionService) analyze(ctx context.Context, task string, img llm.Image, system, prompt string) (string, error) {
	if len(img.Data) == 0 {
		return "", apperr.InvalidInput("image is required")
	}

	resp, err := v.gateway.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt, Images: []llm.Image{img}},
		},
	})
	if err != nil {
		return "", err
	}

	slog.Info("vision call",
		"task", task,
		"provider", resp.Provider,
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"cost_usd", resp.CostUSD,
		"latency_ms", resp.LatencyMs,
	)
	return resp.Content, nil
}
