package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nikhilbhutani/assistgateway/internal/apperr"
)

type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string, opts ...option.ClientOption) (*GeminiProvider, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) DefaultModel() string { return "gemini-2.0-flash" }

func (p *GeminiProvider) Close() error { return p.client.Close() }

func (p *GeminiProvider) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	const op = "gemini chat"
	start := time.Now()

	model := p.client.GenerativeModel(req.Model)
	systemText, rest := splitSystem(req.Messages)
	if systemText != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(systemText))
	}
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	var parts []genai.Part
	for _, m := range rest {
		for _, img := range m.Images {
			parts = append(parts, genai.ImageData(strings.TrimPrefix(img.MimeType, "image/"), img.Data))
		}
		if m.Content != "" {
			parts = append(parts, genai.Text(m.Content))
		}
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		status := 0
		var gErr *googleapi.Error
		if errors.As(err, &gErr) {
			status = gErr.Code
		}
		return nil, apperr.Upstream(op, status, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, apperr.UpstreamError(op, errors.New("response has no candidates"))
	}

	var content strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			content.WriteString(string(text))
		}
	}

	out := &ChatResponse{
		Provider:  "gemini",
		Model:     req.Model,
		Content:   content.String(),
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
		out.CostUSD = CalculateCost(req.Model, out.InputTokens, out.OutputTokens)
	}
	return out, nil
}
