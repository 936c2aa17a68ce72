package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/nikhilbhutani/assistgateway/internal/apperr"
	"github.com/nikhilbhutani/assistgateway/internal/config"
)

type gateway struct {
	providers        map[string]Provider
	defaultProvider  string
	defaultModel     string
	fallbackProvider string
	maxRetries       int
}

// NewGateway registers every provider that has credentials in cfg. A provider named in
// cfg but lacking credentials is reported as unavailable at call time.
func NewGateway(ctx context.Context, cfg config.VisionConfig) (Gateway, error) {
	var providers []Provider
	if cfg.OpenAIKey != "" {
		providers = append(providers, NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIBaseURL))
	}
	if cfg.AnthropicKey != "" {
		providers = append(providers, NewAnthropicProvider(cfg.AnthropicKey))
	}
	if cfg.GeminiKey != "" {
		gp, err := NewGeminiProvider(ctx, cfg.GeminiKey)
		if err != nil {
			return nil, err
		}
		providers = append(providers, gp)
	}
	if cfg.OllamaURL != "" {
		providers = append(providers, NewOllamaProvider(cfg.OllamaURL))
	}

	g := NewGatewayWithProviders(cfg.Provider, cfg.FallbackProvider, cfg.MaxRetries, providers...).(*gateway)
	g.defaultModel = cfg.Model
	return g, nil
}

func NewGatewayWithProviders(defaultProvider, fallbackProvider string, maxRetries int, providers ...Provider) Gateway {
	g := &gateway{
		providers:        make(map[string]Provider, len(providers)),
		defaultProvider:  defaultProvider,
		fallbackProvider: fallbackProvider,
		maxRetries:       maxRetries,
	}
	for _, p := range providers {
		g.providers[p.Name()] = p
	}
	return g
}

func (g *gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, apperr.Unavailable("llm gateway", fmt.Errorf("provider %q: %w", name, apperr.ErrNotConfigured))
	}
	return p, nil
}

func (g *gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	resp, err := g.chatWithRetry(ctx, providerName, req)
	if err != nil && g.fallbackProvider != "" && g.fallbackProvider != providerName && ctx.Err() == nil {
		slog.Warn("primary provider failed, trying fallback",
			"primary", providerName,
			"fallback", g.fallbackProvider,
			"error", err,
		)
		req.Model = ""
		return g.chatWithRetry(ctx, g.fallbackProvider, req)
	}
	return resp, err
}

func (g *gateway) chatWithRetry(ctx context.Context, providerName string, req ChatRequest) (*ChatResponse, error) {
	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}
	if req.Model == "" {
		req.Model = p.DefaultModel()
		if providerName == g.defaultProvider && g.defaultModel != "" {
			req.Model = g.defaultModel
		}
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, apperr.Unavailable(providerName, ctx.Err())
			case <-time.After(backoff):
			}
			slog.Debug("retrying LLM call", "provider", providerName, "attempt", attempt)
		}

		resp, err := p.ChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if apperr.KindOf(err) != apperr.KindUpstreamUnavailable {
			break
		}
	}
	return nil, lastErr
}

func (g *gateway) ListModels() []ModelInfo {
	var models []ModelInfo
	for _, p := range g.providers {
		model := p.DefaultModel()
		if p.Name() == g.defaultProvider && g.defaultModel != "" {
			model = g.defaultModel
		}
		models = append(models, ModelInfo{
			Provider: p.Name(),
			Model:    model,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Provider < models[j].Provider })
	return models
}

// Close releases providers that hold connections.
func (g *gateway) Close() error {
	var errs []error
	for _, p := range g.providers {
		if c, ok := p.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
