package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/assistgateway/internal/api"
	"github.com/nikhilbhutani/assistgateway/internal/api/handlers"
	"github.com/nikhilbhutani/assistgateway/internal/assist"
	"github.com/nikhilbhutani/assistgateway/internal/cache"
	"github.com/nikhilbhutani/assistgateway/internal/config"
	"github.com/nikhilbhutani/assistgateway/internal/llm"
	"github.com/nikhilbhutani/assistgateway/internal/multimodal"
	"github.com/nikhilbhutani/assistgateway/internal/multimodal/detect"
	"github.com/nikhilbhutani/assistgateway/internal/multimodal/ocr"
	"github.com/nikhilbhutani/assistgateway/internal/multimodal/tts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Object detection
	labels := detect.COCOLabels
	if cfg.Detect.LabelsFile != "" {
		labels, err = detect.LoadLabels(cfg.Detect.LabelsFile)
		if err != nil {
			slog.Error("failed to load detector labels", "path", cfg.Detect.LabelsFile, "error", err)
			os.Exit(1)
		}
	}
	detector := detect.NewHTTPDetector(detect.HTTPDetectorConfig{
		URL:           cfg.Detect.URL,
		MinConfidence: cfg.Detect.MinConfidence,
		Labels:        labels,
	})

	// Vision-language models
	llmGW, err := llm.NewGateway(ctx, cfg.Vision)
	if err != nil {
		slog.Error("failed to init vision gateway", "error", err)
		os.Exit(1)
	}
	defer llmGW.Close()
	vision := multimodal.NewVisionService(llmGW)

	speech, err := newSpeech(ctx, cfg.TTS)
	if err != nil {
		slog.Error("failed to init speech backend", "backend", cfg.TTS.Backend, "error", err)
		os.Exit(1)
	}

	var engine ocr.Engine
	switch cfg.OCR.Backend {
	case "vision":
		engine = ocr.NewVision(vision)
	default:
		t := ocr.NewTesseract(ocr.TesseractConfig{
			BinPath:     cfg.OCR.TesseractBin,
			Language:    cfg.OCR.Language,
			PageSegMode: cfg.OCR.PageSegMode,
		})
		if err := t.Available(ctx); err != nil {
			slog.Warn("tesseract not usable, read_text will fail until it is installed", "error", err)
		}
		engine = t
	}

	checks := map[string]handlers.Check{
		"detector": detector.CheckHealth,
	}

	// Redis result cache (optional)
	var store cache.Store
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		c := cache.NewCache(rdb)
		if err := c.Ping(ctx); err != nil {
			slog.Warn("redis unavailable, results will not be cached until it recovers", "error", err)
		}
		store = c
		checks["redis"] = c.Ping
	}

	svc := assist.NewService(assist.Deps{
		Detector: detector,
		Vision:   vision,
		Speech:   speech,
		OCR:      engine,
		Cache:    store,
	}, assist.Options{
		DetectTimeout:      cfg.Detect.Timeout,
		VisionTimeout:      cfg.Vision.Timeout,
		TTSTimeout:         cfg.TTS.Timeout,
		OCRTimeout:         cfg.OCR.Timeout,
		DetectMaxDimension: cfg.Detect.MaxDimension,
		MaxImagePixels:     cfg.Server.MaxImagePixels,
		CacheTTL:           cfg.Redis.CacheTTL,
	})

	router := api.NewRouter(cfg, svc, llmGW, checks)
	defer router.Close()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("starting API server",
			"addr", cfg.Addr(),
			"detector", detector.Name(),
			"vision_provider", cfg.Vision.Provider,
			"tts", speech.Name(),
			"ocr", engine.Name(),
			"cache", store != nil,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func newSpeech(ctx context.Context, cfg config.TTSConfig) (tts.Provider, error) {
	switch cfg.Backend {
	case "polly":
		return tts.NewPollyTTS(ctx, tts.PollyTTSConfig{
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
			Region:    cfg.AWSRegion,
			Voice:     cfg.Voice,
		})
	case "openai":
		return tts.NewOpenAITTS(tts.OpenAITTSConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Voice:   cfg.Voice,
		}), nil
	default:
		return nil, fmt.Errorf("unknown tts backend %q", cfg.Backend)
	}
}
