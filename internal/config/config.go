package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Detect    DetectConfig
	Vision    VisionConfig
	TTS       TTSConfig
	OCR       OCRConfig
	LogLevel  slog.Level
}

type ServerConfig struct {
	Host         string
	Port         int
	MaxBodyBytes int64
	// MaxImagePixels bounds width*height of images decoded for detection and OCR.
	MaxImagePixels int
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP. Only enable
	// behind a proxy that overwrites those headers, since the rate limiter keys on it.
	TrustProxy   bool
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr     string // empty disables the result cache
	Password string
	DB       int
	CacheTTL time.Duration
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type DetectConfig struct {
	URL           string // inference endpoint accepting multipart "file"
	LabelsFile    string // optional YOLO data.yaml with a names list
	MinConfidence float64
	MaxDimension  int
	Timeout       time.Duration
}

type VisionConfig struct {
	Provider         string // openai, anthropic, gemini or ollama
	FallbackProvider string
	Model            string
	MaxRetries       int
	OpenAIKey        string
	OpenAIBaseURL    string
	AnthropicKey     string
	GeminiKey        string
	OllamaURL        string
	Timeout          time.Duration
}

type TTSConfig struct {
	Backend       string // "polly" or "openai"
	Voice         string
	AWSAccessKey  string
	AWSSecretKey  string
	AWSRegion     string
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	Timeout       time.Duration
}

type OCRConfig struct {
	Backend      string // "tesseract" or "vision"
	TesseractBin string
	Language     string
	PageSegMode  int
	Timeout      time.Duration
}

func Load() (*Config, error) {
	port, err := getEnvInt("PORT", 5000)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	maxBody, err := getEnvInt("MAX_BODY_BYTES", 20<<20)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_BODY_BYTES: %w", err)
	}
	maxPixels, err := getEnvInt("MAX_IMAGE_PIXELS", 40_000_000)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_IMAGE_PIXELS: %w", err)
	}
	trustProxy, err := getEnvBool("TRUST_PROXY", false)
	if err != nil {
		return nil, fmt.Errorf("invalid TRUST_PROXY: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cacheTTL, err := getEnvDuration("CACHE_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	rps, err := getEnvFloat("RATE_LIMIT_RPS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	minConf, err := getEnvFloat("DETECT_MIN_CONFIDENCE", 0.25)
	if err != nil {
		return nil, fmt.Errorf("invalid DETECT_MIN_CONFIDENCE: %w", err)
	}

	maxDim, err := getEnvInt("DETECT_MAX_DIMENSION", 1280)
	if err != nil {
		return nil, fmt.Errorf("invalid DETECT_MAX_DIMENSION: %w", err)
	}

	maxRetries, err := getEnvInt("VISION_MAX_RETRIES", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid VISION_MAX_RETRIES: %w", err)
	}

	psm, err := getEnvInt("OCR_PSM", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid OCR_PSM: %w", err)
	}

	timeouts := map[string]time.Duration{
		"DETECT_TIMEOUT": 30 * time.Second,
		"VISION_TIMEOUT": 60 * time.Second,
		"TTS_TIMEOUT":    30 * time.Second,
		"OCR_TIMEOUT":    30 * time.Second,
	}
	for key, def := range timeouts {
		d, err := getEnvDuration(key, def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		timeouts[key] = d
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("HOST", "0.0.0.0"),
			Port:           port,
			MaxBodyBytes:   int64(maxBody),
			MaxImagePixels: maxPixels,
			TrustProxy:     trustProxy,
			CORSOrigins:    strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ","),
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   120 * time.Second,
			IdleTimeout:    120 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			CacheTTL: cacheTTL,
		},
		RateLimit: RateLimitConfig{
			RPS:   rps,
			Burst: burst,
		},
		Detect: DetectConfig{
			URL:           getEnv("DETECT_URL", "http://localhost:8001/predict"),
			LabelsFile:    getEnv("DETECT_LABELS_FILE", ""),
			MinConfidence: minConf,
			MaxDimension:  maxDim,
			Timeout:       timeouts["DETECT_TIMEOUT"],
		},
		Vision: VisionConfig{
			Provider:         getEnv("VISION_PROVIDER", "openai"),
			FallbackProvider: getEnv("VISION_FALLBACK_PROVIDER", ""),
			Model:            getEnv("VISION_MODEL", ""),
			MaxRetries:       maxRetries,
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			GeminiKey:        getEnv("GEMINI_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", ""),
			Timeout:          timeouts["VISION_TIMEOUT"],
		},
		TTS: TTSConfig{
			Backend:       getEnv("TTS_BACKEND", "polly"),
			Voice:         getEnv("TTS_VOICE", ""),
			AWSAccessKey:  getEnv("AWS_ACCESS_KEY", ""),
			AWSSecretKey:  getEnv("AWS_SECRET_KEY", ""),
			AWSRegion:     getEnv("AWS_REGION", "us-east-1"),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnv("TTS_OPENAI_MODEL", ""),
			Timeout:       timeouts["TTS_TIMEOUT"],
		},
		OCR: OCRConfig{
			Backend:      getEnv("OCR_BACKEND", "tesseract"),
			TesseractBin: getEnv("OCR_TESSERACT_BIN", "tesseract"),
			Language:     getEnv("OCR_LANG", "eng"),
			PageSegMode:  psm,
			Timeout:      timeouts["OCR_TIMEOUT"],
		},
		LogLevel: level,
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate rejects unknown backend names. Missing credentials are not fatal: the
// affected endpoint reports upstream_unavailable instead.
func (c *Config) Validate() error {
	var problems []string
	if !oneOf(c.Vision.Provider, "openai", "anthropic", "gemini", "ollama") {
		problems = append(problems, "VISION_PROVIDER="+c.Vision.Provider)
	}
	if c.Vision.FallbackProvider != "" && !oneOf(c.Vision.FallbackProvider, "openai", "anthropic", "gemini", "ollama") {
		problems = append(problems, "VISION_FALLBACK_PROVIDER="+c.Vision.FallbackProvider)
	}
	if !oneOf(c.TTS.Backend, "polly", "openai") {
		problems = append(problems, "TTS_BACKEND="+c.TTS.Backend)
	}
	if !oneOf(c.OCR.Backend, "tesseract", "vision") {
		problems = append(problems, "OCR_BACKEND="+c.OCR.Backend)
	}
	if c.Detect.MinConfidence < 0 || c.Detect.MinConfidence > 1 {
		problems = append(problems, fmt.Sprintf("DETECT_MIN_CONFIDENCE=%g", c.Detect.MinConfidence))
	}
	if c.Server.MaxImagePixels <= 0 {
		problems = append(problems, fmt.Sprintf("MAX_IMAGE_PIXELS=%d", c.Server.MaxImagePixels))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
