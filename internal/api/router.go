package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/assistgateway/internal/api/handlers"
	"github.com/nikhilbhutani/assistgateway/internal/api/middleware"
	"github.com/nikhilbhutani/assistgateway/internal/assist"
	"github.com/nikhilbhutani/assistgateway/internal/config"
	"github.com/nikhilbhutani/assistgateway/internal/llm"
)

type Router struct {
	mux    *chi.Mux
	cfg    *config.Config
	svc    *assist.Service
	llmGW  llm.Gateway
	checks map[string]handlers.Check
	rl     *middleware.RateLimiter
}

// NewRouter wires the handlers to an already-built service. checks feed /readyz.
func NewRouter(cfg *config.Config, svc *assist.Service, gw llm.Gateway, checks map[string]handlers.Check) *Router {
	return &Router{
		mux:    chi.NewRouter(),
		cfg:    cfg,
		svc:    svc,
		llmGW:  gw,
		checks: checks,
		rl:     middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	// RealIP rewrites RemoteAddr from client headers, which the rate limiter keys on.
	if rt.cfg.Server.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.CORSOrigins))

	// Health endpoints (not rate limited)
	health := handlers.NewHealthHandler(rt.checks)
	r.Get("/", health.Home)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	assistH := handlers.NewAssistHandler(rt.svc)
	r.Group(func(r chi.Router) {
		r.Use(rt.rl.Limit)
		if rt.cfg.Server.MaxBodyBytes > 0 {
			r.Use(chimiddleware.RequestSize(rt.cfg.Server.MaxBodyBytes))
		}

		r.Post("/detect_objects", assistH.DetectObjects)
		r.Post("/describe_scene", assistH.DescribeScene)
		r.Post("/speak", assistH.Speak)
		r.Post("/read_text", assistH.ReadText)
	})

	if rt.llmGW != nil {
		modelsH := handlers.NewModelsHandler(rt.llmGW)
		r.Get("/models", modelsH.Models)
	}

	return r
}

// Close stops background work owned by the router.
func (rt *Router) Close() {
	rt.rl.Stop()
}
