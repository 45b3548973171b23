package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/makenakalei/fika-scheduling/internal/identity"
	"github.com/makenakalei/fika-scheduling/internal/middleware"
	"github.com/makenakalei/fika-scheduling/internal/store"
)

// RouterConfig collects the dependencies of the HTTP API.
type RouterConfig struct {
	Repo            store.Repository
	Generator       ScheduleGenerator
	GenerateTimeout time.Duration
	AllowedOrigins  []string
	// GenerateLimiter throttles schedule generation per user when set.
	GenerateLimiter *middleware.RateLimiter
	// Metrics is served at /metrics when set.
	Metrics http.Handler
	// Frontend is served for every unmatched path when set.
	Frontend http.Handler
	// RequestLogging enables chi's request logger.
	RequestLogging bool
}

// NewRouter builds the HTTP API.
func NewRouter(cfg RouterConfig) http.Handler {
	base := NewHandler(cfg.Repo, cfg.Generator, cfg.GenerateTimeout)
	healthHandler := NewHealthHandler(cfg.Repo)
	userHandler := NewUserHandler(base)
	taskHandler := NewTaskHandler(base)
	scheduleHandler := NewScheduleHandler(base)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	if cfg.RequestLogging {
		r.Use(chiMiddleware.Logger)
	}
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(origins))

	// Public routes.
	healthHandler.RegisterHealth(r)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	userHandler.RegisterPublicRoutes(r)

	// Routes for a known user.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.Repo))
		userHandler.RegisterRoutes(r)
		taskHandler.RegisterRoutes(r)

		var limit func(http.Handler) http.Handler
		if cfg.GenerateLimiter != nil {
			limit = cfg.GenerateLimiter.Middleware
		}
		scheduleHandler.RegisterRoutes(r, limit)
	})

	if cfg.Frontend != nil {
		r.Handle("/*", cfg.Frontend)
	}
	return r
}
