// Package handlers exposes the HTTP surface of the site map service.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"finitefield.org/hanko-sitemap/internal/platform/httpx"
)

const (
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

type routerConfig struct {
	timeout             time.Duration
	middlewares         []func(http.Handler) http.Handler
	internalMiddlewares []func(http.Handler) http.Handler
	health              *HealthHandlers
	sitemap             *SiteMapHandlers
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

// NewRouter builds the chi router with shared middleware, health probes and site map routes.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{timeout: defaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Timeout(cfg.timeout))
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(httpx.MethodNotAllowed)

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	if cfg.sitemap != nil {
		r.HandleFunc("/sitemap.xml", cfg.sitemap.SiteMap)
		r.Route("/internal/sitemap", func(internal chi.Router) {
			for _, mw := range cfg.internalMiddlewares {
				if mw != nil {
					internal.Use(mw)
				}
			}
			internal.Post("/invalidate", cfg.sitemap.Invalidate)
			internal.Post("/refresh", cfg.sitemap.Refresh)
		})
	}
	return r
}

// WithMiddlewares appends global middleware after the built-in request id, real ip and timeout.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithInternalMiddlewares guards the /internal routes.
func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.internalMiddlewares = append(cfg.internalMiddlewares, mw...)
	}
}

// WithRequestTimeout overrides the 60s per-request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *routerConfig) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

func WithSiteMapHandlers(h *SiteMapHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.sitemap = h
	}
}
