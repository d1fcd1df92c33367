package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"finitefield.org/hanko-sitemap/internal/platform/httpx"
	"finitefield.org/hanko-sitemap/internal/platform/requestctx"
)

// ReadinessCheck reports whether a dependency is ready to serve.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	startedAt time.Time
	clock     func() time.Time
	version   string
	checks    map[string]ReadinessCheck
	order     []string
}

// HealthOption customises HealthHandlers.
type HealthOption func(*HealthHandlers)

func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

func WithHealthStartedAt(t time.Time) HealthOption {
	return func(h *HealthHandlers) {
		h.startedAt = t
	}
}

func WithHealthVersion(version string) HealthOption {
	return func(h *HealthHandlers) {
		h.version = version
	}
}

// WithReadinessCheck registers a named check run by /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) HealthOption {
	return func(h *HealthHandlers) {
		if name == "" || check == nil {
			return
		}
		if _, exists := h.checks[name]; !exists {
			h.order = append(h.order, name)
		}
		h.checks[name] = check
	}
}

func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		startedAt: time.Now(),
		clock:     time.Now,
		checks:    map[string]ReadinessCheck{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Healthz reports liveness with the process uptime.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	payload := map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.startedAt).Round(time.Second).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	if h.version != "" {
		payload["version"] = h.version
	}
	writeJSON(w, http.StatusOK, payload)
}

// Readyz runs every readiness check and fails with 503 when any of them fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	results := make(map[string]string, len(h.order))
	ready := true
	for _, name := range h.order {
		if err := h.checks[name](ctx); err != nil {
			ready = false
			results[name] = "error"
			requestctx.Logger(ctx).Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		results[name] = "ok"
	}

	if !ready {
		httpx.WriteError(ctx, w, httpx.NewError("not_ready", "service is not ready", http.StatusServiceUnavailable).
			WithDetails(map[string]any{"checks": results}))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "checks": results})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
