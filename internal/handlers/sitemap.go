package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"finitefield.org/hanko-sitemap/internal/domain"
	"finitefield.org/hanko-sitemap/internal/feed"
	"finitefield.org/hanko-sitemap/internal/platform/httpx"
	"finitefield.org/hanko-sitemap/internal/platform/requestctx"
	"finitefield.org/hanko-sitemap/internal/sitemap"
)

const defaultFeedMaxAge = 8 * time.Hour

// SiteMapService is the memoised site map source used by the handlers.
type SiteMapService interface {
	GetSiteMap(ctx context.Context) (*domain.SiteMap, error)
	Refresh(ctx context.Context) (*domain.SiteMap, error)
	Invalidate()
}

// SiteMapHandlers serves /sitemap.xml and the internal cache controls.
type SiteMapHandlers struct {
	service SiteMapService
	render  feed.RenderOptions
	maxAge  time.Duration
	clock   func() time.Time
}

// SiteMapOption customises SiteMapHandlers.
type SiteMapOption func(*SiteMapHandlers)

// WithRenderOptions overrides host, base path and changefreq taken from the site map.
func WithRenderOptions(opts feed.RenderOptions) SiteMapOption {
	return func(h *SiteMapHandlers) {
		h.render = opts
	}
}

// WithFeedMaxAge sets the max-age and stale-while-revalidate directives. Defaults to 8h.
func WithFeedMaxAge(d time.Duration) SiteMapOption {
	return func(h *SiteMapHandlers) {
		if d >= 0 {
			h.maxAge = d
		}
	}
}

func WithSiteMapClock(clock func() time.Time) SiteMapOption {
	return func(h *SiteMapHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

func NewSiteMapHandlers(service SiteMapService, opts ...SiteMapOption) *SiteMapHandlers {
	h := &SiteMapHandlers{
		service: service,
		maxAge:  defaultFeedMaxAge,
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// SiteMap renders the current site map as XML. Only GET and HEAD are accepted.
func (h *SiteMapHandlers) SiteMap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		httpx.MethodNotAllowed(w, r)
		return
	}
	if h.service == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sitemap_unavailable", "site map service is not configured", http.StatusServiceUnavailable))
		return
	}

	sm, err := h.service.GetSiteMap(ctx)
	if err != nil {
		h.writeBuildError(ctx, w, err)
		return
	}

	opts := h.render
	opts.Now = h.clock()
	body, count, err := feed.RenderBytes(sm, opts)
	if err != nil {
		requestctx.Logger(ctx).Error("render site map failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("render_failed", "failed to render site map", http.StatusInternalServerError))
		return
	}

	header := w.Header()
	header.Set("Content-Type", feed.ContentType)
	header.Set("Cache-Control", feed.CacheControl(h.maxAge))
	header.Set("Content-Length", strconv.Itoa(len(body)))
	if sm.BuildID != "" {
		header.Set("X-Sitemap-Build-Id", sm.BuildID)
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(body); err != nil {
		requestctx.Logger(ctx).Warn("write site map response failed", zap.Error(err), zap.Int("urls", count))
	}
}

// Invalidate drops the memoised site map.
func (h *SiteMapHandlers) Invalidate(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("sitemap_unavailable", "site map service is not configured", http.StatusServiceUnavailable))
		return
	}
	h.service.Invalidate()
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "invalidated"})
}

// Refresh rebuilds the site map and reports a summary of the new build.
func (h *SiteMapHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.service == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sitemap_unavailable", "site map service is not configured", http.StatusServiceUnavailable))
		return
	}
	sm, err := h.service.Refresh(ctx)
	if err != nil {
		h.writeBuildError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"build_id":        sm.BuildID,
		"generated_at":    sm.GeneratedAt.UTC().Format(time.RFC3339),
		"pages":           sm.PageMap.Len(),
		"canonical_pages": sm.CanonicalPageMap.Len(),
		"collisions":      len(sm.Collisions),
	})
}

func (h *SiteMapHandlers) writeBuildError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := requestctx.Logger(ctx)

	var missing *sitemap.MissingPageError
	switch {
	case errors.As(err, &missing):
		logger.Error("site map build failed", zap.Error(err), zap.String("page_id", string(missing.PageID)))
		httpx.WriteError(ctx, w, httpx.NewError("sitemap_build_failed", err.Error(), http.StatusBadGateway).
			WithDetails(map[string]any{"page_id": string(missing.PageID)}))
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("site map build timed out", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("sitemap_timeout", "timed out waiting for site map", http.StatusGatewayTimeout))
	case errors.Is(err, context.Canceled):
		logger.Info("client gave up waiting for site map")
	default:
		logger.Error("site map build failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("sitemap_build_failed", err.Error(), http.StatusBadGateway))
	}
}
