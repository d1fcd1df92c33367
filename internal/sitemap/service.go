package sitemap

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"finitefield.org/hanko-sitemap/internal/domain"
)

var (
	// ErrBuilderMissing indicates the service was constructed without a builder.
	ErrBuilderMissing = errors.New("sitemap: builder is required")
	// ErrRootPageMissing indicates the service was constructed without a root page id.
	ErrRootPageMissing = errors.New("sitemap: root page id is required")
)

// SiteMapBuilder performs a single uncached build.
type SiteMapBuilder interface {
	Build(ctx context.Context, rootPageID, rootSpaceID string) (*domain.SiteMap, error)
}

// ServiceDeps bundles the collaborators required by the service.
type ServiceDeps struct {
	Builder     SiteMapBuilder
	RootPageID  string
	RootSpaceID string
	// TTL expires memoised builds. Zero keeps a build until Invalidate or Refresh.
	TTL    time.Duration
	Logger *zap.Logger
	Meter  metric.Meter
	Clock  func() time.Time
}

// Service is the memoised entry point for obtaining the current site map.
type Service struct {
	memo        *Memoizer[*domain.SiteMap]
	rootPageID  string
	rootSpaceID string
	logger      *zap.Logger
}

func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Builder == nil {
		return nil, ErrBuilderMissing
	}
	if strings.TrimSpace(deps.RootPageID) == "" {
		return nil, ErrRootPageMissing
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	builder := deps.Builder
	memo := NewMemoizer[*domain.SiteMap](
		func(ctx context.Context, args []string) (*domain.SiteMap, error) {
			return builder.Build(ctx, args[0], args[1])
		},
		WithTTL(deps.TTL),
		WithClock(deps.Clock),
		withMetrics(newBuildMetrics(deps.Meter, logger)),
	)
	return &Service{
		memo:        memo,
		rootPageID:  deps.RootPageID,
		rootSpaceID: deps.RootSpaceID,
		logger:      logger.Named("sitemap"),
	}, nil
}

// GetSiteMap returns the memoised site map, building it on first use. Concurrent first calls
// share one build, and a failed build is retried by the next call.
func (s *Service) GetSiteMap(ctx context.Context) (*domain.SiteMap, error) {
	return s.memo.Get(ctx, s.rootPageID, s.rootSpaceID)
}

// Refresh discards the memoised site map and builds a new one.
func (s *Service) Refresh(ctx context.Context) (*domain.SiteMap, error) {
	s.memo.Invalidate(s.rootPageID, s.rootSpaceID)
	return s.memo.Get(ctx, s.rootPageID, s.rootSpaceID)
}

// Invalidate discards the memoised site map so the next GetSiteMap rebuilds it.
func (s *Service) Invalidate() {
	s.logger.Info("site map invalidated")
	s.memo.Invalidate(s.rootPageID, s.rootSpaceID)
}
