package sitemap

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const metricNamespace = "finitefield.org/hanko-sitemap/internal/sitemap"

// buildMetrics tolerates instruments that failed to register; nil instruments are skipped.
type buildMetrics struct {
	builds     metric.Int64Counter
	collisions metric.Int64Counter
	pages      metric.Int64Histogram
	cacheHits  metric.Int64Counter
}

func newBuildMetrics(meter metric.Meter, logger *zap.Logger) *buildMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &buildMetrics{}
	var err error
	if m.builds, err = meter.Int64Counter("sitemap.builds",
		metric.WithDescription("Completed site map builds by outcome")); err != nil {
		logger.Warn("sitemap: unable to register builds metric", zap.Error(err))
		m.builds = nil
	}
	if m.collisions, err = meter.Int64Counter("sitemap.collisions",
		metric.WithDescription("Pages dropped because their canonical id was already taken")); err != nil {
		logger.Warn("sitemap: unable to register collisions metric", zap.Error(err))
		m.collisions = nil
	}
	if m.pages, err = meter.Int64Histogram("sitemap.pages",
		metric.WithDescription("Canonical pages per successful build")); err != nil {
		logger.Warn("sitemap: unable to register pages metric", zap.Error(err))
		m.pages = nil
	}
	if m.cacheHits, err = meter.Int64Counter("sitemap.cache.hits",
		metric.WithDescription("Site map requests served from a memoised build")); err != nil {
		logger.Warn("sitemap: unable to register cache hit metric", zap.Error(err))
		m.cacheHits = nil
	}
	return m
}

func (m *buildMetrics) recordBuild(ctx context.Context, outcome string, canonicalPages, collisions int) {
	if m == nil {
		return
	}
	if m.builds != nil {
		m.builds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if outcome != outcomeSuccess {
		return
	}
	if m.collisions != nil && collisions > 0 {
		m.collisions.Add(ctx, int64(collisions))
	}
	if m.pages != nil {
		m.pages.Record(ctx, int64(canonicalPages))
	}
}

func (m *buildMetrics) recordCacheHit(ctx context.Context) {
	if m == nil || m.cacheHits == nil {
		return
	}
	m.cacheHits.Add(ctx, 1)
}
