// Package sitemap builds the canonical site map from the content store and memoises the result.
package sitemap

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"finitefield.org/hanko-sitemap/internal/canonical"
	"finitefield.org/hanko-sitemap/internal/contentstore"
	"finitefield.org/hanko-sitemap/internal/domain"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"

	// ModDateLayout renders UTC timestamps with millisecond precision and a Z suffix.
	ModDateLayout = "2006-01-02T15:04:05.000Z07:00"
)

var (
	// ErrStoreMissing indicates the content store dependency was not provided.
	ErrStoreMissing = errors.New("sitemap: content store is required")
	// ErrTraverserMissing indicates the traverser dependency was not provided.
	ErrTraverserMissing = errors.New("sitemap: page traverser is required")
)

var tracer = otel.Tracer(metricNamespace)

// MissingPageError reports a page that was discovered during traversal but could not be loaded.
type MissingPageError struct {
	PageID domain.RawPageID
}

func (e *MissingPageError) Error() string {
	return fmt.Sprintf("error loading page %q", string(e.PageID))
}

// BuilderDeps bundles the collaborators required by the builder.
type BuilderDeps struct {
	Store     contentstore.Store
	Traverser contentstore.Traverser
	Site      domain.Site
	Options   canonical.Options
	Logger    *zap.Logger
	Meter     metric.Meter
	Clock     func() time.Time
}

// Builder performs one full site map build per Build call. It holds no state between builds.
type Builder struct {
	store     contentstore.Store
	traverser contentstore.Traverser
	site      domain.Site
	opts      canonical.Options
	logger    *zap.Logger
	metrics   *buildMetrics
	clock     func() time.Time
}

// NewBuilder validates deps and constructs a Builder.
func NewBuilder(deps BuilderDeps) (*Builder, error) {
	if deps.Store == nil {
		return nil, ErrStoreMissing
	}
	if deps.Traverser == nil {
		return nil, ErrTraverserMissing
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	opts := deps.Options
	if deps.Site.IncludePageIDInURLs {
		opts.IncludeRawIDSuffix = true
	}
	return &Builder{
		store:     deps.Store,
		traverser: deps.Traverser,
		site:      deps.Site,
		opts:      opts,
		logger:    logger.Named("sitemap"),
		metrics:   newBuildMetrics(deps.Meter, logger),
		clock:     clock,
	}, nil
}

// Build traverses the content tree below rootPageID and folds the discovered pages into a
// SiteMap. Any page whose record could not be loaded fails the whole build.
func (b *Builder) Build(ctx context.Context, rootPageID, rootSpaceID string) (*domain.SiteMap, error) {
	ctx, span := tracer.Start(ctx, "sitemap.build", trace.WithAttributes(
		attribute.String("sitemap.root_page_id", rootPageID),
	))
	defer span.End()

	started := b.clock()
	sm, err := b.build(ctx, rootPageID, rootSpaceID, started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		b.metrics.recordBuild(ctx, outcomeError, 0, 0)
		b.logger.Error("site map build failed", zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("sitemap.pages", sm.PageMap.Len()),
		attribute.Int("sitemap.canonical_pages", sm.CanonicalPageMap.Len()),
		attribute.Int("sitemap.collisions", len(sm.Collisions)),
	)
	b.metrics.recordBuild(ctx, outcomeSuccess, sm.CanonicalPageMap.Len(), len(sm.Collisions))
	b.logger.Info("site map built",
		zap.String("build_id", sm.BuildID),
		zap.Int("pages", sm.PageMap.Len()),
		zap.Int("canonical_pages", sm.CanonicalPageMap.Len()),
		zap.Int("collisions", len(sm.Collisions)),
		zap.Duration("duration", b.clock().Sub(started)),
	)
	return sm, nil
}

func (b *Builder) build(ctx context.Context, rootPageID, rootSpaceID string, started time.Time) (*domain.SiteMap, error) {
	fetch := func(ctx context.Context, pageID domain.RawPageID) (*domain.PageRecord, error) {
		b.logger.Info("content store get page", zap.String("page_id", canonical.CompactID(pageID)))
		return b.store.GetPage(ctx, pageID)
	}

	pages, err := b.traverser.TraversePages(ctx, rootPageID, rootSpaceID, fetch)
	if err != nil {
		return nil, fmt.Errorf("sitemap: traverse pages: %w", err)
	}
	if pages == nil {
		pages = domain.NewPageMap()
	}

	canonicalPages := domain.NewCanonicalPageMap()
	modDates := make(domain.PageModDates)
	var collisions []domain.Collision
	var loadErr error

	pages.Range(func(pageID domain.RawPageID, record *domain.PageRecord) bool {
		if record == nil {
			loadErr = &MissingPageError{PageID: pageID}
			return false
		}

		canonicalID := canonical.Resolve(pageID, record, b.opts)
		if existing, taken := canonicalPages.Get(canonicalID); taken {
			b.logger.Warn("duplicate canonical page id",
				zap.String("canonical_page_id", string(canonicalID)),
				zap.String("page_id", string(pageID)),
				zap.String("existing_page_id", string(existing)),
			)
			collisions = append(collisions, domain.Collision{
				CanonicalPageID: canonicalID,
				PageID:          pageID,
				ExistingPageID:  existing,
			})
			return true
		}

		canonicalPages.Set(canonicalID, pageID)
		if modDate, ok := NormalizeModDate(record.LastEditedTime); ok {
			modDates[canonicalID] = modDate
		} else if strings.TrimSpace(record.LastEditedTime) != "" {
			b.logger.Debug("ignoring unparseable last edited time",
				zap.String("page_id", string(pageID)),
				zap.String("last_edited_time", record.LastEditedTime),
			)
		}
		return true
	})
	if loadErr != nil {
		return nil, loadErr
	}

	site := b.site
	site.RootPageID = rootPageID
	site.RootSpaceID = rootSpaceID
	site.IncludePageIDInURLs = b.opts.IncludeRawIDSuffix
	return &domain.SiteMap{
		Site:             site,
		BuildID:          ulid.Make().String(),
		GeneratedAt:      started.UTC(),
		PageMap:          pages,
		CanonicalPageMap: canonicalPages,
		PageModDates:     modDates,
		Collisions:       collisions,
	}, nil
}

var modDateInputLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeModDate parses a store timestamp and renders it as a UTC ISO-8601 string. It accepts
// RFC 3339 text, zone-less datetimes (read as UTC), plain dates and epoch milliseconds.
func NormalizeModDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if isDigits(raw) {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", false
		}
		return time.UnixMilli(ms).UTC().Format(ModDateLayout), true
	}
	for _, layout := range modDateInputLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(ModDateLayout), true
		}
	}
	return "", false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
