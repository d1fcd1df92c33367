package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"finitefield.org/hanko-sitemap/internal/domain"
)

var (
	// ErrWriterMissing indicates the exporter was constructed without an object writer.
	ErrWriterMissing = errors.New("feed: object writer is required")
	// ErrBucketMissing indicates the exporter was constructed without a bucket.
	ErrBucketMissing = errors.New("feed: bucket is required")
)

// ObjectAttrs are the HTTP metadata stored with an uploaded object.
type ObjectAttrs struct {
	ContentType  string
	CacheControl string
}

// ObjectWriter uploads a whole object.
type ObjectWriter interface {
	WriteObject(ctx context.Context, bucket, object string, data []byte, attrs ObjectAttrs) error
}

// GCSWriter uploads objects to Cloud Storage.
type GCSWriter struct {
	client *storage.Client
}

func NewGCSWriter(client *storage.Client) *GCSWriter {
	return &GCSWriter{client: client}
}

// WriteObject implements ObjectWriter.
func (g *GCSWriter) WriteObject(ctx context.Context, bucket, object string, data []byte, attrs ObjectAttrs) error {
	if g == nil || g.client == nil {
		return errors.New("feed: storage client is required")
	}
	w := g.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = attrs.ContentType
	w.CacheControl = attrs.CacheControl
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("feed: write gs://%s/%s: %w", bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("feed: finalize gs://%s/%s: %w", bucket, object, err)
	}
	return nil
}

// ExportResult describes one uploaded feed.
type ExportResult struct {
	BuildID     string
	Bucket      string
	Object      string
	URLCount    int
	GeneratedAt time.Time
}

// ExporterDeps bundles the collaborators required by the exporter.
type ExporterDeps struct {
	Writer ObjectWriter
	Bucket string
	Object string
	Render RenderOptions
	MaxAge time.Duration
	Logger *zap.Logger
	Clock  func() time.Time
}

// Exporter renders site maps and uploads them as a single object.
type Exporter struct {
	writer ObjectWriter
	bucket string
	object string
	render RenderOptions
	maxAge time.Duration
	logger *zap.Logger
	clock  func() time.Time
}

func NewExporter(deps ExporterDeps) (*Exporter, error) {
	if deps.Writer == nil {
		return nil, ErrWriterMissing
	}
	bucket := strings.TrimSpace(deps.Bucket)
	if bucket == "" {
		return nil, ErrBucketMissing
	}
	object := strings.TrimLeft(strings.TrimSpace(deps.Object), "/")
	if object == "" {
		object = "sitemap.xml"
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Exporter{
		writer: deps.Writer,
		bucket: bucket,
		object: object,
		render: deps.Render,
		maxAge: deps.MaxAge,
		logger: logger.Named("feed"),
		clock:  clock,
	}, nil
}

// Export renders sm and uploads it.
func (e *Exporter) Export(ctx context.Context, sm *domain.SiteMap) (ExportResult, error) {
	opts := e.render
	if opts.Now.IsZero() {
		opts.Now = e.clock()
	}
	data, count, err := RenderBytes(sm, opts)
	if err != nil {
		return ExportResult{}, err
	}

	attrs := ObjectAttrs{ContentType: ContentType, CacheControl: CacheControl(e.maxAge)}
	if err := e.writer.WriteObject(ctx, e.bucket, e.object, data, attrs); err != nil {
		return ExportResult{}, err
	}

	result := ExportResult{
		BuildID:     sm.BuildID,
		Bucket:      e.bucket,
		Object:      e.object,
		URLCount:    count,
		GeneratedAt: sm.GeneratedAt,
	}
	e.logger.Info("feed exported",
		zap.String("build_id", result.BuildID),
		zap.String("bucket", result.Bucket),
		zap.String("object", result.Object),
		zap.Int("urls", result.URLCount),
		zap.Int("bytes", len(data)),
	)
	return result, nil
}
