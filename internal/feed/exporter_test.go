package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordedObject struct {
	bucket, object string
	data           []byte
	attrs          ObjectAttrs
}

type fakeWriter struct {
	objects []recordedObject
	err     error
}

func (f *fakeWriter) WriteObject(_ context.Context, bucket, object string, data []byte, attrs ObjectAttrs) error {
	if f.err != nil {
		return f.err
	}
	f.objects = append(f.objects, recordedObject{bucket: bucket, object: object, data: data, attrs: attrs})
	return nil
}

func TestExporterUploadsRenderedFeed(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	writer := &fakeWriter{}
	exporter, err := NewExporter(ExporterDeps{
		Writer: writer,
		Bucket: "hf-public",
		Object: "/feeds/sitemap.xml",
		MaxAge: 8 * time.Hour,
		Logger: zap.New(core),
		Clock:  func() time.Time { return renderNow },
	})
	require.NoError(t, err)

	sm := homeAboutSiteMap()
	result, err := exporter.Export(context.Background(), sm)
	require.NoError(t, err)
	require.Equal(t, ExportResult{
		BuildID:     sm.BuildID,
		Bucket:      "hf-public",
		Object:      "feeds/sitemap.xml",
		URLCount:    5,
		GeneratedAt: renderNow,
	}, result)

	require.Len(t, writer.objects, 1)
	obj := writer.objects[0]
	require.Equal(t, "hf-public", obj.bucket)
	require.Equal(t, "feeds/sitemap.xml", obj.object)
	require.Equal(t, ObjectAttrs{ContentType: "text/xml", CacheControl: "public, max-age=28800, stale-while-revalidate=28800"}, obj.attrs)

	expected, _, err := RenderBytes(sm, RenderOptions{Now: renderNow})
	require.NoError(t, err)
	require.Equal(t, string(expected), string(obj.data))
	require.Equal(t, 1, logs.FilterMessage("feed exported").Len())
}

func TestExporterPropagatesWriteError(t *testing.T) {
	boom := errors.New("permission denied")
	exporter, err := NewExporter(ExporterDeps{Writer: &fakeWriter{err: boom}, Bucket: "b"})
	require.NoError(t, err)
	_, err = exporter.Export(context.Background(), homeAboutSiteMap())
	require.ErrorIs(t, err, boom)
}

func TestNewExporterValidates(t *testing.T) {
	_, err := NewExporter(ExporterDeps{Bucket: "b"})
	require.ErrorIs(t, err, ErrWriterMissing)
	_, err = NewExporter(ExporterDeps{Writer: &fakeWriter{}, Bucket: " "})
	require.ErrorIs(t, err, ErrBucketMissing)

	exporter, err := NewExporter(ExporterDeps{Writer: &fakeWriter{}, Bucket: "b"})
	require.NoError(t, err)
	require.Equal(t, "sitemap.xml", exporter.object)
}
