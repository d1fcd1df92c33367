package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"SITEMAP_SITE_HOST":        "https://hanko.example.com/",
		"SITEMAP_ROOT_PAGE_ID":     "067dd719-a912-471e-a9a3-ac10710e7fdf",
		"SITEMAP_CONTENT_BASE_URL": "https://cms.example.com/",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Site.Host != "https://hanko.example.com" {
		t.Errorf("expected trailing slash trimmed from host, got %s", cfg.Site.Host)
	}
	if cfg.Site.BasePath != "/blog" {
		t.Errorf("expected default base path /blog, got %s", cfg.Site.BasePath)
	}
	if cfg.Site.IncludePageIDInURLs {
		t.Errorf("expected page ids excluded from urls by default")
	}
	if cfg.Content.Backend != BackendHTTP {
		t.Errorf("expected http backend, got %s", cfg.Content.Backend)
	}
	if cfg.Content.BaseURL != "https://cms.example.com" {
		t.Errorf("unexpected content base url %s", cfg.Content.BaseURL)
	}
	if cfg.Content.Concurrency != defaultContentConcurrency {
		t.Errorf("unexpected concurrency %d", cfg.Content.Concurrency)
	}
	if cfg.Content.RatePerSec != defaultContentRatePerSec {
		t.Errorf("unexpected rate %v", cfg.Content.RatePerSec)
	}
	if cfg.Cache.TTL != 0 {
		t.Errorf("expected no cache ttl by default, got %s", cfg.Cache.TTL)
	}
	if cfg.Feed.MaxAge != 8*time.Hour {
		t.Errorf("expected 8h feed max age, got %s", cfg.Feed.MaxAge)
	}
	if cfg.Feed.ChangeFreq != "daily" {
		t.Errorf("unexpected changefreq %s", cfg.Feed.ChangeFreq)
	}
	if cfg.Export.Interval != 0 || cfg.Export.Object != "sitemap.xml" {
		t.Errorf("unexpected export defaults %+v", cfg.Export)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"SITEMAP_SERVER_PORT":             "9090",
		"SITEMAP_SERVER_IDLE_TIMEOUT":     "2m",
		"SITEMAP_SITE_NAME":               "Hanko Journal",
		"SITEMAP_SITE_DOMAIN":             "hanko.example.com",
		"SITEMAP_SITE_HOST":               "https://hanko.example.com",
		"SITEMAP_SITE_BASE_PATH":          "guides/",
		"SITEMAP_ROOT_PAGE_ID":            "root",
		"SITEMAP_ROOT_SPACE_ID":           "space-1",
		"SITEMAP_INCLUDE_PAGE_ID_IN_URLS": "yes",
		"SITEMAP_CONTENT_BACKEND":         "Firestore",
		"SITEMAP_CONTENT_CONCURRENCY":     "8",
		"SITEMAP_CONTENT_RATE_PER_SEC":    "2.5",
		"SITEMAP_CONTENT_MAX_PAGES":       "500",
		"SITEMAP_FIRESTORE_PROJECT_ID":    "hf-prod",
		"SITEMAP_FIRESTORE_COLLECTION":    "cms_pages",
		"SITEMAP_CACHE_TTL":               "30m",
		"SITEMAP_FEED_MAX_AGE":            "1h",
		"SITEMAP_EXPORT_BUCKET":           "hf-public",
		"SITEMAP_EXPORT_INTERVAL":         "15m",
		"SITEMAP_PUBSUB_TOPIC":            "sitemap-published",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Site.BasePath != "/guides" {
		t.Errorf("expected normalized base path, got %s", cfg.Site.BasePath)
	}
	if !cfg.Site.IncludePageIDInURLs {
		t.Errorf("expected page ids in urls")
	}
	if cfg.Content.Backend != BackendFirestore {
		t.Errorf("expected firestore backend, got %s", cfg.Content.Backend)
	}
	if cfg.Content.Concurrency != 8 || cfg.Content.MaxPages != 500 || cfg.Content.RatePerSec != 2.5 {
		t.Errorf("unexpected content config %+v", cfg.Content)
	}
	if cfg.Firestore.Collection != "cms_pages" {
		t.Errorf("unexpected collection %s", cfg.Firestore.Collection)
	}
	if cfg.PubSub.ProjectID != "hf-prod" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("unexpected cache ttl %s", cfg.Cache.TTL)
	}
	if cfg.Export.Interval != 15*time.Minute || cfg.Export.Bucket != "hf-public" {
		t.Errorf("unexpected export config %+v", cfg.Export)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nexport SITEMAP_SERVER_PORT=7070\nSITEMAP_SITE_HOST=\"https://dot.example.com\"\nSITEMAP_ROOT_PAGE_ID=dot-root\nSITEMAP_CONTENT_BACKEND=files\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Site.Host != "https://dot.example.com" {
		t.Errorf("expected quoted host unwrapped, got %s", cfg.Site.Host)
	}
	if cfg.Content.Backend != BackendFiles || cfg.Content.Dir != defaultContentDir {
		t.Errorf("unexpected content config %+v", cfg.Content)
	}
}

func TestLoadEnvMapOverridesDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "SITEMAP_SITE_HOST=https://dot.example.com\nSITEMAP_ROOT_PAGE_ID=dot-root\nSITEMAP_CONTENT_BACKEND=files\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(envPath),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"SITEMAP_ROOT_PAGE_ID": "override-root"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Site.RootPageID != "override-root" {
		t.Errorf("expected env map to win, got %s", cfg.Site.RootPageID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	want := map[string]bool{"Site.Host": false, "Site.RootPageID": false, "Content.BaseURL": false}
	for _, f := range fields {
		if _, ok := want[f]; ok {
			want[f] = true
		}
	}
	for f, seen := range want {
		if !seen {
			t.Errorf("expected %s in validation fields %v", f, fields)
		}
	}
}

func TestLoadRejectsUnknownBackendAndExportWithoutBucket(t *testing.T) {
	env := map[string]string{
		"SITEMAP_SITE_HOST":       "https://hanko.example.com",
		"SITEMAP_ROOT_PAGE_ID":    "root",
		"SITEMAP_CONTENT_BACKEND": "notion",
		"SITEMAP_EXPORT_INTERVAL": "10m",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validation.Fields()
	if len(fields) != 2 || fields[0] != "Content.Backend" || fields[1] != "Export.Bucket" {
		t.Fatalf("unexpected fields %v", fields)
	}
}
