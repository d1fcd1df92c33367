package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 60 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultSiteName            = "Hanko Field"
	defaultBasePath            = "/blog"
	defaultContentBackend      = BackendHTTP
	defaultContentTimeout      = 5 * time.Second
	defaultContentRatePerSec   = 10.0
	defaultContentBurst        = 5
	defaultContentConcurrency  = 4
	defaultContentDir          = "content/pages"
	defaultFirestoreCollection = "pages"
	defaultFeedMaxAge          = 8 * time.Hour
	defaultFeedChangeFreq      = "daily"
	defaultExportObject        = "sitemap.xml"
)

// Content store backends.
const (
	BackendHTTP      = "http"
	BackendFirestore = "firestore"
	BackendFiles     = "files"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Site      SiteConfig
	Content   ContentConfig
	Firestore FirestoreConfig
	Cache     CacheConfig
	Feed      FeedConfig
	Export    ExportConfig
	PubSub    PubSubConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SiteConfig holds the static site metadata and the traversal root.
type SiteConfig struct {
	Name                string
	Domain              string
	Host                string
	BasePath            string
	Description         string
	RootPageID          string
	RootSpaceID         string
	IncludePageIDInURLs bool
}

// ContentConfig selects and tunes the content store client.
type ContentConfig struct {
	Backend     string
	BaseURL     string
	Timeout     time.Duration
	RatePerSec  float64
	Burst       int
	Concurrency int
	MaxPages    int
	Dir         string
}

// FirestoreConfig stores database parameters for the firestore backend.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Collection   string
}

// CacheConfig controls memoisation of completed builds. A zero TTL keeps results until invalidated.
type CacheConfig struct {
	TTL time.Duration
}

// FeedConfig controls the served sitemap.xml.
type FeedConfig struct {
	MaxAge     time.Duration
	ChangeFreq string
}

// ExportConfig controls periodic upload of the feed to Cloud Storage.
type ExportConfig struct {
	Bucket   string
	Object   string
	Interval time.Duration
}

// PubSubConfig configures the feed-published notification topic.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration by combining defaults, .env overrides and environment variables.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "SITEMAP_SERVER_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:  durationWithDefault(lookup, "SITEMAP_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "SITEMAP_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "SITEMAP_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Site: SiteConfig{
			Name:                stringWithDefault(lookup, "SITEMAP_SITE_NAME", defaultSiteName),
			Domain:              stringWithDefault(lookup, "SITEMAP_SITE_DOMAIN", ""),
			Host:                strings.TrimRight(stringWithDefault(lookup, "SITEMAP_SITE_HOST", ""), "/"),
			BasePath:            normalizeBasePath(stringWithDefault(lookup, "SITEMAP_SITE_BASE_PATH", defaultBasePath)),
			Description:         stringWithDefault(lookup, "SITEMAP_SITE_DESCRIPTION", ""),
			RootPageID:          strings.TrimSpace(stringWithDefault(lookup, "SITEMAP_ROOT_PAGE_ID", "")),
			RootSpaceID:         strings.TrimSpace(stringWithDefault(lookup, "SITEMAP_ROOT_SPACE_ID", "")),
			IncludePageIDInURLs: boolWithDefault(lookup, "SITEMAP_INCLUDE_PAGE_ID_IN_URLS", false),
		},
		Content: ContentConfig{
			Backend:     strings.ToLower(stringWithDefault(lookup, "SITEMAP_CONTENT_BACKEND", defaultContentBackend)),
			BaseURL:     strings.TrimRight(stringWithDefault(lookup, "SITEMAP_CONTENT_BASE_URL", ""), "/"),
			Timeout:     durationWithDefault(lookup, "SITEMAP_CONTENT_TIMEOUT", defaultContentTimeout),
			RatePerSec:  floatWithDefault(lookup, "SITEMAP_CONTENT_RATE_PER_SEC", defaultContentRatePerSec),
			Burst:       intWithDefault(lookup, "SITEMAP_CONTENT_BURST", defaultContentBurst),
			Concurrency: intWithDefault(lookup, "SITEMAP_CONTENT_CONCURRENCY", defaultContentConcurrency),
			MaxPages:    intWithDefault(lookup, "SITEMAP_CONTENT_MAX_PAGES", 0),
			Dir:         stringWithDefault(lookup, "SITEMAP_CONTENT_DIR", defaultContentDir),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "SITEMAP_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "SITEMAP_FIRESTORE_EMULATOR_HOST", ""),
			Collection:   stringWithDefault(lookup, "SITEMAP_FIRESTORE_COLLECTION", defaultFirestoreCollection),
		},
		Cache: CacheConfig{
			TTL: durationWithDefault(lookup, "SITEMAP_CACHE_TTL", 0),
		},
		Feed: FeedConfig{
			MaxAge:     durationWithDefault(lookup, "SITEMAP_FEED_MAX_AGE", defaultFeedMaxAge),
			ChangeFreq: stringWithDefault(lookup, "SITEMAP_FEED_CHANGEFREQ", defaultFeedChangeFreq),
		},
		Export: ExportConfig{
			Bucket:   stringWithDefault(lookup, "SITEMAP_EXPORT_BUCKET", ""),
			Object:   stringWithDefault(lookup, "SITEMAP_EXPORT_OBJECT", defaultExportObject),
			Interval: durationWithDefault(lookup, "SITEMAP_EXPORT_INTERVAL", 0),
		},
		PubSub: PubSubConfig{
			ProjectID: stringWithDefault(lookup, "SITEMAP_PUBSUB_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "SITEMAP_PUBSUB_TOPIC", ""),
		},
	}

	// Pub/Sub project defaults to the Firestore project when unspecified.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Site.Host == "" {
		missing = append(missing, "Site.Host")
	}
	if cfg.Site.RootPageID == "" {
		missing = append(missing, "Site.RootPageID")
	}
	switch cfg.Content.Backend {
	case BackendHTTP:
		if cfg.Content.BaseURL == "" {
			missing = append(missing, "Content.BaseURL")
		}
	case BackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
		if strings.TrimSpace(cfg.Firestore.Collection) == "" {
			missing = append(missing, "Firestore.Collection")
		}
	case BackendFiles:
		if strings.TrimSpace(cfg.Content.Dir) == "" {
			missing = append(missing, "Content.Dir")
		}
	default:
		missing = append(missing, "Content.Backend")
	}
	if cfg.Content.Concurrency <= 0 {
		missing = append(missing, "Content.Concurrency")
	}
	if cfg.Content.RatePerSec <= 0 {
		missing = append(missing, "Content.RatePerSec")
	}
	if cfg.Content.MaxPages < 0 {
		missing = append(missing, "Content.MaxPages")
	}
	if cfg.Cache.TTL < 0 {
		missing = append(missing, "Cache.TTL")
	}
	if cfg.Feed.MaxAge < 0 {
		missing = append(missing, "Feed.MaxAge")
	}
	if cfg.Export.Interval > 0 {
		if cfg.Export.Bucket == "" {
			missing = append(missing, "Export.Bucket")
		}
		if strings.TrimSpace(cfg.Export.Object) == "" {
			missing = append(missing, "Export.Object")
		}
	}
	if cfg.PubSub.Topic != "" && cfg.PubSub.ProjectID == "" {
		missing = append(missing, "PubSub.ProjectID")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func normalizeBasePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	if path == "" {
		return ""
	}
	return "/" + path
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
