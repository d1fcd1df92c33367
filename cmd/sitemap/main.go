package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"finitefield.org/hanko-sitemap/internal/canonical"
	"finitefield.org/hanko-sitemap/internal/contentstore"
	"finitefield.org/hanko-sitemap/internal/domain"
	"finitefield.org/hanko-sitemap/internal/feed"
	"finitefield.org/hanko-sitemap/internal/handlers"
	"finitefield.org/hanko-sitemap/internal/platform/config"
	pfirestore "finitefield.org/hanko-sitemap/internal/platform/firestore"
	"finitefield.org/hanko-sitemap/internal/platform/observability"
	"finitefield.org/hanko-sitemap/internal/sitemap"
)

const serviceName = "hanko-sitemap"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger

	cfg, err := config.Load(ctx)
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	meter := otel.Meter(serviceName)

	var firestoreProvider *pfirestore.Provider
	if cfg.Content.Backend == config.BackendFirestore {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		defer func() {
			if err := firestoreProvider.Close(); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()
	}

	store, err := newContentStore(cfg, firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise content store", zap.Error(err), zap.String("backend", cfg.Content.Backend))
	}

	site := domain.Site{
		Name:                cfg.Site.Name,
		Domain:              cfg.Site.Domain,
		Host:                cfg.Site.Host,
		BasePath:            cfg.Site.BasePath,
		Description:         cfg.Site.Description,
		RootPageID:          cfg.Site.RootPageID,
		RootSpaceID:         cfg.Site.RootSpaceID,
		IncludePageIDInURLs: cfg.Site.IncludePageIDInURLs,
	}

	builder, err := sitemap.NewBuilder(sitemap.BuilderDeps{
		Store: store,
		Traverser: &contentstore.BFSTraverser{
			Concurrency: cfg.Content.Concurrency,
			MaxPages:    cfg.Content.MaxPages,
			Logger:      logger.Named("traverse"),
		},
		Site:    site,
		Options: canonical.Options{IncludeRawIDSuffix: cfg.Site.IncludePageIDInURLs},
		Logger:  logger,
		Meter:   meter,
	})
	if err != nil {
		logger.Fatal("failed to initialise site map builder", zap.Error(err))
	}

	service, err := sitemap.NewService(sitemap.ServiceDeps{
		Builder:     builder,
		RootPageID:  cfg.Site.RootPageID,
		RootSpaceID: cfg.Site.RootSpaceID,
		TTL:         cfg.Cache.TTL,
		Logger:      logger,
		Meter:       meter,
	})
	if err != nil {
		logger.Fatal("failed to initialise site map service", zap.Error(err))
	}

	renderOpts := feed.RenderOptions{
		Host:       cfg.Site.Host,
		BasePath:   cfg.Site.BasePath,
		ChangeFreq: cfg.Feed.ChangeFreq,
	}

	healthOpts := []handlers.HealthOption{
		handlers.WithHealthStartedAt(startedAt),
		handlers.WithHealthVersion(strings.TrimSpace(os.Getenv("SITEMAP_BUILD_VERSION"))),
		handlers.WithReadinessCheck("sitemap", func(ctx context.Context) error {
			_, err := service.GetSiteMap(ctx)
			return err
		}),
	}
	if firestoreProvider != nil {
		healthOpts = append(healthOpts, handlers.WithReadinessCheck("firestore", func(ctx context.Context) error {
			_, err := firestoreProvider.Client(ctx)
			return err
		}))
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithSiteMapHandlers(handlers.NewSiteMapHandlers(service,
			handlers.WithRenderOptions(renderOpts),
			handlers.WithFeedMaxAge(cfg.Feed.MaxAge),
		)),
	)

	exportCtx, exportCancel := context.WithCancel(context.Background())
	var exportWG sync.WaitGroup
	if cfg.Export.Interval > 0 {
		stop, err := startExportLoop(exportCtx, &exportWG, cfg, service, renderOpts, logger.Named("export"))
		if err != nil {
			logger.Fatal("failed to initialise feed export", zap.Error(err))
		}
		defer stop()
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("hanko-sitemap listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	exportCancel()
	exportWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newContentStore(cfg config.Config, provider *pfirestore.Provider) (contentstore.Store, error) {
	switch cfg.Content.Backend {
	case config.BackendHTTP:
		return contentstore.NewHTTPStore(cfg.Content.BaseURL,
			contentstore.WithHTTPClient(&http.Client{Timeout: cfg.Content.Timeout}),
			contentstore.WithRateLimit(cfg.Content.RatePerSec, cfg.Content.Burst),
		)
	case config.BackendFirestore:
		return contentstore.NewFirestoreStore(provider, cfg.Firestore.Collection)
	case config.BackendFiles:
		return contentstore.NewFileStore(cfg.Content.Dir), nil
	default:
		return nil, fmt.Errorf("unsupported content backend %q", cfg.Content.Backend)
	}
}

// startExportLoop uploads the feed once at startup and then on every interval tick. The returned
// func releases the storage and pubsub clients.
func startExportLoop(ctx context.Context, wg *sync.WaitGroup, cfg config.Config, service *sitemap.Service, render feed.RenderOptions, logger *zap.Logger) (func(), error) {
	storageClient, err := cloudstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	closers := []func() error{storageClient.Close}
	stop := func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("export client close error", zap.Error(err))
			}
		}
	}

	exporter, err := feed.NewExporter(feed.ExporterDeps{
		Writer: feed.NewGCSWriter(storageClient),
		Bucket: cfg.Export.Bucket,
		Object: cfg.Export.Object,
		Render: render,
		MaxAge: cfg.Feed.MaxAge,
		Logger: logger,
	})
	if err != nil {
		stop()
		return nil, err
	}

	var notifier *feed.PubSubNotifier
	if topicID := strings.TrimSpace(cfg.PubSub.Topic); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			stop()
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		topic := pubsubClient.Topic(topicID)
		closers = append(closers, func() error {
			topic.Stop()
			return nil
		}, pubsubClient.Close)
		if notifier, err = feed.NewPubSubNotifier(topic); err != nil {
			stop()
			return nil, err
		}
	}

	run := func() {
		runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		sm, err := service.Refresh(runCtx)
		if err != nil {
			logger.Error("feed export build failed", zap.Error(err))
			return
		}
		result, err := exporter.Export(runCtx, sm)
		if err != nil {
			logger.Error("feed export upload failed", zap.Error(err))
			return
		}
		if notifier == nil {
			return
		}
		if _, err := notifier.NotifyPublished(runCtx, result); err != nil {
			logger.Warn("feed published notification failed", zap.Error(err), zap.String("build_id", result.BuildID))
		}
	}

	ticker := time.NewTicker(cfg.Export.Interval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		run()
		for {
			select {
			case <-ticker.C:
				run()
			case <-ctx.Done():
				return
			}
		}
	}()
	return stop, nil
}
