package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cinemetrics/datasetd/internal/config"
	"github.com/cinemetrics/datasetd/internal/dataset"
	"github.com/cinemetrics/datasetd/internal/fetch"
	"github.com/cinemetrics/datasetd/internal/http/rest"
	"github.com/cinemetrics/datasetd/internal/logctx"
	"github.com/cinemetrics/datasetd/internal/notifier"
	"github.com/cinemetrics/datasetd/internal/provision"
	"github.com/cinemetrics/datasetd/internal/storage/sqlite"
	"github.com/cinemetrics/datasetd/internal/telemetry"
	"github.com/go-chi/chi/v5"
)

const serviceName = "datasetd"

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("dataset provisioner starting...", "version", version, "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	repo := sqlite.NewProvisionRepository(database)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Load Dataset Catalog
	manifest, err := dataset.LoadManifest(cfg.ManifestPath)
	if err != nil {
		return fmt.Errorf("failed to load dataset catalog: %w", err)
	}

	logger.Info("dataset catalog loaded", "path", cfg.ManifestPath, "datasets", len(manifest.Datasets))

	// =========================================================================
	// Start Provisioner
	fetchers, err := buildFetchers(ctx, cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to build fetchers: %w", err)
	}

	provisioner := provision.NewProvisioner(cfg.DataDir, fetchers, repo, tel, cfg.MaxParallel)
	provisioner.MaxAttempts = cfg.RetryMaxAttempts
	provisioner.RetryInitialInterval = cfg.RetryInitialInterval

	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)
	}

	// =========================================================================
	// Initial Provisioning Pass
	// The service comes up with the API serving even when some datasets fail;
	// readiness stays red until every catalog entry is provisioned.
	provisionCatalog(ctx, provisioner, manifest, notif)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, manifest, provisioner, repo, tel, cfg)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("watching dataset catalog...",
		"data_dir", cfg.DataDir,
		"recheck_interval", cfg.RecheckInterval.String(),
		"max_parallel", cfg.MaxParallel,
	)

	// =========================================================================
	// Start Main Loop
	ticker := time.NewTicker(cfg.RecheckInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			logger.Info("start shutdown")

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(ctx); err != nil {
				logger.Error("failed to gracefully shutdown the server", "err", err)

				if err = server.Close(); err != nil {
					return fmt.Errorf("could not stop server gracefully: %w", err)
				}
			}

			return nil
		case <-ticker.C:
			provisionCatalog(ctx, provisioner, manifest, notif)
		}
	}
}

// provisionCatalog runs one pass over the whole catalog. Failures are logged
// and notified but never abort the pass; valid datasets answer from disk.
func provisionCatalog(ctx context.Context, p *provision.Provisioner, manifest *dataset.Manifest, notif notifier.Notifier) {
	logger := logctx.LoggerFromContext(ctx)

	results, err := p.EnsureAll(ctx, manifest.Datasets)
	if err != nil {
		logger.Error("catalog provisioning pass finished with failures", "err", err)
	}

	for _, res := range results {
		if res == nil || res.OK() {
			continue
		}

		if notif != nil {
			if notifyErr := notif.Notify(ctx, notifier.FailureMessage(res)); notifyErr != nil {
				logger.Error("failed to send notification", "dataset_id", res.DatasetID, "err", notifyErr)
			}
		}
	}
}

// buildFetchers wires one fetcher per supported source scheme.
func buildFetchers(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) (*fetch.Registry, error) {
	registry := fetch.NewRegistry()

	httpFetcher := fetch.NewHTTPFetcher(cfg.FetchTimeout, cfg.RemoteBearerToken)
	registry.Register("http", fetch.NewInstrumentedFetcher(httpFetcher, tel, "http"))
	registry.Register("https", fetch.NewInstrumentedFetcher(httpFetcher, tel, "https"))

	s3Fetcher, err := fetch.NewS3Fetcher(ctx, cfg.S3Region)
	if err != nil {
		return nil, err
	}

	registry.Register("s3", fetch.NewInstrumentedFetcher(s3Fetcher, tel, "s3"))

	return registry, nil
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(
	ctx context.Context,
	manifest *dataset.Manifest,
	p *provision.Provisioner,
	repo *sqlite.ProvisionRepository,
	tel *telemetry.Telemetry,
	cfg *config.Config,
) *http.Server {
	handler := rest.NewDatasetHandler(manifest, p, repo)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Mount("/", handler.Routes())
	r.Method(http.MethodGet, "/metrics", tel.Handler())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
