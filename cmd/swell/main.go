package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/buoyworks/swell/internal/api"
	"github.com/buoyworks/swell/internal/catalog"
	"github.com/buoyworks/swell/internal/config"
	"github.com/buoyworks/swell/internal/latest"
	"github.com/buoyworks/swell/internal/logger"
	"github.com/buoyworks/swell/internal/quality"
	"github.com/buoyworks/swell/internal/segment"
	"github.com/buoyworks/swell/internal/shutdown"
	"github.com/buoyworks/swell/internal/store"
)

// Version is set at build time
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", Version).Msg("Starting Swell...")

	coordinator := shutdown.New(30*time.Second, logger.Get("shutdown"))

	backend, err := newStoreBackend(cfg, logger.Get("store"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store backend")
	}
	resilient := store.NewResilientBackend(backend, store.DefaultResilientConfig(), logger.Get("store"))
	coordinator.Register("store", resilient, shutdown.PriorityStore)

	locator := &catalog.Locator{Domain: cfg.Catalog.Domain}
	opener := catalog.NewFetchOpener(resilient, locator, segment.JSONDecoder{}, logger.Get("catalog"))

	index, err := catalog.NewIndex(cfg.Catalog.IndexPath, cfg.Catalog.ManifestURL, logger.Get("catalog"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open catalog index")
	}
	coordinator.Register("catalog-index", index, shutdown.PriorityIndex)

	var refresher *latest.Refresher
	if cfg.Latest.Enabled {
		refresher = latest.NewRefresher(
			opener,
			quality.Normalize(cfg.Engine.DefaultQualitySet),
			cfg.Latest.Schedule,
			logger.Get("latest"),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if err := refresher.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start latest-observations refresher")
		}
		cancel()
		coordinator.RegisterHook("latest-refresher", func(ctx context.Context) error {
			refresher.Stop()
			return nil
		}, shutdown.PriorityRefresher)
	}

	serverCfg := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		DefaultQualitySet: cfg.Engine.DefaultQualitySet,
		DefaultWindowDays: cfg.Engine.DefaultWindowDays,
		MaxDeployments:    cfg.Engine.MaxDeployments,
	}

	server := api.NewServer(serverCfg, opener, index, refresher, logger.Get("api"))
	server.RegisterRoutes()

	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
	coordinator.RegisterHook("http-server", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	}, shutdown.PriorityHTTPServer)

	coordinator.WaitForSignal()
	if err := coordinator.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Shutdown completed with errors")
	}
}

// newStoreBackend builds the configured object store backend
func newStoreBackend(cfg *config.Config, lg zerolog.Logger) (store.Backend, error) {
	switch cfg.Storage.Backend {
	case "", "local":
		return store.NewLocalBackend(cfg.Storage.LocalPath, lg)
	case "s3":
		return store.NewS3Backend(&store.S3Config{
			Bucket:    cfg.Storage.S3Bucket,
			Region:    cfg.Storage.S3Region,
			Endpoint:  cfg.Storage.S3Endpoint,
			AccessKey: cfg.Storage.S3AccessKey,
			SecretKey: cfg.Storage.S3SecretKey,
			UseSSL:    cfg.Storage.S3UseSSL,
			PathStyle: cfg.Storage.S3PathStyle,
		}, lg)
	case "azure":
		return store.NewAzureBlobBackend(&store.AzureBlobConfig{
			ConnectionString:   cfg.Storage.AzureConnectionString,
			AccountName:        cfg.Storage.AzureAccountName,
			AccountKey:         cfg.Storage.AzureAccountKey,
			SASToken:           cfg.Storage.AzureSASToken,
			UseManagedIdentity: cfg.Storage.AzureUseManagedIdentity,
			ContainerName:      cfg.Storage.AzureContainer,
			Endpoint:           cfg.Storage.AzureEndpoint,
		}, lg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
