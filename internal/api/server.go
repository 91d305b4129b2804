package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/buoyworks/swell/internal/catalog"
	"github.com/buoyworks/swell/internal/latest"
	"github.com/buoyworks/swell/internal/quality"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server is the HTTP API serving station series, metadata and availability.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	host   string
	port   int

	opener         *catalog.FetchOpener
	index          *catalog.Index
	refresher      *latest.Refresher
	defaultSet     quality.Set
	defaultWindow  time.Duration
	maxDeployments int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	DefaultQualitySet string
	DefaultWindowDays int
	MaxDeployments    int
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:              "0.0.0.0",
		Port:              8520,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		DefaultQualitySet: string(quality.Default),
		DefaultWindowDays: 3,
	}
}

// NewServer creates the HTTP server with Fiber
func NewServer(config *ServerConfig, opener *catalog.FetchOpener, index *catalog.Index, refresher *latest.Refresher, logger zerolog.Logger) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}

	app := fiber.New(fiber.Config{
		AppName:               "Swell Wave Data Server",
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		IdleTimeout:           config.IdleTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	app.Use(requestID())
	app.Use(requestLogger(logger))

	windowDays := config.DefaultWindowDays
	if windowDays <= 0 {
		windowDays = 3
	}

	return &Server{
		app:            app,
		logger:         logger.With().Str("component", "api-server").Logger(),
		host:           config.Host,
		port:           config.Port,
		opener:         opener,
		index:          index,
		refresher:      refresher,
		defaultSet:     quality.Normalize(config.DefaultQualitySet),
		defaultWindow:  time.Duration(windowDays) * 24 * time.Hour,
		maxDeployments: config.MaxDeployments,
	}
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	s.app.Get("/health", s.healthHandler)
	s.app.Get("/ready", s.readyHandler)

	v1 := s.app.Group("/api/v1")

	v1.Get("/latest", s.latestHandler)
	v1.Get("/latest/:station", s.latestStationHandler)

	v1.Get("/stations/:station/parameters", s.parametersHandler)
	v1.Get("/stations/:station/spectra", s.spectraHandler)
	v1.Get("/stations/:station/xyz", s.xyzHandler)
	v1.Get("/stations/:station/series", s.seriesHandler)
	v1.Get("/stations/:station/series.parquet", s.seriesParquetHandler)
	v1.Get("/stations/:station/meta", s.metaHandler)
	v1.Get("/stations/:station/stats", s.statsHandler)
	v1.Get("/stations/:station/files", s.filesHandler)

	v1.Get("/catalog/changed", s.catalogChangedHandler)
}

var startTime = time.Now()

// healthHandler returns server health status
func (s *Server) healthHandler(c *fiber.Ctx) error {
	uptime := time.Since(startTime)
	return c.JSON(fiber.Map{
		"status":     "ok",
		"time":       time.Now().UTC().Format(time.RFC3339),
		"uptime":     uptime.String(),
		"uptime_sec": uptime.Seconds(),
	})
}

// readyHandler returns server readiness status (for Kubernetes readiness probes)
func (s *Server) readyHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":     "ready",
		"time":       time.Now().UTC().Format(time.RFC3339),
		"uptime_sec": time.Since(startTime).Seconds(),
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().
		Str("host", s.host).
		Int("port", s.port).
		Msg("Starting Swell HTTP server")

	go func() {
		addr := fmt.Sprintf("%s:%d", s.host, s.port)
		if err := s.app.Listen(addr); err != nil {
			s.logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down server gracefully...")

	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("Server stopped")
	return nil
}

// GetApp returns the underlying Fiber app (for tests)
func (s *Server) GetApp() *fiber.App {
	return s.app
}

// customErrorHandler handles Fiber errors
func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("Request error")

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

// requestID tags each request with a correlation id
func requestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals("request_id", id)
		c.Set("X-Request-ID", id)
		return c.Next()
	}
}

// requestLogger logs errors only
func requestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if status >= 400 {
			logEvent := logger.Warn()
			if status >= 500 {
				logEvent = logger.Error()
			}

			logEvent.
				Str("method", c.Method()).
				Str("path", c.Path()).
				Int("status", status).
				Dur("duration_ms", time.Since(start)).
				Str("ip", c.IP()).
				Msg("HTTP request error")
		}

		return err
	}
}
