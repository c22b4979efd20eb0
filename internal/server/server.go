package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ahalansari/deep-search/config"
	"github.com/ahalansari/deep-search/internal/agent/core"
	"github.com/ahalansari/deep-search/internal/agent/telemetry"
	"github.com/ahalansari/deep-search/internal/queue/streams"
	"github.com/ahalansari/deep-search/internal/store"
	"github.com/ahalansari/deep-search/tools/web_fetch"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

// Dependencies are the shared components behind the HTTP API and the CLI.
type Dependencies struct {
	Service *core.Service
	Store   *store.Store
	Redis   *redis.Client
}

// Close releases the storage connections.
func (d *Dependencies) Close() {
	if d.Store != nil {
		_ = d.Store.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
}

// BuildDependencies wires the search service and the optional Redis progress
// stream, Postgres archive and page fetcher described by cfg. extra options
// are applied after the configured ones.
func BuildDependencies(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, extra ...core.ServiceOption) (*Dependencies, error) {
	logger := log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	deps := &Dependencies{}
	opts := []core.ServiceOption{
		core.WithServiceTelemetry(telemetry.NewTelemetry(cfg.Telemetry, reg)),
	}

	if cfg.Storage.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
		registry := streams.NewSchemaRegistry()
		if err := streams.RegisterBaseSchemas(registry); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("register stream schemas: %w", err)
		}
		deps.Redis = rdb
		pub := streams.NewPublisher(rdb, registry,
			streams.WithMaxLenApprox(cfg.Storage.Redis.StreamMaxLen),
			streams.WithTTL(cfg.Storage.Redis.StreamTTL),
		)
		opts = append(opts, core.WithProgressStream(pub))
		logger.Printf("progress stream enabled on redis %s", cfg.Storage.Redis.Addr())
	}

	if cfg.Storage.Postgres.Enabled() {
		dsn := cfg.Storage.Postgres.DSN()
		if err := Migrate("", dsn, "up", 0); err != nil && !errors.Is(err, ErrNoChange) {
			deps.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		st, err := store.NewWithDSN(ctx, dsn)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Store = st
		opts = append(opts, core.WithArchive(st))
		logger.Printf("session archive enabled")
	}

	if cfg.Fetch.Enabled {
		fetcher, err := web_fetch.NewWebFetcher(web_fetch.FetcherType(cfg.Fetch.Type), cfg.Search.UserAgent, cfg.Fetch.Timeout, cfg.Fetch.MaxChars)
		if err != nil {
			deps.Close()
			return nil, err
		}
		opts = append(opts, core.WithPageFetcher(fetcher))
	}

	deps.Service = core.NewService(*cfg, append(opts, extra...)...)
	return deps, nil
}

// NewEcho builds the HTTP API around deps.
func NewEcho(cfg *config.Config, deps *Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := httpLogger
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, errorResponse{Success: false, Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Cache-Control"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	registerDocs(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	sh := &SearchHandler{
		Service:        deps.Service,
		StreamEnabled:  cfg.Server.StreamEnabled,
		RequestTimeout: cfg.Server.RequestTimeout,
		logger:         baseLogger,
	}
	sh.Register(api)
	hh := &HealthHandler{Service: deps.Service, Started: time.Now()}
	hh.Register(api)
	ssh := &SessionsHandler{Store: deps.Store}
	ssh.Register(api.Group("/sessions"))
	return e
}

// Run serves the HTTP API until ctx is cancelled or the listener fails.
func Run(ctx context.Context, cfg *config.Config) error {
	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	deps, err := BuildDependencies(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer deps.Close()

	e := NewEcho(cfg, deps)
	addr := cfg.Server.Address
	if addr != "" && !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	if addr == "" {
		addr = ":3000"
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", addr)
		errCh <- e.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
