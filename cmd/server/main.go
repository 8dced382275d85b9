// Command server starts the course media upload HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"coursemedia/internal/api"
	"coursemedia/internal/auth"
	"coursemedia/internal/config"
	"coursemedia/internal/events"
	"coursemedia/internal/objectstore"
	"coursemedia/internal/observability/logging"
	"coursemedia/internal/observability/metrics"
	"coursemedia/internal/pipeline"
	"coursemedia/internal/registry"
	"coursemedia/internal/server"
	"coursemedia/internal/transcoder"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	addr := flag.String("addr", "", "HTTP listen address")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	recorder := metrics.Default()

	store, err := objectstore.NewS3(context.Background(), objectstore.S3Config{
		Region:        cfg.S3.Region,
		Bucket:        cfg.S3.Bucket,
		AccessKey:     cfg.S3.AccessKey,
		SecretKey:     cfg.S3.SecretKey,
		Endpoint:      cfg.S3.Endpoint,
		PublicBaseURL: cfg.S3.PublicBaseURL,
		PartSizeMB:    cfg.S3.PartSizeMB,
	})
	if err != nil {
		logger.Error("configure object storage", "error", err)
		os.Exit(1)
	}

	workspaces, err := pipeline.NewWorkspaceManager(cfg.Transcode.WorkDir)
	if err != nil {
		logger.Error("prepare transcode workspaces", "error", err)
		os.Exit(1)
	}

	engine, err := pipeline.NewEngine(pipeline.EngineConfig{
		Store:            store,
		Transcoder:       transcoder.NewFFmpeg(cfg.Transcode.Binary, logging.WithComponent(logger, "transcoder")),
		Workspaces:       workspaces,
		Policies:         cfg.Policies,
		PerFileMax:       cfg.Limits.PerFileMax,
		AggregateMax:     cfg.Limits.AggregateMax,
		SegmentSeconds:   cfg.Transcode.SegmentSeconds,
		TranscodeTimeout: cfg.Transcode.Timeout,
		Logger:           logging.WithComponent(logger, "pipeline"),
		Metrics:          recorder,
	})
	if err != nil {
		logger.Error("configure pipeline", "error", err)
		os.Exit(1)
	}

	repo, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Error("configure upload registry", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := repo.Close(shutdownCtx); err != nil {
			logger.Warn("close upload registry", "error", err)
		}
	}()

	publisher := buildPublisher(cfg, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("close event publisher", "error", err)
		}
	}()

	handler := api.NewHandler(api.Config{
		Engine:   engine,
		Store:    store,
		Registry: repo,
		Events:   publisher,
		Logger:   logging.WithComponent(logger, "api"),
		Metrics:  recorder,
	})

	srv, err := server.New(handler, server.Config{
		Addr:    cfg.Addr,
		TLS:     server.TLSConfig{CertFile: *tlsCert, KeyFile: *tlsKey},
		Auth:    auth.NewVerifier(cfg.Auth.TokenDigests),
		Logger:  logging.WithComponent(logger, "http"),
		Metrics: recorder,
	})
	if err != nil {
		logger.Error("configure http server", "error", err)
		os.Exit(1)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Addr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func buildRegistry(cfg config.Config, logger *slog.Logger) (registry.Repository, error) {
	if cfg.Postgres.DSN == "" {
		logger.Info("upload registry using in-memory store")
		return registry.NewMemoryRepository(), nil
	}
	return registry.NewPostgresRepository(context.Background(), registry.PostgresConfig{
		DSN:             cfg.Postgres.DSN,
		MaxConnections:  cfg.Postgres.MaxConnections,
		MinConnections:  cfg.Postgres.MinConnections,
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		MaxConnIdleTime: cfg.Postgres.MaxConnIdleTime,
		ApplicationName: "coursemedia",
	})
}

func buildPublisher(cfg config.Config, logger *slog.Logger) events.Publisher {
	if cfg.Redis.Addr == "" {
		logger.Info("lifecycle events disabled")
		return events.NoopPublisher{}
	}
	publisher, err := events.NewRedisPublisher(events.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		Stream:   cfg.Redis.Stream,
		DB:       cfg.Redis.DB,
		Logger:   logging.WithComponent(logger, "events"),
	})
	if err != nil {
		logger.Error("configure redis publisher, events disabled", "error", err)
		return events.NoopPublisher{}
	}
	return publisher
}
