// Package api exposes the HTTP surface of the media upload service: a
// streaming multipart upload endpoint plus read and delete operations over
// the upload registry.
package api

import (
	"log/slog"

	"coursemedia/internal/events"
	"coursemedia/internal/objectstore"
	"coursemedia/internal/observability/metrics"
	"coursemedia/internal/pipeline"
	"coursemedia/internal/registry"
)

// Handler bundles the collaborators shared by every endpoint.
type Handler struct {
	Engine   *pipeline.Engine
	Store    objectstore.Store
	Registry registry.Repository
	Events   events.Publisher
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

// Config carries the dependencies for NewHandler.
type Config struct {
	Engine   *pipeline.Engine
	Store    objectstore.Store
	Registry registry.Repository
	Events   events.Publisher
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	publisher := cfg.Events
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	repo := cfg.Registry
	if repo == nil {
		repo = registry.NewMemoryRepository()
	}
	return &Handler{
		Engine:   cfg.Engine,
		Store:    cfg.Store,
		Registry: repo,
		Events:   publisher,
		Logger:   logger,
		Metrics:  recorder,
	}
}
