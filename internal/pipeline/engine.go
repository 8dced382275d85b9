// Package pipeline implements the streaming media ingestion pipeline: parts
// are classified by field name, size-guarded while streaming, and either
// stored directly in object storage or transcoded into an HLS segment set
// whose manifest becomes the part's public artifact.
package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"coursemedia/internal/objectstore"
	"coursemedia/internal/observability/metrics"
	"coursemedia/internal/transcoder"
)

const (
	// DefaultPerFileMax is the authoritative per-file ceiling. The original
	// system carried a second, larger ceiling at the transport layer; this
	// implementation enforces a single limit during streaming.
	DefaultPerFileMax = 100 * 1024 * 1024
	// DefaultAggregateMax bounds the total bytes of one request.
	DefaultAggregateMax = 200 * 1024 * 1024

	defaultTranscodeTimeout = 30 * time.Minute
)

// EngineConfig wires the collaborators of a storage Engine.
type EngineConfig struct {
	Store            objectstore.Store
	Transcoder       transcoder.Transcoder
	Workspaces       *WorkspaceManager
	Policies         map[string]CategoryPolicy
	PerFileMax       int64
	AggregateMax     int64
	SegmentSeconds   int
	TranscodeTimeout time.Duration
	Logger           *slog.Logger
	Metrics          *metrics.Recorder
}

// Engine decides, per classified part, between the direct path and the
// transcode path and returns a uniform Result either way.
type Engine struct {
	store            objectstore.Store
	transcoder       transcoder.Transcoder
	workspaces       *WorkspaceManager
	classifier       *Classifier
	perFileMax       int64
	aggregateMax     int64
	segmentSeconds   int
	transcodeTimeout time.Duration
	logger           *slog.Logger
	metrics          *metrics.Recorder
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if cfg.Transcoder == nil {
		return nil, fmt.Errorf("transcoder is required")
	}
	workspaces := cfg.Workspaces
	if workspaces == nil {
		var err error
		workspaces, err = NewWorkspaceManager("")
		if err != nil {
			return nil, err
		}
	}
	perFileMax := cfg.PerFileMax
	if perFileMax <= 0 {
		perFileMax = DefaultPerFileMax
	}
	aggregateMax := cfg.AggregateMax
	if aggregateMax <= 0 {
		aggregateMax = DefaultAggregateMax
	}
	timeout := cfg.TranscodeTimeout
	if timeout <= 0 {
		timeout = defaultTranscodeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	return &Engine{
		store:            cfg.Store,
		transcoder:       cfg.Transcoder,
		workspaces:       workspaces,
		classifier:       NewClassifier(cfg.Policies),
		perFileMax:       perFileMax,
		aggregateMax:     aggregateMax,
		segmentSeconds:   cfg.SegmentSeconds,
		transcodeTimeout: timeout,
		logger:           logger,
		metrics:          recorder,
	}, nil
}

// Classifier exposes the engine's category table for callers that validate
// before streaming.
func (e *Engine) Classifier() *Classifier { return e.classifier }

// AggregateMax reports the per-request byte ceiling shared by all parts.
func (e *Engine) AggregateMax() int64 { return e.aggregateMax }

// NewBudget creates the shared aggregate accounting for one request.
func (e *Engine) NewBudget() *RequestBudget {
	return NewRequestBudget(e.aggregateMax)
}

// Store runs one part through the pipeline: classification, size guarding,
// then the direct or transcode path. budget may be shared with other parts of
// the same request; pass a fresh one for standalone invocations.
func (e *Engine) Store(ctx context.Context, part Part, budget *RequestBudget) (Result, error) {
	classification, err := e.classifier.Classify(part.FieldName, part.FileName)
	if err != nil {
		e.metrics.UploadFailed("", string(KindOf(err)))
		return Result{}, err
	}

	guarded := Guard(part.Body, part.FileName, e.perFileMax, budget)

	var result Result
	if classification.Video {
		result, err = e.transcodePart(ctx, part, classification, guarded)
	} else {
		result, err = e.storeDirect(ctx, part, classification, guarded)
	}
	if err != nil {
		e.metrics.UploadFailed(classification.Category, string(KindOf(err)))
		return Result{}, err
	}
	e.metrics.UploadStored(classification.Category, result.Size)
	return result, nil
}

// storeDirect streams the part straight into a multipart object-storage
// write. Nothing touches local disk on this path.
func (e *Engine) storeDirect(ctx context.Context, part Part, classification Classification, guarded *guardedReader) (Result, error) {
	ext := strings.ToLower(filepath.Ext(part.FileName))
	key := classification.Folder + uniqueToken() + ext
	contentType := resolveContentType(part.ContentType, ext)

	put, err := e.store.Put(ctx, key, contentType, guarded)
	if err != nil {
		if violation := guarded.Violation(); violation != nil {
			return Result{}, violation
		}
		return Result{}, &DirectUploadError{Key: key, Err: err}
	}

	e.logger.Info("object stored",
		"field", part.FieldName,
		"category", classification.Category,
		"key", key,
		"size", guarded.Count(),
	)
	return Result{
		FieldName:    part.FieldName,
		OriginalName: part.FileName,
		Category:     classification.Category,
		ContentType:  contentType,
		Bucket:       e.store.Bucket(),
		Key:          key,
		Size:         guarded.Count(),
		Location:     e.store.URL(key),
		ETag:         put.ETag,
		Segmented:    false,
		Kind:         KindObject,
		StoredAt:     time.Now().UTC(),
	}, nil
}

// uniqueToken combines a coarse timestamp with a short random suffix so keys
// never collide under concurrent uploads of identically named files.
func uniqueToken() string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), hex.EncodeToString(buf[:]))
}

func resolveContentType(declared, ext string) string {
	if trimmed := strings.TrimSpace(declared); trimmed != "" {
		return trimmed
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

// sanitizeBaseName reduces an original filename to a key-safe stem.
func sanitizeBaseName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "media"
	}
	return b.String()
}
