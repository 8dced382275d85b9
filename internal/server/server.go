// Package server assembles the HTTP surface of the upload service behind a
// consistent middleware chain of request IDs, auth, metrics, and logging so
// every handler shares the same protections and instrumentation.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"coursemedia/internal/api"
	"coursemedia/internal/auth"
	"coursemedia/internal/observability/logging"
	"coursemedia/internal/observability/metrics"
)

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type Config struct {
	Addr    string
	TLS     TLSConfig
	Auth    *auth.Verifier
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	metrics     *metrics.Recorder
	tlsCertFile string
	tlsKeyFile  string
}

func New(handler *api.Handler, cfg Config) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("api handler is required")
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}
	verifier := cfg.Auth
	if verifier == nil {
		verifier = auth.NewVerifier(nil)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())
	mux.Handle("/api/uploads", verifier.Middleware(http.HandlerFunc(handler.Uploads)))
	mux.Handle("/api/uploads/", verifier.Middleware(http.HandlerFunc(handler.UploadByID)))

	handlerChain := http.Handler(mux)
	handlerChain = metrics.HTTPMiddleware(recorder, handlerChain)
	handlerChain = securityHeadersMiddleware(handlerChain)
	handlerChain = logging.RequestLogger(cfg.Logger)(handlerChain)
	handlerChain = requestIDMiddleware(handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		// Upload bodies stream for as long as the client needs; only the
		// response write is bounded.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer:  httpServer,
		logger:      cfg.Logger,
		metrics:     recorder,
		tlsCertFile: strings.TrimSpace(cfg.TLS.CertFile),
		tlsKeyFile:  strings.TrimSpace(cfg.TLS.KeyFile),
	}, nil
}

// Handler exposes the assembled middleware chain for tests.
func (s *Server) Handler() http.Handler {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	if s.httpServer == nil {
		return fmt.Errorf("http server is not configured")
	}
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		return s.httpServer.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("X-Content-Type-Options", "nosniff")
		header.Set("X-Frame-Options", "DENY")
		header.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
