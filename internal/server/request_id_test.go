package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"coursemedia/internal/observability/logging"
)

func TestRequestIDGeneratedWhenMissing(t *testing.T) {
	var seen string
	handler := requestIDMiddlewareWithGenerator(func() string { return "generated-id" },
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = logging.RequestIDFromContext(r.Context())
		}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen != "generated-id" {
		t.Fatalf("expected generated id in context, got %q", seen)
	}
	if got := rr.Header().Get("X-Request-Id"); got != "generated-id" {
		t.Fatalf("expected generated id header, got %q", got)
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "caller-id")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-Id"); got != "caller-id" {
		t.Fatalf("expected caller id echoed, got %q", got)
	}
}

func TestUploadIDPropagatesToContext(t *testing.T) {
	var uploadID string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploadID, _ = logging.UploadIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", nil)
	req.Header.Set("X-Upload-Id", "upload-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if uploadID != "upload-42" {
		t.Fatalf("expected upload id in context, got %q", uploadID)
	}
}

func TestNewRequestIDIsUnique(t *testing.T) {
	first := newRequestID()
	second := newRequestID()
	if first == "" || first == second {
		t.Fatalf("expected distinct ids, got %q and %q", first, second)
	}
}
