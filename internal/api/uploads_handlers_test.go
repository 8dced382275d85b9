package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"coursemedia/internal/events"
	"coursemedia/internal/objectstore"
	"coursemedia/internal/observability/metrics"
	"coursemedia/internal/pipeline"
	"coursemedia/internal/registry"
	"coursemedia/internal/transcoder"
)

// stubTranscoder writes a fixed HLS output set so handler tests exercise the
// video path without ffmpeg.
type stubTranscoder struct {
	segments int
}

func (s *stubTranscoder) Transcode(_ context.Context, inputPath, outputDir string, opts transcoder.Options) error {
	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("input not spooled: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	segments := s.segments
	if segments <= 0 {
		segments = 2
	}
	for i := 0; i < segments; i++ {
		name := fmt.Sprintf("%s_%03d.ts", opts.BaseName, i)
		if err := os.WriteFile(filepath.Join(outputDir, name), []byte("segment-data"), 0o644); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(outputDir, opts.BaseName+".m3u8"), []byte("#EXTM3U\n"), 0o644)
}

// capturePublisher records every published event for assertions.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturePublisher) Publish(_ context.Context, event events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func (c *capturePublisher) published() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Event(nil), c.events...)
}

type handlerFixture struct {
	handler *Handler
	store   *objectstore.Memory
	repo    registry.Repository
	events  *capturePublisher
}

func newHandlerFixture(t *testing.T, aggregateMax int64) *handlerFixture {
	t.Helper()
	store := objectstore.NewMemory("course-media", "us-east-1")
	workspaces, err := pipeline.NewWorkspaceManager(t.TempDir())
	if err != nil {
		t.Fatalf("new workspace manager: %v", err)
	}
	engine, err := pipeline.NewEngine(pipeline.EngineConfig{
		Store:        store,
		Transcoder:   &stubTranscoder{},
		Workspaces:   workspaces,
		AggregateMax: aggregateMax,
		Metrics:      metrics.New(),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	repo := registry.NewMemoryRepository()
	publisher := &capturePublisher{}
	handler := NewHandler(Config{
		Engine:   engine,
		Store:    store,
		Registry: repo,
		Events:   publisher,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  metrics.New(),
	})
	return &handlerFixture{handler: handler, store: store, repo: repo, events: publisher}
}

type multipartFile struct {
	field       string
	name        string
	contentType string
	content     string
}

func multipartBody(t *testing.T, files []multipartFile, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, file := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.name))
		if file.contentType != "" {
			header.Set("Content-Type", file.contentType)
		}
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write([]byte(file.content)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func postUploads(t *testing.T, fixture *handlerFixture, body *bytes.Buffer, contentType string) (*httptest.ResponseRecorder, uploadResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	fixture.handler.Uploads(rr, req)

	var response uploadResponse
	if rr.Code != http.StatusNoContent && rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
			t.Fatalf("decode response %q: %v", rr.Body.String(), err)
		}
	}
	return rr, response
}

func TestCreateUploadsDirectImage(t *testing.T) {
	fixture := newHandlerFixture(t, 0)
	body, contentType := multipartBody(t, []multipartFile{
		{field: "profileImage", name: "avatar.jpg", contentType: "image/jpeg", content: "image-bytes"},
	}, nil)

	rr, response := postUploads(t, fixture, body, contentType)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if response.TotalFiles != 1 || response.UploadStats.Successful != 1 {
		t.Fatalf("unexpected stats %+v", response.UploadStats)
	}
	if len(response.UploadedFiles) != 1 {
		t.Fatalf("expected one uploaded file, got %d", len(response.UploadedFiles))
	}
	uploaded := response.UploadedFiles[0]
	if uploaded.Category != "profile_image" {
		t.Fatalf("unexpected category %q", uploaded.Category)
	}
	if !strings.HasPrefix(uploaded.Key, "profiles/") || !strings.HasSuffix(uploaded.Key, ".jpg") {
		t.Fatalf("unexpected key %q", uploaded.Key)
	}
	if uploaded.MimeType != "image/jpeg" {
		t.Fatalf("unexpected mime type %q", uploaded.MimeType)
	}
	if uploaded.Size != int64(len("image-bytes")) || response.TotalSize != uploaded.Size {
		t.Fatalf("unexpected sizes %d/%d", uploaded.Size, response.TotalSize)
	}
	if uploaded.RecordID == "" {
		t.Fatal("expected a registry record id")
	}
	if uploaded.Location == "" || uploaded.ETag == "" {
		t.Fatalf("expected location and etag, got %+v", uploaded)
	}

	if _, err := fixture.repo.Get(context.Background(), uploaded.RecordID); err != nil {
		t.Fatalf("registry record missing: %v", err)
	}
	published := fixture.events.published()
	if len(published) != 1 || published[0].Type != events.TypeStored {
		t.Fatalf("expected one stored event, got %+v", published)
	}
}

func TestCreateUploadsVideoTranscodes(t *testing.T) {
	fixture := newHandlerFixture(t, 0)
	body, contentType := multipartBody(t, []multipartFile{
		{field: "video", name: "intro lecture.mp4", contentType: "video/mp4", content: "raw-video-bytes"},
	}, nil)

	rr, response := postUploads(t, fixture, body, contentType)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(response.UploadedFiles) != 1 {
		t.Fatalf("expected one uploaded file, got %+v", response)
	}
	uploaded := response.UploadedFiles[0]
	if !uploaded.Segmented {
		t.Fatal("expected a segmented result")
	}
	if !strings.HasPrefix(uploaded.Key, "videos/") || !strings.Contains(uploaded.Key, "/hls/") || !strings.HasSuffix(uploaded.Key, "intro-lecture.m3u8") {
		t.Fatalf("unexpected manifest key %q", uploaded.Key)
	}
	if uploaded.MimeType != "application/vnd.apple.mpegurl" {
		t.Fatalf("unexpected manifest mime type %q", uploaded.MimeType)
	}
	if uploaded.ETag != "" {
		t.Fatalf("segmented upload must not report an etag, got %q", uploaded.ETag)
	}
	// Two segments plus the manifest.
	if fixture.store.Len() != 3 {
		t.Fatalf("expected 3 stored objects, got %v", fixture.store.Keys())
	}
}

func TestCreateUploadsUnknownField(t *testing.T) {
	fixture := newHandlerFixture(t, 0)
	body, contentType := multipartBody(t, []multipartFile{
		{field: "gopher", name: "photo.jpg", content: "bytes"},
	}, nil)

	rr, response := postUploads(t, fixture, body, contentType)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if len(response.Errors) != 1 || response.Errors[0].Kind != "unknown_field" {
		t.Fatalf("unexpected errors %+v", response.Errors)
	}
	if fixture.store.Len() != 0 {
		t.Fatalf("expected nothing stored, got %v", fixture.store.Keys())
	}
	published := fixture.events.published()
	if len(published) != 1 || published[0].Type != events.TypeFailed {
		t.Fatalf("expected one failed event, got %+v", published)
	}
}

func TestCreateUploadsPartialFailure(t *testing.T) {
	fixture := newHandlerFixture(t, 0)
	body, contentType := multipartBody(t, []multipartFile{
		{field: "gopher", name: "photo.jpg", content: "bytes"},
		{field: "banner", name: "hero.png", contentType: "image/png", content: "banner-bytes"},
	}, nil)

	rr, response := postUploads(t, fixture, body, contentType)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for a partial success, got %d", rr.Code)
	}
	if response.UploadStats.Successful != 1 || response.UploadStats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", response.UploadStats)
	}
	if fixture.store.Len() != 1 {
		t.Fatalf("expected one stored object, got %v", fixture.store.Keys())
	}
}

func TestCreateUploadsSkipsPlainFormValues(t *testing.T) {
	fixture := newHandlerFixture(t, 0)
	body, contentType := multipartBody(t, []multipartFile{
		{field: "thumbnail", name: "cover.png", contentType: "image/png", content: "thumb"},
	}, map[string]string{"title": "Intro course"})

	rr, response := postUploads(t, fixture, body, contentType)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if response.UploadStats.Skipped != 1 || response.UploadStats.Successful != 1 {
		t.Fatalf("unexpected stats %+v", response.UploadStats)
	}
	if response.TotalFiles != 1 {
		t.Fatalf("form values must not count as files, got %d", response.TotalFiles)
	}
}

func TestCreateUploadsRejectsOversizedDeclaredRequest(t *testing.T) {
	fixture := newHandlerFixture(t, 64)
	body, contentType := multipartBody(t, []multipartFile{
		{field: "banner", name: "hero.png", contentType: "image/png", content: strings.Repeat("x", 256)},
	}, nil)

	rr, _ := postUploads(t, fixture, body, contentType)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	if fixture.store.Len() != 0 {
		t.Fatalf("oversized request must upload nothing, got %v", fixture.store.Keys())
	}
	if records, err := fixture.repo.List(context.Background(), "", 0); err != nil || len(records) != 0 {
		t.Fatalf("expected empty registry, got %v records (%v)", len(records), err)
	}
}

func TestCreateUploadsStreamingOverflow(t *testing.T) {
	fixture := newHandlerFixture(t, 64)
	body, contentType := multipartBody(t, []multipartFile{
		{field: "banner", name: "hero.png", contentType: "image/png", content: strings.Repeat("x", 256)},
	}, nil)

	// Chunked transfer: no declared length, the streaming budget must trip.
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = -1
	rr := httptest.NewRecorder()
	fixture.handler.Uploads(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rr.Code, rr.Body.String())
	}
	if fixture.store.Len() != 0 {
		t.Fatalf("expected nothing stored, got %v", fixture.store.Keys())
	}
}

func TestCreateUploadsRequiresMultipart(t *testing.T) {
	fixture := newHandlerFixture(t, 0)
	req := httptest.NewRequest(http.MethodPost, "/api/uploads", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	fixture.handler.Uploads(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rr.Code)
	}
}

func TestUploadsMethodNotAllowed(t *testing.T) {
	fixture := newHandlerFixture(t, 0)
	rr := httptest.NewRecorder()
	fixture.handler.Uploads(rr, httptest.NewRequest(http.MethodPut, "/api/uploads", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
	if allow := rr.Header().Get("Allow"); allow != "GET, POST" {
		t.Fatalf("unexpected Allow header %q", allow)
	}
}

func TestListUploads(t *testing.T) {
	fixture := newHandlerFixture(t, 0)
	for _, category := range []string{"video", "banner", "video"} {
		if _, err := fixture.repo.Create(context.Background(), registry.Record{Category: category, Key: category + "/x"}); err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/uploads?category=video", nil)
	rr := httptest.NewRecorder()
	fixture.handler.Uploads(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var records []registry.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 video records, got %d", len(records))
	}

	rr = httptest.NewRecorder()
	fixture.handler.Uploads(rr, httptest.NewRequest(http.MethodGet, "/api/uploads?limit=zero", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rr.Code)
	}
}

func TestUploadByID(t *testing.T) {
	fixture := newHandlerFixture(t, 0)
	if _, err := fixture.store.Put(context.Background(), "banners/1-abc.png", "image/png", strings.NewReader("banner")); err != nil {
		t.Fatalf("seed object: %v", err)
	}
	record, err := fixture.repo.Create(context.Background(), registry.Record{Category: "banner", Key: "banners/1-abc.png"})
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/uploads/"+record.ID, nil)
	rr := httptest.NewRecorder()
	fixture.handler.UploadByID(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var loaded registry.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &loaded); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if loaded.ID != record.ID || loaded.Key != record.Key {
		t.Fatalf("unexpected record %+v", loaded)
	}

	rr = httptest.NewRecorder()
	fixture.handler.UploadByID(rr, httptest.NewRequest(http.MethodGet, "/api/uploads/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	fixture.handler.UploadByID(rr, httptest.NewRequest(http.MethodDelete, "/api/uploads/"+record.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if fixture.store.Len() != 0 {
		t.Fatalf("expected object removed, got %v", fixture.store.Keys())
	}
	if _, err := fixture.repo.Get(context.Background(), record.ID); err != registry.ErrNotFound {
		t.Fatalf("expected record removed, got %v", err)
	}
}

func TestDeleteSegmentedUploadRemovesSegments(t *testing.T) {
	fixture := newHandlerFixture(t, 0)
	keys := []string{
		"videos/1-abc/lecture/hls/lecture.m3u8",
		"videos/1-abc/lecture/hls/lecture_000.ts",
		"videos/1-abc/lecture/hls/lecture_001.ts",
	}
	for _, key := range keys {
		if _, err := fixture.store.Put(context.Background(), key, "application/octet-stream", strings.NewReader("data")); err != nil {
			t.Fatalf("seed object %s: %v", key, err)
		}
	}
	record, err := fixture.repo.Create(context.Background(), registry.Record{
		Category:  "video",
		Key:       keys[0],
		Segmented: true,
	})
	if err != nil {
		t.Fatalf("seed record: %v", err)
	}

	rr := httptest.NewRecorder()
	fixture.handler.UploadByID(rr, httptest.NewRequest(http.MethodDelete, "/api/uploads/"+record.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}
	if fixture.store.Len() != 0 {
		t.Fatalf("expected the whole segment subtree removed, got %v", fixture.store.Keys())
	}
}
