package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"coursemedia/internal/events"
	"coursemedia/internal/pipeline"
	"coursemedia/internal/registry"
)

type uploadedFileResponse struct {
	FieldName    string `json:"fieldName"`
	OriginalName string `json:"originalName"`
	Category     string `json:"category"`
	MimeType     string `json:"mimeType"`
	Bucket       string `json:"bucket"`
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	Location     string `json:"location"`
	ETag         string `json:"etag,omitempty"`
	Segmented    bool   `json:"segmented"`
	RecordID     string `json:"recordId,omitempty"`
	StoredAt     string `json:"storedAt"`
}

type uploadErrorResponse struct {
	FieldName string `json:"fieldName"`
	FileName  string `json:"fileName,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Error     string `json:"error"`
}

type uploadStats struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

type uploadResponse struct {
	UploadedFiles []uploadedFileResponse `json:"uploadedFiles"`
	TotalFiles    int                    `json:"totalFiles"`
	TotalSize     int64                  `json:"totalSize"`
	UploadStats   uploadStats            `json:"uploadStats"`
	Errors        []uploadErrorResponse  `json:"errors,omitempty"`
}

func newUploadedFileResponse(result pipeline.Result, recordID string) uploadedFileResponse {
	return uploadedFileResponse{
		FieldName:    result.FieldName,
		OriginalName: result.OriginalName,
		Category:     result.Category,
		MimeType:     result.ContentType,
		Bucket:       result.Bucket,
		Key:          result.Key,
		Size:         result.Size,
		Location:     result.Location,
		ETag:         result.ETag,
		Segmented:    result.Segmented,
		RecordID:     recordID,
		StoredAt:     result.StoredAt.Format(time.RFC3339Nano),
	}
}

// Uploads serves the upload collection: POST streams a multipart request
// through the pipeline, GET lists stored records.
func (h *Handler) Uploads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createUploads(w, r)
	case http.MethodGet:
		h.listUploads(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) createUploads(w http.ResponseWriter, r *http.Request) {
	contentType := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		WriteError(w, http.StatusUnsupportedMediaType, fmt.Errorf("multipart/form-data request required"))
		return
	}
	// Declared-size rejection: an oversized request uploads nothing.
	max := h.Engine.AggregateMax()
	if r.ContentLength > max {
		WriteError(w, http.StatusRequestEntityTooLarge,
			fmt.Errorf("request body of %d bytes exceeds the %d byte limit", r.ContentLength, max))
		return
	}
	// Transport-level backstop with slack for multipart framing and form
	// fields; the streaming budget trips first on file bytes.
	r.Body = http.MaxBytesReader(w, r.Body, max+1<<20)
	reader, err := r.MultipartReader()
	if err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Errorf("read multipart request: %w", err))
		return
	}

	ctx := r.Context()
	budget := h.Engine.NewBudget()
	response := uploadResponse{UploadedFiles: []uploadedFileResponse{}}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			WriteError(w, http.StatusBadRequest, fmt.Errorf("read multipart part: %w", err))
			return
		}
		if strings.TrimSpace(part.FileName()) == "" {
			// Plain form values carry no file payload.
			_ = part.Close()
			response.UploadStats.Skipped++
			continue
		}
		response.TotalFiles++

		result, storeErr := h.Engine.Store(ctx, pipeline.Part{
			FieldName:    part.FormName(),
			FileName:     part.FileName(),
			ContentType:  part.Header.Get("Content-Type"),
			DeclaredSize: -1,
			Body:         part,
		}, budget)
		_ = part.Close()

		if storeErr != nil {
			response.UploadStats.Failed++
			kind := pipeline.KindOf(storeErr)
			response.Errors = append(response.Errors, uploadErrorResponse{
				FieldName: part.FormName(),
				FileName:  part.FileName(),
				Kind:      string(kind),
				Error:     storeErr.Error(),
			})
			h.publishFailure(ctx, part.FormName(), part.FileName(), storeErr)
			if kind == pipeline.KindRequestTooLarge {
				// The budget is spent; remaining parts cannot succeed.
				break
			}
			continue
		}

		recordID := h.recordResult(ctx, result)
		response.UploadStats.Successful++
		response.TotalSize += result.Size
		response.UploadedFiles = append(response.UploadedFiles, newUploadedFileResponse(result, recordID))
	}

	status := http.StatusOK
	if response.UploadStats.Successful == 0 && len(response.Errors) > 0 {
		status = statusForKind(response.Errors[0].Kind)
	}
	WriteJSON(w, status, response)
}

// recordResult persists the registry record and publishes the stored event.
// Both are best effort: the artifact is already in object storage.
func (h *Handler) recordResult(ctx context.Context, result pipeline.Result) string {
	record, err := h.Registry.Create(ctx, registry.Record{
		FieldName:    result.FieldName,
		OriginalName: result.OriginalName,
		Category:     result.Category,
		ContentType:  result.ContentType,
		Bucket:       result.Bucket,
		Key:          result.Key,
		Size:         result.Size,
		Location:     result.Location,
		ETag:         result.ETag,
		Segmented:    result.Segmented,
		StoredAt:     result.StoredAt,
	})
	if err != nil {
		h.Logger.Error("persist upload record failed", "key", result.Key, "error", err)
	}
	if err := h.Events.Publish(ctx, events.Event{
		Type:         events.TypeStored,
		RecordID:     record.ID,
		FieldName:    result.FieldName,
		OriginalName: result.OriginalName,
		Category:     result.Category,
		Key:          result.Key,
		Size:         result.Size,
		Segmented:    result.Segmented,
	}); err != nil {
		h.Logger.Warn("publish stored event failed", "key", result.Key, "error", err)
	}
	return record.ID
}

func (h *Handler) publishFailure(ctx context.Context, fieldName, fileName string, cause error) {
	if err := h.Events.Publish(ctx, events.Event{
		Type:         events.TypeFailed,
		FieldName:    fieldName,
		OriginalName: fileName,
		ErrorKind:    string(pipeline.KindOf(cause)),
		Error:        cause.Error(),
	}); err != nil {
		h.Logger.Warn("publish failed event failed", "field", fieldName, "error", err)
	}
}

func statusForKind(kind string) int {
	switch pipeline.ErrorKind(kind) {
	case pipeline.KindUnknownField, pipeline.KindDisallowedType:
		return http.StatusBadRequest
	case pipeline.KindFileTooLarge, pipeline.KindRequestTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) listUploads(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}
	records, err := h.Registry.List(r.Context(), category, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err)
		return
	}
	WriteJSON(w, http.StatusOK, records)
}

// UploadByID serves one registry record: GET returns it, DELETE removes both
// the stored objects and the record.
func (h *Handler) UploadByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/api/uploads/"))
	if id == "" || strings.Contains(id, "/") {
		WriteError(w, http.StatusNotFound, fmt.Errorf("upload id missing"))
		return
	}
	record, err := h.Registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			WriteError(w, http.StatusNotFound, fmt.Errorf("upload %s not found", id))
			return
		}
		WriteError(w, http.StatusInternalServerError, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		WriteJSON(w, http.StatusOK, record)
	case http.MethodDelete:
		if err := h.deleteStoredObjects(r, record); err != nil {
			WriteError(w, http.StatusBadGateway, fmt.Errorf("delete stored objects: %w", err))
			return
		}
		if err := h.Registry.Delete(r.Context(), id); err != nil && !errors.Is(err, registry.ErrNotFound) {
			WriteError(w, http.StatusInternalServerError, err)
			return
		}
		h.Logger.Info("upload deleted", "id", id, "key", record.Key, "segmented", record.Segmented)
		writeJSON(w, http.StatusNoContent, nil)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		WriteError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

func (h *Handler) deleteStoredObjects(r *http.Request, record registry.Record) error {
	if record.Segmented {
		// The manifest lives at {prefix}/{base}/hls/{manifest}; removing the
		// {prefix}/{base}/ subtree takes every segment with it.
		prefix := path.Dir(path.Dir(record.Key)) + "/"
		return h.Store.DeletePrefix(r.Context(), prefix)
	}
	return h.Store.Delete(r.Context(), record.Key)
}
