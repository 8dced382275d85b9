// Package registry persists the records of stored uploads so operators can
// list, inspect, and delete artifacts after the originating request is gone.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no record matches the requested ID.
var ErrNotFound = errors.New("upload record not found")

// Record is one stored upload artifact. For segmented videos Key points at
// the HLS manifest and the companion segments share its key prefix.
type Record struct {
	ID           string    `json:"id"`
	FieldName    string    `json:"fieldName"`
	OriginalName string    `json:"originalName"`
	Category     string    `json:"category"`
	ContentType  string    `json:"mimeType"`
	Bucket       string    `json:"bucket"`
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	Location     string    `json:"location"`
	ETag         string    `json:"etag,omitempty"`
	Segmented    bool      `json:"segmented"`
	StoredAt     time.Time `json:"storedAt"`
}

// Repository stores upload records. Implementations must be safe for
// concurrent use.
type Repository interface {
	Create(ctx context.Context, record Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, category string, limit int) ([]Record, error)
	Delete(ctx context.Context, id string) error
	Close(ctx context.Context) error
}

func generateID() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
