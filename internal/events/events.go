// Package events publishes upload lifecycle notifications so downstream
// consumers (catalog builders, cache invalidators) learn about stored and
// failed uploads without polling the registry.
package events

import (
	"context"
	"time"
)

const (
	// TypeStored announces a successfully stored upload artifact.
	TypeStored = "upload.stored"
	// TypeFailed announces a terminally failed part.
	TypeFailed = "upload.failed"
)

// Event is one lifecycle notification.
type Event struct {
	Type         string    `json:"type"`
	RecordID     string    `json:"recordId,omitempty"`
	FieldName    string    `json:"fieldName"`
	OriginalName string    `json:"originalName"`
	Category     string    `json:"category,omitempty"`
	Key          string    `json:"key,omitempty"`
	Size         int64     `json:"size,omitempty"`
	Segmented    bool      `json:"segmented,omitempty"`
	ErrorKind    string    `json:"errorKind,omitempty"`
	Error        string    `json:"error,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// Publisher delivers lifecycle events. Publishing is best effort from the
// caller's perspective; a failed publish must never fail the upload itself.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }
