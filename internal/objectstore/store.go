// Package objectstore provides the durable-object capability the upload
// pipeline writes into: streaming puts, deletes, and public URL derivation.
package objectstore

import (
	"context"
	"io"
)

// PutResult reports the storage provider's completion metadata.
type PutResult struct {
	ETag string
}

// Store is the object-storage boundary. Put streams the body without
// buffering it in memory; URL derives the publicly resolvable address for a
// key following the provider's bucket/region convention.
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (PutResult, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	URL(key string) string
	Bucket() string
}
