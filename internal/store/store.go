package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no document exists for the key.
var ErrNotFound = errors.New("document not found")

// Store is a document store addressed by (kind, key). Values are
// JSON-serializable documents. No multi-key atomicity is assumed; the
// processing model is single-threaded, one event at a time.
type Store interface {
	// Get unmarshals the document into out, or returns ErrNotFound.
	Get(ctx context.Context, kind, key string, out any) error
	// Put marshals and persists the document, overwriting any prior value.
	Put(ctx context.Context, kind, key string, val any) error
}
