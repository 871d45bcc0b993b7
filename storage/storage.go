package storage

import (
	"context"
	stderrors "errors"
	"io"
	"time"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = stderrors.New("object not found")

// Object describes a stored object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Store is an object store.
type Store interface {
	// Put writes the contents of r to key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader) error
	// Get opens the object at key. The caller closes the reader. Missing
	// objects return an error wrapping ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object at key. Missing objects are not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether an object exists at key.
	Exists(ctx context.Context, key string) (bool, error)
	// List returns the objects whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Object, error)
}
