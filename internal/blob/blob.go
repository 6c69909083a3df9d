// Package blob defines the object storage the image reclaimer deletes
// uploaded files from.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when the addressed object does not exist.
var ErrNotFound = errors.New("blob: object not found")

// Store is an object store keyed by opaque storage keys.
type Store interface {
	// Put writes an object, replacing any previous content.
	Put(ctx context.Context, key string, r io.Reader) error

	// Exists reports whether an object is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes an object. It returns an error wrapping ErrNotFound
	// when the object is already gone.
	Delete(ctx context.Context, key string) error
}
