package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when no image is stored under the requested
	// identifier and variant.
	ErrNotFound = errors.New("image not found")

	// ErrInvalidKey is returned when an identifier or variant is malformed.
	// Callers at the HTTP boundary treat it like ErrNotFound.
	ErrInvalidKey = errors.New("invalid image key")

	// ErrStorageFault wraps unexpected I/O, permission and network errors.
	ErrStorageFault = errors.New("storage fault")

	// ErrConfiguration is returned when a storage engine cannot be built from
	// the supplied configuration.
	ErrConfiguration = errors.New("storage configuration error")
)

// StorageEngine defines the interface for a storage backend that keeps
// screenshot payloads keyed by image identifier and an optional variant
// (an empty variant selects the original image).
//
// Implementations must be safe for concurrent use and must translate their
// internal errors into the sentinel errors above.
type StorageEngine interface {
	// PutImage stores the full contents of r under (id, variant), replacing
	// anything already stored there.
	PutImage(ctx context.Context, id string, variant string, r io.Reader) error

	// GetImage returns a reader for the payload stored under (id, variant).
	// The caller must close it. ErrNotFound is returned on a miss.
	GetImage(ctx context.Context, id string, variant string) (io.ReadCloser, error)
}
