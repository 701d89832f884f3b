package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	engine "screen/pkg/storage"
)

// downloadTimeout bounds a shared download once it no longer follows any
// caller's context.
const downloadTimeout = 5 * time.Minute

// RemoteStorage is a StorageEngine backed by a flat ObjectStore (S3, GCS),
// optionally fronted by another StorageEngine acting as a local cache.
//
// The remote store is the source of truth. Cache reads are tried first and
// any cache failure falls through to the remote; cache writes are best
// effort and never fail an operation that succeeded remotely.
type RemoteStorage struct {
	name   string
	store  ObjectStore
	cache  engine.StorageEngine
	flight singleflight.Group
}

var _ engine.StorageEngine = (*RemoteStorage)(nil)

// NewRemoteStorage creates a RemoteStorage. name labels logs and metrics
// ("s3", "gcs"); cache may be nil.
func NewRemoteStorage(name string, store ObjectStore, cache engine.StorageEngine) *RemoteStorage {
	return &RemoteStorage{
		name:  name,
		store: store,
		cache: cache,
	}
}

// PutImage uploads the contents of r and then copies them into the cache.
func (s *RemoteStorage) PutImage(ctx context.Context, id string, variant string, r io.Reader) error {
	if err := ValidateKey(id, variant); err != nil {
		return err
	}

	// The cache write needs the same bytes again, so keep a stable copy
	// rather than handing r to the uploader.
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: read image payload: %w", engine.ErrStorageFault, err)
	}

	key := ObjectName(id, variant)
	if err := s.store.PutObject(ctx, key, data); err != nil {
		remoteOperations.WithLabelValues(s.name, "put", "error").Inc()
		return asStorageError(err)
	}
	remoteOperations.WithLabelValues(s.name, "put", "ok").Inc()

	s.fillCache(ctx, id, variant, data)
	return nil
}

// GetImage serves (id, variant) from the cache when possible and otherwise
// downloads it, populating the cache on the way out.
func (s *RemoteStorage) GetImage(ctx context.Context, id string, variant string) (io.ReadCloser, error) {
	if err := ValidateKey(id, variant); err != nil {
		return nil, err
	}

	if s.cache != nil {
		rc, err := s.cache.GetImage(ctx, id, variant)
		switch {
		case err == nil:
			cacheLookups.WithLabelValues(s.name, "hit").Inc()
			return rc, nil
		case errors.Is(err, engine.ErrNotFound):
			cacheLookups.WithLabelValues(s.name, "miss").Inc()
		default:
			cacheLookups.WithLabelValues(s.name, "error").Inc()
			slog.Warn("Cache read failed, falling back to remote", "engine", s.name, "id", id, "variant", variant, "err", err)
		}
	}

	key := ObjectName(id, variant)

	// Concurrent misses for the same key share one download and one cache
	// write. The download is detached from any single caller; each caller
	// stops waiting only when its own context ends.
	ch := s.flight.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), downloadTimeout)
		defer cancel()

		data, err := s.store.GetObject(fctx, key)
		if err != nil {
			if errors.Is(err, engine.ErrNotFound) {
				remoteOperations.WithLabelValues(s.name, "get", "not_found").Inc()
			} else {
				remoteOperations.WithLabelValues(s.name, "get", "error").Inc()
			}
			return nil, err
		}
		remoteOperations.WithLabelValues(s.name, "get", "ok").Inc()

		s.fillCache(fctx, id, variant, data)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, asStorageError(res.Err)
		}
		return io.NopCloser(bytes.NewReader(res.Val.([]byte))), nil
	}
}

// fillCache writes data into the cache, logging and discarding any error.
func (s *RemoteStorage) fillCache(ctx context.Context, id string, variant string, data []byte) {
	if s.cache == nil {
		return
	}

	if err := s.cache.PutImage(ctx, id, variant, bytes.NewReader(data)); err != nil {
		cacheFillFailures.WithLabelValues(s.name).Inc()
		slog.Warn("Cache write failed", "engine", s.name, "id", id, "variant", variant, "err", err)
	}
}

// asStorageError keeps ErrNotFound and ErrStorageFault as they are and treats
// anything else returned by an ObjectStore as a fault.
func asStorageError(err error) error {
	if errors.Is(err, engine.ErrNotFound) || errors.Is(err, engine.ErrStorageFault) {
		return err
	}
	return fmt.Errorf("%w: %w", engine.ErrStorageFault, err)
}
