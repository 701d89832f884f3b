package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"screen/internal/config"
	engine "screen/pkg/storage"
)

type factoryOptions struct {
	objectStore ObjectStore
}

// FactoryOption adjusts how NewStorageEngine builds remote engines.
type FactoryOption func(*factoryOptions)

// WithObjectStore makes remote services use store instead of dialing the
// configured bucket.
func WithObjectStore(store ObjectStore) FactoryOption {
	return func(o *factoryOptions) {
		o.objectStore = store
	}
}

// NewStorageEngine builds the engine selected by cfg.Service. For the remote
// services a LocalFileStorage rooted at cfg.LocalDir is placed in front as a
// cache when cfg.LocalCache is set. An unknown service is a configuration
// error.
func NewStorageEngine(cfg config.Storage, opts ...FactoryOption) (engine.StorageEngine, error) {
	var o factoryOptions
	for _, opt := range opts {
		opt(&o)
	}

	service := strings.ToUpper(cfg.Service)
	switch service {
	case config.ServiceLocal:
		slog.Info("Creating local filesystem storage", "dir", cfg.LocalDir)
		local, err := NewLocalFileStorage(cfg.LocalDir)
		if err != nil {
			return nil, err
		}
		return local, nil

	case config.ServiceS3, config.ServiceGCS:
		var cache engine.StorageEngine
		if cfg.LocalCache {
			slog.Info("Creating local filesystem storage for caching", "dir", cfg.LocalDir)
			local, err := NewLocalFileStorage(cfg.LocalDir)
			if err != nil {
				return nil, err
			}
			cache = local
		}

		store := o.objectStore
		if store == nil {
			var err error
			store, err = newObjectStore(service, cfg)
			if err != nil {
				return nil, err
			}
		}

		name := strings.ToLower(service)
		slog.Info("Creating remote storage", "service", name, "cache", cache != nil)
		return NewRemoteStorage(name, store, cache), nil

	default:
		return nil, fmt.Errorf("%w: %q storage service is not available", engine.ErrConfiguration, cfg.Service)
	}
}

func newObjectStore(service string, cfg config.Storage) (ObjectStore, error) {
	if service == config.ServiceGCS {
		return NewGCSObjectStore(GCSOptions{
			Endpoint:  cfg.GCS.Endpoint,
			Bucket:    cfg.GCS.Bucket,
			AccessKey: cfg.GCS.AccessKey,
			SecretKey: cfg.GCS.SecretKey,
		})
	}

	return NewS3ObjectStore(S3Options{
		Endpoint:  cfg.S3.Endpoint,
		Region:    cfg.S3.Region,
		Bucket:    cfg.S3.Bucket,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Insecure:  cfg.S3.Insecure,
	})
}
