package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	engine "screen/pkg/storage"
)

const (
	DefaultS3Endpoint  = "s3.amazonaws.com"
	DefaultGCSEndpoint = "storage.googleapis.com"
)

// ObjectStore is a flat key/value blob store. Implementations return
// ErrNotFound for missing keys and wrap everything else in ErrStorageFault.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data []byte) error
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// MinioObjectStore talks to an S3-compatible API. It serves both Amazon S3
// and Google Cloud Storage, the latter through its XML interoperability API
// authenticated with HMAC keys.
type MinioObjectStore struct {
	client *minio.Client
	bucket string
}

var _ ObjectStore = (*MinioObjectStore)(nil)

// S3Options selects an S3 bucket. When AccessKey is empty, credentials are
// taken from the standard AWS environment variables, shared credentials file
// and instance metadata, in that order.
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Insecure  bool
}

// GCSOptions selects a GCS bucket accessed with interoperability HMAC keys.
type GCSOptions struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
}

// NewS3ObjectStore creates an ObjectStore backed by an S3 bucket.
func NewS3ObjectStore(opts S3Options) (*MinioObjectStore, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket must not be empty", engine.ErrConfiguration)
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultS3Endpoint
	}

	var creds *credentials.Credentials
	if opts.AccessKey != "" {
		creds = credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.FileAWSCredentials{},
			&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
		})
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: !opts.Insecure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create s3 client: %w", engine.ErrConfiguration, err)
	}

	slog.Info("Using S3 object store", "endpoint", endpoint, "bucket", opts.Bucket, "region", opts.Region)
	return NewMinioObjectStore(client, opts.Bucket), nil
}

// NewGCSObjectStore creates an ObjectStore backed by a GCS bucket.
func NewGCSObjectStore(opts GCSOptions) (*MinioObjectStore, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("%w: gcs bucket must not be empty", engine.ErrConfiguration)
	}
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("%w: gcs requires an HMAC access key and secret", engine.ErrConfiguration)
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultGCSEndpoint
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: true,
		// GCS ignores the region but signing still needs one.
		Region: "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create gcs client: %w", engine.ErrConfiguration, err)
	}

	slog.Info("Using GCS object store", "endpoint", endpoint, "bucket", opts.Bucket)
	return NewMinioObjectStore(client, opts.Bucket), nil
}

// NewMinioObjectStore wraps an existing client.
func NewMinioObjectStore(client *minio.Client, bucket string) *MinioObjectStore {
	return &MinioObjectStore{client: client, bucket: bucket}
}

// PutObject uploads data to key as a single image/png object, replacing any
// existing object.
func (s *MinioObjectStore) PutObject(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "image/png",
		// The payload is already in memory; skip the aws-chunked streaming
		// signature so plain HTTP endpoints receive the raw body.
		DisableContentSha256: true,
	})
	if err != nil {
		return translateMinioError(key, err)
	}
	return nil
}

// GetObject downloads the object at key. A missing key is ErrNotFound.
func (s *MinioObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinioError(key, err)
	}
	defer obj.Close()

	// GetObject is lazy; the first read surfaces NoSuchKey.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateMinioError(key, err)
	}
	return data, nil
}

// translateMinioError maps minio client errors onto the engine error kinds so
// that callers never see minio types.
func translateMinioError(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket":
		return fmt.Errorf("%w: %s", engine.ErrNotFound, key)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", engine.ErrStorageFault, key, err)
	default:
		return fmt.Errorf("%w: %s: %s", engine.ErrStorageFault, key, err.Error())
	}
}
