// Package server exposes screenshots over HTTP: raw image bytes, a JSON API
// for uploading and annotating, and a small HTML viewer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"screen/internal/auth"
	"screen/internal/records"
	"screen/pkg/imageid"
	engine "screen/pkg/storage"
)

const (
	DefaultMaxUploadBytes = 32 << 20

	// maxIDAttempts bounds how often a freshly minted id may collide with an
	// existing record before the upload is abandoned.
	maxIDAttempts = 3
)

// RecordStore is the subset of records.Store the server needs.
type RecordStore interface {
	Insert(ctx context.Context, img *records.Image) error
	Get(ctx context.Context, id string) (*records.Image, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*records.Image, error)
	Update(ctx context.Context, img *records.Image, owner string) (int64, error)
	Ping(ctx context.Context) error
}

type Config struct {
	Engine         engine.StorageEngine
	Records        RecordStore
	Authenticator  auth.AuthEngine
	Generator      *imageid.Generator
	MaxUploadBytes int64

	// Logger receives the access log. Defaults to slog.Default().
	Logger *slog.Logger
}

type ConfigOption func(*Config)

func WithStorageEngine(e engine.StorageEngine) ConfigOption {
	return func(cfg *Config) {
		cfg.Engine = e
	}
}

func WithRecordStore(store RecordStore) ConfigOption {
	return func(cfg *Config) {
		cfg.Records = store
	}
}

func WithAuthEngine(authenticator auth.AuthEngine) ConfigOption {
	return func(cfg *Config) {
		cfg.Authenticator = authenticator
	}
}

func WithGenerator(gen *imageid.Generator) ConfigOption {
	return func(cfg *Config) {
		cfg.Generator = gen
	}
}

func WithMaxUploadBytes(n int64) ConfigOption {
	return func(cfg *Config) {
		cfg.MaxUploadBytes = n
	}
}

func WithLogger(logger *slog.Logger) ConfigOption {
	return func(cfg *Config) {
		cfg.Logger = logger
	}
}

type Server struct {
	Config Config
}

// NewServer validates the configuration and returns a Server. A storage
// engine, a record store and an authenticator are required.
func NewServer(opts ...ConfigOption) (*Server, error) {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.Engine == nil {
		return nil, errors.New("storage engine must not be nil")
	}
	if cfg.Records == nil {
		return nil, errors.New("record store must not be nil")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("authenticator must not be nil")
	}
	if cfg.Generator == nil {
		cfg.Generator = &imageid.Generator{}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Server{Config: cfg}, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding JSON response", "err", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeInternalError writes a generic 500 response.
func writeInternalError(w http.ResponseWriter) {
	writeJSONError(w, http.StatusInternalServerError, "internal error")
}
