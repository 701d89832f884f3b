// Package config loads the screen server configuration.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, then SCREEN_* environment variables. Command line flags are applied
// last as Options by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	engine "screen/pkg/storage"
)

const (
	ServiceLocal = "LOCAL"
	ServiceS3    = "S3"
	ServiceGCS   = "GCS"

	envPrefix = "SCREEN_"
)

type Config struct {
	Listen  string  `yaml:"listen"`
	Debug   bool    `yaml:"debug"`
	DBFile  string  `yaml:"db_file"`
	Storage Storage `yaml:"storage"`
	Auth    Auth    `yaml:"auth"`
}

// Storage selects and configures the storage engine.
type Storage struct {
	// Service is one of LOCAL, S3 or GCS.
	Service string `yaml:"service"`
	// LocalDir is the root of the local engine, or of the cache when
	// LocalCache is set for a remote service.
	LocalDir   string `yaml:"local_dir"`
	LocalCache bool   `yaml:"local_cache"`
	S3         S3     `yaml:"s3"`
	GCS        GCS    `yaml:"gcs"`
}

type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Insecure  bool   `yaml:"insecure"`
}

type GCS struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Auth configures who may use the server. Users maps a user id (usually an
// email address) to a password for HTTP basic auth. TrustedHeader names a
// header set by an authenticating reverse proxy.
type Auth struct {
	Users         map[string]string `yaml:"users"`
	TrustedHeader string            `yaml:"trusted_header"`
}

type Option func(*Config)

func WithListen(addr string) Option {
	return func(cfg *Config) {
		cfg.Listen = addr
	}
}

func WithDebug(debug bool) Option {
	return func(cfg *Config) {
		cfg.Debug = debug
	}
}

func WithDBFile(path string) Option {
	return func(cfg *Config) {
		cfg.DBFile = path
	}
}

func WithStorageService(service string) Option {
	return func(cfg *Config) {
		cfg.Storage.Service = service
	}
}

func WithLocalDir(dir string) Option {
	return func(cfg *Config) {
		cfg.Storage.LocalDir = dir
	}
}

func WithLocalCache(enabled bool) Option {
	return func(cfg *Config) {
		cfg.Storage.LocalCache = enabled
	}
}

// Default returns the configuration used when nothing else is specified: a
// local engine under ./data and a SQLite file next to it.
func Default() Config {
	return Config{
		Listen: ":8080",
		DBFile: "./data/screen.sqlite",
		Storage: Storage{
			Service:  ServiceLocal,
			LocalDir: "./data/images",
			S3: S3{
				Region: "us-east-1",
			},
		},
	}
}

// NewConfig returns the defaults with opts applied.
func NewConfig(opts ...Option) Config {
	cfg := Default()
	cfg.Apply(opts...)
	return cfg
}

// Apply applies opts in order.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Load reads the YAML file at path (skipped when path is empty) over the
// defaults and then applies SCREEN_* environment variables.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup function.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: read config file: %w", engine.ErrConfiguration, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse config file %s: %w", engine.ErrConfiguration, path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"LISTEN":              &c.Listen,
		"DB_FILE":             &c.DBFile,
		"STORAGE_SERVICE":     &c.Storage.Service,
		"STORAGE_LOCAL_DIR":   &c.Storage.LocalDir,
		"S3_ENDPOINT":         &c.Storage.S3.Endpoint,
		"S3_REGION":           &c.Storage.S3.Region,
		"S3_BUCKET":           &c.Storage.S3.Bucket,
		"S3_ACCESS_KEY":       &c.Storage.S3.AccessKey,
		"S3_SECRET_KEY":       &c.Storage.S3.SecretKey,
		"GCS_ENDPOINT":        &c.Storage.GCS.Endpoint,
		"GCS_BUCKET":          &c.Storage.GCS.Bucket,
		"GCS_ACCESS_KEY":      &c.Storage.GCS.AccessKey,
		"GCS_SECRET_KEY":      &c.Storage.GCS.SecretKey,
		"AUTH_TRUSTED_HEADER": &c.Auth.TrustedHeader,
	}
	for name, dst := range strs {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"DEBUG":               &c.Debug,
		"STORAGE_LOCAL_CACHE": &c.Storage.LocalCache,
		"S3_INSECURE":         &c.Storage.S3.Insecure,
	}
	var errs []error
	for name, dst := range bools {
		v, ok := lookup(envPrefix + name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s%s=%q is not a boolean", engine.ErrConfiguration, envPrefix, name, v))
			continue
		}
		*dst = b
	}

	return errors.Join(errs...)
}

// Validate checks that the configuration names a known storage service and
// carries the keys that service needs.
func (c Config) Validate() error {
	if c.DBFile == "" {
		return fmt.Errorf("%w: db_file must not be empty", engine.ErrConfiguration)
	}

	service := strings.ToUpper(c.Storage.Service)
	switch service {
	case ServiceLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("%w: storage.local_dir is required for %s", engine.ErrConfiguration, service)
		}
	case ServiceS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("%w: storage.s3.bucket is required for %s", engine.ErrConfiguration, service)
		}
	case ServiceGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("%w: storage.gcs.bucket is required for %s", engine.ErrConfiguration, service)
		}
	default:
		return fmt.Errorf("%w: %q storage service is not available", engine.ErrConfiguration, c.Storage.Service)
	}

	if c.Storage.LocalCache && c.Storage.LocalDir == "" {
		return fmt.Errorf("%w: storage.local_dir is required when local_cache is enabled", engine.ErrConfiguration)
	}

	return nil
}
