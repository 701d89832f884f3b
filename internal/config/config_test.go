package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"screen/internal/config"
	engine "screen/pkg/storage"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "screen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600), "writing config file")
	return path
}

func TestNewConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	require.Equal(t, ":8080", cfg.Listen)
	require.Equal(t, config.ServiceLocal, cfg.Storage.Service)
	require.NotEmpty(t, cfg.Storage.LocalDir)
	require.NoError(t, cfg.Validate(), "defaults must validate")

	cfg = config.NewConfig(
		config.WithListen("127.0.0.1:9000"),
		config.WithDebug(true),
		config.WithDBFile("/tmp/x.sqlite"),
		config.WithStorageService(config.ServiceS3),
		config.WithLocalDir("/tmp/cache"),
		config.WithLocalCache(true),
	)
	require.Equal(t, "127.0.0.1:9000", cfg.Listen)
	require.True(t, cfg.Debug)
	require.Equal(t, "/tmp/x.sqlite", cfg.DBFile)
	require.Equal(t, config.ServiceS3, cfg.Storage.Service)
	require.Equal(t, "/tmp/cache", cfg.Storage.LocalDir)
	require.True(t, cfg.Storage.LocalCache)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
listen: ":9090"
db_file: /var/lib/screen/screen.sqlite
storage:
  service: gcs
  local_dir: /var/cache/screen
  local_cache: true
  gcs:
    bucket: shots
    access_key: GOOG1EXAMPLE
    secret_key: secret
auth:
  users:
    alice@example.com: hunter2
  trusted_header: X-Forwarded-Email
`)

	cfg, err := config.LoadWithEnv(path, env(nil))
	require.NoError(t, err, "LoadWithEnv error")

	require.Equal(t, ":9090", cfg.Listen)
	require.Equal(t, "/var/lib/screen/screen.sqlite", cfg.DBFile)
	require.Equal(t, "gcs", cfg.Storage.Service)
	require.True(t, cfg.Storage.LocalCache)
	require.Equal(t, "shots", cfg.Storage.GCS.Bucket)
	require.Equal(t, "us-east-1", cfg.Storage.S3.Region, "unset keys keep their defaults")
	require.Equal(t, map[string]string{"alice@example.com": "hunter2"}, cfg.Auth.Users)
	require.Equal(t, "X-Forwarded-Email", cfg.Auth.TrustedHeader)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "storage:\n  service: local\n  local_dir: /from/file\n")

	cfg, err := config.LoadWithEnv(path, env(map[string]string{
		"SCREEN_STORAGE_SERVICE":     "S3",
		"SCREEN_S3_BUCKET":           "from-env",
		"SCREEN_S3_INSECURE":         "true",
		"SCREEN_STORAGE_LOCAL_CACHE": "1",
		"SCREEN_DEBUG":               "false",
	}))
	require.NoError(t, err, "LoadWithEnv error")

	require.Equal(t, "S3", cfg.Storage.Service)
	require.Equal(t, "/from/file", cfg.Storage.LocalDir)
	require.Equal(t, "from-env", cfg.Storage.S3.Bucket)
	require.True(t, cfg.Storage.S3.Insecure)
	require.True(t, cfg.Storage.LocalCache)
	require.False(t, cfg.Debug)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadWithEnv("", env(map[string]string{"SCREEN_LISTEN": ":1234"}))
	require.NoError(t, err)
	require.Equal(t, ":1234", cfg.Listen)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		env  map[string]string
	}{
		{name: "missing file", path: filepath.Join(t.TempDir(), "nope.yaml")},
		{name: "bad yaml", path: writeConfig(t, "storage: [not, a, map")},
		{name: "bad bool", env: map[string]string{"SCREEN_STORAGE_LOCAL_CACHE": "sometimes"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.LoadWithEnv(tc.path, env(tc.env))
			require.ErrorIs(t, err, engine.ErrConfiguration)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []config.Option
		mutate  func(*config.Config)
		wantErr bool
	}{
		{name: "local defaults"},
		{name: "lowercase service", opts: []config.Option{config.WithStorageService("local")}},
		{name: "unknown service", opts: []config.Option{config.WithStorageService("FTP")}, wantErr: true},
		{name: "empty db file", opts: []config.Option{config.WithDBFile("")}, wantErr: true},
		{name: "local without dir", opts: []config.Option{config.WithLocalDir("")}, wantErr: true},
		{name: "s3 without bucket", opts: []config.Option{config.WithStorageService(config.ServiceS3)}, wantErr: true},
		{
			name:   "s3 with bucket",
			opts:   []config.Option{config.WithStorageService(config.ServiceS3)},
			mutate: func(c *config.Config) { c.Storage.S3.Bucket = "shots" },
		},
		{
			name:    "gcs without bucket",
			opts:    []config.Option{config.WithStorageService(config.ServiceGCS)},
			wantErr: true,
		},
		{
			name: "cache without dir",
			opts: []config.Option{
				config.WithStorageService(config.ServiceS3),
				config.WithLocalCache(true),
				config.WithLocalDir(""),
			},
			mutate:  func(c *config.Config) { c.Storage.S3.Bucket = "shots" },
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.NewConfig(tc.opts...)
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}

			err := cfg.Validate()
			if tc.wantErr {
				require.ErrorIs(t, err, engine.ErrConfiguration)
				return
			}
			require.NoError(t, err)
		})
	}
}
