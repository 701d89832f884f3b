package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"screen/pkg/imageid"
	engine "screen/pkg/storage"
)

const imageExtension = ".png"

var variantPattern = regexp.MustCompile(`^[a-zA-Z0-9-]{1,32}$`)

// LocalFileStorage is a StorageEngine implementation that stores screenshots
// on the local filesystem rooted at dataDir. Files are sharded two levels
// deep: first by characters taken from the timestamp half of the identifier,
// then by the leading (random) character, so that no single directory grows
// without bound.
//
// LocalFileStorage has no knowledge of whether it is the primary engine or a
// cache in front of a remote one.
type LocalFileStorage struct {
	dataDir string
}

var _ engine.StorageEngine = (*LocalFileStorage)(nil)

// NewLocalFileStorage creates a new LocalFileStorage rooted at dataDir,
// creating the directory if needed.
func NewLocalFileStorage(dataDir string) (*LocalFileStorage, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("%w: local data directory must not be empty", engine.ErrConfiguration)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %w", engine.ErrStorageFault, err)
	}

	return &LocalFileStorage{dataDir: dataDir}, nil
}

// DataDir returns the root directory of the store.
func (s *LocalFileStorage) DataDir() string {
	return s.dataDir
}

// ValidateKey checks that id is a well formed identifier and that variant,
// when set, is safe to embed in a file name.
func ValidateKey(id string, variant string) error {
	if !imageid.Valid(id) {
		return fmt.Errorf("%w: image id %q", engine.ErrInvalidKey, id)
	}
	if variant != "" && !variantPattern.MatchString(variant) {
		return fmt.Errorf("%w: variant %q", engine.ErrInvalidKey, variant)
	}
	return nil
}

// ObjectName returns the flat file name for (id, variant), which is also the
// object key used by remote engines.
func ObjectName(id string, variant string) string {
	if variant != "" {
		return id + "_" + variant + imageExtension
	}
	return id + imageExtension
}

// ObjectPath computes the full filesystem path for (id, variant) under
// directory. It never touches the filesystem.
//
// The first shard is id[7:9]: the timestamp bytes encoded there change about
// once every six days, so images created together land together. The second
// shard is the leading character, which is random.
func ObjectPath(directory string, id string, variant string) (string, error) {
	if err := ValidateKey(id, variant); err != nil {
		return "", err
	}

	timeShard := id[len(id)-6 : len(id)-4]
	randShard := id[:1]
	return filepath.Join(directory, timeShard, randShard, ObjectName(id, variant)), nil
}

// PutImage writes r to the sharded path for (id, variant), replacing any
// existing file.
func (s *LocalFileStorage) PutImage(ctx context.Context, id string, variant string, r io.Reader) error {
	objPath, err := ObjectPath(s.dataDir, id, variant)
	if err != nil {
		return err
	}

	if err := WriteFile(objPath, r); err != nil {
		return fmt.Errorf("%w: write %s: %w", engine.ErrStorageFault, objPath, err)
	}

	return nil
}

// GetImage opens the file stored for (id, variant).
func (s *LocalFileStorage) GetImage(ctx context.Context, id string, variant string) (io.ReadCloser, error) {
	objPath, err := ObjectPath(s.dataDir, id, variant)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(objPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", engine.ErrNotFound, ObjectName(id, variant))
		}
		return nil, fmt.Errorf("%w: open %s: %w", engine.ErrStorageFault, objPath, err)
	}

	return f, nil
}
