package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// WriteFile writes the contents of r to destPath, creating any missing parent
// directories. The data is written to a temporary file in the destination
// directory and renamed into place, so concurrent readers observe either the
// previous file or the complete new one.
func WriteFile(destPath string, r io.Reader) error {
	// MkdirAll succeeds if another writer created the directory first.
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}

	return atomic.WriteFile(destPath, r)
}
