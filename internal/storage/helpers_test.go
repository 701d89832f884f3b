package storage_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"screen/pkg/imageid"
	engine "screen/pkg/storage"

	"github.com/stretchr/testify/require"
)

// memoryObjectStore is an in-memory ObjectStore that can be switched into a
// failing mode to simulate an unreachable remote.
type memoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
	puts    int
	failing bool
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: make(map[string][]byte)}
}

func (m *memoryObjectStore) PutObject(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.puts++
	if m.failing {
		return fmt.Errorf("%w: remote unreachable", engine.ErrStorageFault)
	}
	m.objects[key] = bytes.Clone(data)
	return nil
}

func (m *memoryObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gets++
	if m.failing {
		return nil, fmt.Errorf("%w: remote unreachable", engine.ErrStorageFault)
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrNotFound, key)
	}
	return bytes.Clone(data), nil
}

func (m *memoryObjectStore) setFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

func (m *memoryObjectStore) counts() (gets int, puts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets, m.puts
}

// brokenEngine fails every call with a non-NotFound error.
type brokenEngine struct{}

var errBroken = errors.New("disk on fire")

func (brokenEngine) PutImage(ctx context.Context, id string, variant string, r io.Reader) error {
	return errBroken
}

func (brokenEngine) GetImage(ctx context.Context, id string, variant string) (io.ReadCloser, error) {
	return nil, errBroken
}

// readAll reads and closes the image stored under (id, variant).
func readAll(t *testing.T, e engine.StorageEngine, id string, variant string) []byte {
	t.Helper()

	rc, err := e.GetImage(t.Context(), id, variant)
	require.NoError(t, err, "GetImage error")
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err, "reading image")
	return data
}

// fixedGenerator mints identifiers that all carry the same timestamp.
func fixedGenerator() *imageid.Generator {
	now := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	return &imageid.Generator{Now: func() time.Time { return now }}
}

// gatedObjectStore holds every GetObject until release is closed or the
// call's context ends. Each call announces itself on started.
type gatedObjectStore struct {
	*memoryObjectStore
	started chan struct{}
	release chan struct{}
}

func newGatedObjectStore(buffer int) *gatedObjectStore {
	return &gatedObjectStore{
		memoryObjectStore: newMemoryObjectStore(),
		started:           make(chan struct{}, buffer),
		release:           make(chan struct{}),
	}
}

func (g *gatedObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.memoryObjectStore.GetObject(ctx, key)
}

// signalingEngine reports each finished GetImage on lookups.
type signalingEngine struct {
	engine.StorageEngine
	lookups chan struct{}
}

func (s *signalingEngine) GetImage(ctx context.Context, id string, variant string) (io.ReadCloser, error) {
	rc, err := s.StorageEngine.GetImage(ctx, id, variant)
	s.lookups <- struct{}{}
	return rc, err
}

// waitFor receives n values from ch or fails the test.
func waitFor(t *testing.T, ch <-chan struct{}, n int, what string) {
	t.Helper()

	for i := range n {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s (%d of %d)", what, i, n)
		}
	}
}
