package records_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"screen/internal/records"
	"screen/pkg/imageid"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func newStore(t *testing.T) (*records.Store, *clock) {
	t.Helper()

	c := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	s, err := records.Open(t.Context(), filepath.Join(t.TempDir(), "screen.sqlite"), records.WithClock(c.now))
	require.NoError(t, err, "Open error")
	t.Cleanup(func() { _ = s.Close() })
	return s, c
}

func TestInsertAndGet(t *testing.T) {
	t.Parallel()

	s, c := newStore(t)
	img := &records.Image{
		ID:        imageid.Generate(),
		SourceURL: "https://example.com/page",
		UserID:    "alice@example.com",
	}
	require.NoError(t, s.Insert(t.Context(), img), "Insert error")
	require.Equal(t, c.t.Unix(), img.Created, "created stamped")
	require.Equal(t, img.Created, img.Updated, "updated starts equal to created")
	require.Equal(t, records.StatusPublic, img.Status)

	got, err := s.Get(t.Context(), img.ID)
	require.NoError(t, err, "Get error")
	require.Equal(t, img.ID, got.ID)
	require.Equal(t, "https://example.com/page", got.SourceURL)
	require.Equal(t, "alice@example.com", got.UserID)
	require.Equal(t, records.StatusPublic, got.Status)
	require.JSONEq(t, `[]`, string(got.Annotations))
	require.Equal(t, c.t.Unix(), got.Created)
}

func TestInsertWithoutSourceURL(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	img := &records.Image{ID: imageid.Generate(), UserID: "bob"}
	require.NoError(t, s.Insert(t.Context(), img))

	got, err := s.Get(t.Context(), img.ID)
	require.NoError(t, err)
	require.Empty(t, got.SourceURL)

	data, err := json.Marshal(got)
	require.NoError(t, err)
	require.NotContains(t, string(data), "source_url")
}

func TestInsertDuplicateID(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	id := imageid.Generate()

	require.NoError(t, s.Insert(t.Context(), &records.Image{ID: id, UserID: "a"}))
	err := s.Insert(t.Context(), &records.Image{ID: id, UserID: "b"})
	require.ErrorIs(t, err, records.ErrDuplicateID)

	got, err := s.Get(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, "a", got.UserID, "first insert wins")
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	img, err := s.Get(t.Context(), imageid.Generate())
	require.ErrorIs(t, err, records.ErrNotFound)
	require.Nil(t, img)
}

func TestListByUser(t *testing.T) {
	t.Parallel()

	s, c := newStore(t)

	var ids []string
	for i := range 5 {
		c.t = c.t.Add(time.Minute)
		img := &records.Image{ID: imageid.Generate(), UserID: "alice"}
		require.NoErrorf(t, s.Insert(t.Context(), img), "insert %d", i)
		ids = append(ids, img.ID)
	}
	require.NoError(t, s.Insert(t.Context(), &records.Image{ID: imageid.Generate(), UserID: "mallory"}))

	all, err := s.ListByUser(t.Context(), "alice", 0)
	require.NoError(t, err)
	require.Len(t, all, 5, "only alice's images")
	require.Equal(t, ids[4], all[0].ID, "newest first")
	require.Equal(t, ids[0], all[4].ID, "oldest last")

	limited, err := s.ListByUser(t.Context(), "alice", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	require.Equal(t, ids[4], limited[0].ID)
	require.Equal(t, ids[3], limited[1].ID)

	none, err := s.ListByUser(t.Context(), "nobody", 10)
	require.NoError(t, err)
	require.NotNil(t, none, "empty result is an empty slice")
	require.Empty(t, none)
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	s, c := newStore(t)
	img := &records.Image{ID: imageid.Generate(), UserID: "alice"}
	require.NoError(t, s.Insert(t.Context(), img))
	created := img.Created

	c.t = c.t.Add(time.Hour)
	annotations := json.RawMessage(`[["rect",{"x":1,"y":2,"w":30,"h":40}]]`)

	n, err := s.Update(t.Context(), &records.Image{ID: img.ID, Annotations: annotations}, "mallory")
	require.NoError(t, err)
	require.Zero(t, n, "other users cannot update")

	got, err := s.Get(t.Context(), img.ID)
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(got.Annotations), "unchanged after rejected update")

	n, err = s.Update(t.Context(), &records.Image{ID: img.ID, Annotations: annotations}, "alice")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err = s.Get(t.Context(), img.ID)
	require.NoError(t, err)
	require.JSONEq(t, string(annotations), string(got.Annotations))
	require.Equal(t, created, got.Created, "created is immutable")
	require.Equal(t, c.t.Unix(), got.Updated, "updated bumped")

	n, err = s.Update(t.Context(), &records.Image{ID: imageid.Generate(), Annotations: annotations}, "alice")
	require.NoError(t, err)
	require.Zero(t, n, "unknown image")

	_, err = s.Update(t.Context(), &records.Image{ID: img.ID, Annotations: json.RawMessage(`[oops`)}, "alice")
	require.Error(t, err, "invalid JSON is rejected")
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "screen.sqlite")
	s, err := records.Open(t.Context(), path)
	require.NoError(t, err)
	id := imageid.Generate()
	require.NoError(t, s.Insert(t.Context(), &records.Image{ID: id, UserID: "a"}))
	require.NoError(t, s.Close())

	s, err = records.Open(t.Context(), path)
	require.NoError(t, err, "reopening applies migrations again")
	defer s.Close()

	require.NoError(t, s.Ping(t.Context()))
	_, err = s.Get(t.Context(), id)
	require.NoError(t, err, "data survives reopen")
}

func TestOpenEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := records.Open(t.Context(), "")
	require.Error(t, err)
}
