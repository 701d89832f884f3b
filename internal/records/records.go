// Package records persists screenshot metadata in SQLite. The image bytes
// themselves live in a storage engine; a record must exist before its image
// is served.
package records

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	//go:embed migrations
	migrationsFS embed.FS

	ErrNotFound    = errors.New("record not found")
	ErrDuplicateID = errors.New("duplicate image id")
)

const (
	StatusPublic = "PUBLIC"

	DefaultListLimit = 20
)

// Image is the metadata row for one screenshot.
type Image struct {
	ID          string          `json:"image_id"`
	SourceURL   string          `json:"source_url,omitempty"`
	UserID      string          `json:"user_id"`
	Metadata    string          `json:"metadata"`
	Annotations json.RawMessage `json:"annotations"`
	Status      string          `json:"status"`
	Created     int64           `json:"created"`
	Updated     int64           `json:"updated"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

type Option func(*Store)

// WithClock sets the time source used for created and updated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// InitSchema applies every SQL file in the embedded migrations directory in
// lexicographical order. Migrations are idempotent.
func InitSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		slog.Debug("Running migration", "path", path)
		if _, execError := db.ExecContext(ctx, string(content)); execError != nil {
			return fmt.Errorf("migration %s: %w", path, execError)
		}
		return nil
	})
}

// Open opens (creating if needed) the SQLite database at path and brings its
// schema up to date.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path must not be empty")
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := InitSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Insert stores a new record. Created and Updated are set to the current
// time and an empty Status becomes PUBLIC. A clash on image_id returns
// ErrDuplicateID.
func (s *Store) Insert(ctx context.Context, img *Image) error {
	now := s.now().Unix()
	img.Created = now
	img.Updated = now
	if img.Status == "" {
		img.Status = StatusPublic
	}
	img.Annotations = normalizeAnnotations(img.Annotations)
	if !json.Valid(img.Annotations) {
		return errors.New("annotations must be valid JSON")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO images (image_id, source_url, user_id, metadata, annotations, status, created, updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ID, nullString(img.SourceURL), img.UserID, img.Metadata, string(img.Annotations), img.Status, img.Created, img.Updated,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && (sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, img.ID)
		}
		return fmt.Errorf("insert image %s: %w", img.ID, err)
	}

	return nil
}

// Get returns the record for id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Image, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT image_id, source_url, user_id, metadata, annotations, status, created, updated
		 FROM images WHERE image_id = ?`, id)

	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get image %s: %w", id, err)
	}
	return img, nil
}

// ListByUser returns the user's most recent records, newest first. A
// non-positive limit uses DefaultListLimit.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*Image, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT image_id, source_url, user_id, metadata, annotations, status, created, updated
		 FROM images WHERE user_id = ?
		 ORDER BY created DESC, image_id
		 LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list images for %s: %w", userID, err)
	}
	defer rows.Close()

	images := []*Image{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list images for %s: %w", userID, err)
	}

	return images, nil
}

// Update replaces the annotations of img.ID and bumps its updated time, but
// only when the record belongs to owner. It returns the number of rows
// changed, so zero means either no such image or a different owner.
func (s *Store) Update(ctx context.Context, img *Image, owner string) (int64, error) {
	annotations := normalizeAnnotations(img.Annotations)
	if !json.Valid(annotations) {
		return 0, errors.New("annotations must be valid JSON")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE images SET annotations = ?, updated = ?
		 WHERE image_id = ? AND user_id = ?`,
		string(annotations), s.now().Unix(), img.ID, owner,
	)
	if err != nil {
		return 0, fmt.Errorf("update image %s: %w", img.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update image %s: %w", img.ID, err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanImage(row scanner) (*Image, error) {
	var (
		img         Image
		sourceURL   sql.NullString
		annotations string
	)
	if err := row.Scan(&img.ID, &sourceURL, &img.UserID, &img.Metadata, &annotations, &img.Status, &img.Created, &img.Updated); err != nil {
		return nil, err
	}
	img.SourceURL = sourceURL.String
	img.Annotations = normalizeAnnotations(json.RawMessage(annotations))
	return &img, nil
}

func normalizeAnnotations(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("[]")
	}
	return trimmed
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
