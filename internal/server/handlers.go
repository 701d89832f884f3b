package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"screen/internal/auth"
	"screen/internal/records"
	"screen/internal/ui"
	"screen/pkg/imageid"
	engine "screen/pkg/storage"
)

const (
	maxListLimit = 100

	// multipartMemory is how much of an upload is buffered in memory before
	// spilling to a temp file.
	multipartMemory = 8 << 20
)

// parseImageFile splits "{id}.png" or "{id}_{variant}.png".
func parseImageFile(file string) (id string, variant string, ok bool) {
	name, found := strings.CutSuffix(file, ".png")
	if !found {
		return "", "", false
	}

	id, variant, hasVariant := strings.Cut(name, "_")
	if !imageid.Valid(id) || (hasVariant && variant == "") {
		return "", "", false
	}
	return id, variant, true
}

func (s *Server) handleImageData(ctx context.Context, w http.ResponseWriter, r *http.Request, file string) {
	id, variant, ok := parseImageFile(file)
	if !ok {
		http.Error(w, "Screenshot Not Found", http.StatusNotFound)
		return
	}

	if _, err := s.Config.Records.Get(ctx, id); err != nil {
		if errors.Is(err, records.ErrNotFound) {
			http.Error(w, "Screenshot Not Found", http.StatusNotFound)
			return
		}
		slog.Error("Error loading image record", "id", id, "err", err)
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}

	rc, err := s.Config.Engine.GetImage(ctx, id, variant)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrNotFound), errors.Is(err, engine.ErrInvalidKey):
			http.Error(w, "Screenshot Not Found", http.StatusNotFound)
		default:
			slog.Error("Error reading image", "id", id, "variant", variant, "err", err)
			http.Error(w, "Internal Error", http.StatusInternalServerError)
		}
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("Error streaming image", "id", id, "variant", variant, "err", err)
	}
}

func (s *Server) handleGetImage(ctx context.Context, w http.ResponseWriter, r *http.Request, id string) {
	if !imageid.Valid(id) {
		writeJSONError(w, http.StatusNotFound, "image not found")
		return
	}

	img, err := s.Config.Records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "image not found")
			return
		}
		slog.Error("Error loading image record", "id", id, "err", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, img)
}

func (s *Server) handleListImages(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(ctx)

	limit := records.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	images, err := s.Config.Records.ListByUser(ctx, user.ID, limit)
	if err != nil {
		slog.Error("Error listing images", "user", user.ID, "err", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, images)
}

func (s *Server) handleCreateImage(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(ctx)

	if r.ContentLength > s.Config.MaxUploadBytes {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.Config.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "expected a multipart form")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, _, err := r.FormFile("img")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "missing img file")
		return
	}
	defer file.Close()

	body := bufio.NewReaderSize(file, 512)
	head, _ := body.Peek(512)
	if http.DetectContentType(head) != "image/png" {
		writeJSONError(w, http.StatusUnsupportedMediaType, "img must be a PNG")
		return
	}

	img, err := s.insertRecord(ctx, user.ID, r.FormValue("source_url"))
	if err != nil {
		slog.Error("Error creating image record", "user", user.ID, "err", err)
		writeInternalError(w)
		return
	}

	// The record and the bytes are not written atomically; a failure here
	// leaves a record whose image reads as not found.
	if err := s.Config.Engine.PutImage(ctx, img.ID, "", body); err != nil {
		slog.Error("Error storing image", "id", img.ID, "err", err)
		writeInternalError(w)
		return
	}

	imagesUploaded.Inc()
	slog.Info("Stored image", "id", img.ID, "user", user.ID)

	w.Header().Set("Location", "/api/v1/images/"+img.ID)
	writeJSON(w, http.StatusCreated, img)
}

// insertRecord mints an id and inserts a record for it, minting again when
// the id is already taken.
func (s *Server) insertRecord(ctx context.Context, userID string, sourceURL string) (*records.Image, error) {
	var err error
	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		img := &records.Image{
			ID:        s.Config.Generator.Generate(),
			SourceURL: sourceURL,
			UserID:    userID,
		}

		err = s.Config.Records.Insert(ctx, img)
		if err == nil {
			return img, nil
		}
		if !errors.Is(err, records.ErrDuplicateID) {
			return nil, err
		}

		idCollisions.Inc()
		slog.Warn("Image id collision", "id", img.ID, "attempt", attempt)
	}
	return nil, err
}

type updateRequest struct {
	ID          string          `json:"image_id"`
	Annotations json.RawMessage `json:"annotations"`
}

func (s *Server) handleUpdateImage(ctx context.Context, w http.ResponseWriter, r *http.Request, id string) {
	user := auth.UserFromContext(ctx)

	if !imageid.Valid(id) {
		writeJSONError(w, http.StatusNotFound, "image not found")
		return
	}

	var req updateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ID != id {
		writeJSONError(w, http.StatusBadRequest, "image_id does not match the URL")
		return
	}
	// An explicit null or [] clears the annotations; leaving the field out
	// is not taken as a request to clear them.
	if req.Annotations == nil {
		writeJSONError(w, http.StatusBadRequest, "annotations is required")
		return
	}

	existing, err := s.Config.Records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "image not found")
			return
		}
		slog.Error("Error loading image record", "id", id, "err", err)
		writeInternalError(w)
		return
	}
	if existing.UserID != user.ID {
		writeJSONError(w, http.StatusForbidden, "only the owner may update an image")
		return
	}

	n, err := s.Config.Records.Update(ctx, &records.Image{ID: id, Annotations: req.Annotations}, user.ID)
	if err != nil {
		slog.Error("Error updating image record", "id", id, "err", err)
		writeInternalError(w)
		return
	}
	if n == 0 {
		writeJSONError(w, http.StatusNotFound, "image not found")
		return
	}

	updated, err := s.Config.Records.Get(ctx, id)
	if err != nil {
		slog.Error("Error reloading image record", "id", id, "err", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func toUIImage(img *records.Image) ui.Image {
	return ui.Image{
		ID:          img.ID,
		SourceURL:   img.SourceURL,
		Owner:       img.UserID,
		Created:     time.Unix(img.Created, 0).UTC().Format(time.RFC3339),
		Annotations: string(img.Annotations),
	}
}

func (s *Server) handleIndex(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(ctx)

	images, err := s.Config.Records.ListByUser(ctx, user.ID, records.DefaultListLimit)
	if err != nil {
		slog.Error("Error listing images", "user", user.ID, "err", err)
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}

	uiImages := make([]ui.Image, 0, len(images))
	for _, img := range images {
		uiImages = append(uiImages, toUIImage(img))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := ui.IndexPage(user.ID, uiImages).Render(ctx, w); err != nil {
		slog.Error("Error rendering index page", "err", err)
	}
}

func (s *Server) handleViewer(ctx context.Context, w http.ResponseWriter, r *http.Request, id string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	notFound := func() {
		w.WriteHeader(http.StatusNotFound)
		if err := ui.NotFoundPage(id).Render(ctx, w); err != nil {
			slog.Error("Error rendering not found page", "err", err)
		}
	}

	if !imageid.Valid(id) {
		notFound()
		return
	}

	img, err := s.Config.Records.Get(ctx, id)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			notFound()
			return
		}
		slog.Error("Error loading image record", "id", id, "err", err)
		http.Error(w, "Internal Error", http.StatusInternalServerError)
		return
	}

	if err := ui.ViewerPage(toUIImage(img)).Render(ctx, w); err != nil {
		slog.Error("Error rendering viewer page", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.Config.Records.Ping(r.Context()); err != nil {
		slog.Error("Health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
