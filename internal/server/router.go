package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an http.Handler serving images, the JSON API and the HTML
// viewer. Everything except /metrics and /healthz requires authentication.
func (s *Server) Handler() http.Handler {
	app := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		app.Handle(pattern, instrument(pattern, h))
	}

	// Raw image bytes: {id}.png or {id}_{variant}.png
	handle("GET /i/{file}", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleImageData(ctx, w, r, r.PathValue("file"))
	})

	// JSON API
	handle("GET /api/v1/images", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleListImages(ctx, w, r)
	})
	handle("POST /api/v1/images", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleCreateImage(ctx, w, r)
	})
	handle("GET /api/v1/images/{id}", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleGetImage(ctx, w, r, r.PathValue("id"))
	})
	handle("PUT /api/v1/images/{id}", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleUpdateImage(ctx, w, r, r.PathValue("id"))
	})

	// HTML viewer
	handle("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleIndex(ctx, w, r)
	})
	handle("GET /{id}", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.handleViewer(ctx, w, r, r.PathValue("id"))
	})

	root := http.NewServeMux()
	root.Handle("GET /metrics", promhttp.Handler())
	root.Handle("GET /healthz", instrument("GET /healthz", http.HandlerFunc(s.handleHealth)))
	root.Handle("/", s.RequireAuthentication(app))

	// Add middleware
	handler := s.SlashFix(root)
	handler = s.LogRequest(handler)
	handler = s.Recoverer(handler)
	return handler
}
