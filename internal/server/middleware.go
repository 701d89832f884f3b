package server

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"screen/internal/auth"
)

// ResponseWriterWrapper records the status code and body size written
// through it.
type ResponseWriterWrapper struct {
	http.ResponseWriter
	WrittenResponseCode int
	BytesWritten        int64
}

func (w *ResponseWriterWrapper) WriteHeader(statusCode int) {
	if w.WrittenResponseCode == 0 {
		w.WrittenResponseCode = statusCode
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *ResponseWriterWrapper) Write(b []byte) (int, error) {
	if w.WrittenResponseCode == 0 {
		w.WrittenResponseCode = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.BytesWritten += int64(n)
	return n, err
}

func (w *ResponseWriterWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// requestInfo is filled in by handlers further down the chain so that the
// access log can report who was served and by which route.
type requestInfo struct {
	UserID string
	Route  string
}

type requestInfoKey struct{}

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func requestInfoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

type LogEntry struct {
	IP         string
	UserID     string
	Method     string
	URL        string
	Route      string
	DurationMS float64
	StatusCode int
	Bytes      int64
}

func (e LogEntry) User() slog.Attr {
	if e.UserID == "" {
		return slog.Group("user", "ip", e.IP)
	}
	return slog.Group("user", "ip", e.IP, "id", e.UserID)
}

func (e LogEntry) Request() slog.Attr {
	return slog.Group("request",
		"method", e.Method,
		"url", e.URL,
		"route", e.Route,
		"duration_ms", e.DurationMS,
		"status_code", e.StatusCode,
		"bytes", e.Bytes,
	)
}

// LogRequest writes one access log line per request, including the
// authenticated user and the matched route when there is one.
func (s *Server) LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &requestInfo{}
		writer := ResponseWriterWrapper{ResponseWriter: w}

		start := time.Now()
		next.ServeHTTP(&writer, r.WithContext(withRequestInfo(r.Context(), info)))
		elapsed := time.Since(start)

		entry := LogEntry{
			IP:         r.RemoteAddr,
			UserID:     info.UserID,
			Method:     r.Method,
			URL:        r.URL.String(),
			Route:      info.Route,
			DurationMS: float64(elapsed.Nanoseconds()) / float64(time.Millisecond),
			StatusCode: writer.WrittenResponseCode,
			Bytes:      writer.BytesWritten,
		}

		level := slog.LevelInfo
		switch {
		case entry.StatusCode >= 500:
			level = slog.LevelError
		case entry.StatusCode >= 400:
			level = slog.LevelWarn
		}
		s.Config.Logger.LogAttrs(r.Context(), level, "Request", entry.User(), entry.Request())
	})
}

// RequireAuthentication rejects requests the configured AuthEngine does not
// accept and stores the authenticated user in the request context.
func (s *Server) RequireAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		user, err := s.Config.Authenticator.AuthenticateRequest(ctx, r)
		if err != nil {
			slog.Warn("Authentication error", "path", r.URL.Path, "err", err)
		}
		if user == nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="screen"`)
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		if info := requestInfoFrom(ctx); info != nil {
			info.UserID = user.ID
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(ctx, user)))
	})
}

// SlashFix collapses doubled slashes and drops a trailing slash, so
// "/api/v1/images/" routes like "/api/v1/images".
func (s *Server) SlashFix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for strings.Contains(r.URL.Path, "//") {
			r.URL.Path = strings.ReplaceAll(r.URL.Path, "//", "/")
		}
		if r.URL.Path != "/" {
			r.URL.Path = strings.TrimSuffix(r.URL.Path, "/")
		}

		next.ServeHTTP(w, r)
	})
}

// Recoverer turns a panicking handler into a 500 JSON error.
func (s *Server) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			s.Config.Logger.Error("Panic in HTTP handler",
				"method", r.Method,
				"path", r.URL.Path,
				"panic", rvr,
				"stack", string(debug.Stack()),
			)
			writeInternalError(w)
		}()

		next.ServeHTTP(w, r)
	})
}
