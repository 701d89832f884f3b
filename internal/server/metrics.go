package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "screen",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern, method and status code.",
		},
		[]string{"route", "method", "code"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "screen",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"route", "method"},
	)

	imagesUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "screen",
		Name:      "images_uploaded_total",
		Help:      "Screenshots accepted through the upload API.",
	})

	idCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "screen",
		Name:      "image_id_collisions_total",
		Help:      "Freshly minted image ids that clashed with an existing record.",
	})
)

// instrument records request counts and latency under the route pattern
// rather than the raw path, keeping label cardinality bounded. The pattern
// is also handed to the access log.
func instrument(pattern string, next http.Handler) http.Handler {
	labels := prometheus.Labels{"route": pattern}
	h := promhttp.InstrumentHandlerCounter(httpRequests.MustCurryWith(labels), next)
	h = promhttp.InstrumentHandlerDuration(httpDuration.MustCurryWith(labels), h)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if info := requestInfoFrom(r.Context()); info != nil {
			info.Route = pattern
		}
		h.ServeHTTP(w, r)
	})
}
