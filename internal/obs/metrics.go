package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	lessonCompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lesson_completions_total",
			Help: "Lesson completion flag changes accepted by the API.",
		},
		[]string{"op"},
	)

	purchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "course_purchases_total",
			Help: "Course purchase attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		lessonCompletionsTotal,
		purchasesTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountCompletion records a completion flag change ("complete" or "uncomplete").
func CountCompletion(op string) {
	lessonCompletionsTotal.WithLabelValues(op).Inc()
}

// CountPurchase records a purchase outcome ("created", "already_owned", "rejected").
func CountPurchase(outcome string) {
	purchasesTotal.WithLabelValues(outcome).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	canon := func(prefix, suffix string) (string, bool) {
		// /v1/<prefix>/<id>[/<suffix>]
		if len(parts) < 3 || parts[0] != "v1" || parts[1] != prefix {
			return "", false
		}
		switch {
		case len(parts) == 3 && suffix == "":
			return "/v1/" + prefix + "/:id", true
		case len(parts) == 4 && parts[3] == suffix && suffix != "":
			return "/v1/" + prefix + "/:id/" + suffix, true
		}
		return "", false
	}
	for _, rule := range []struct{ prefix, suffix string }{
		{"courses", "content"},
		{"lessons", "complete"},
		{"lessons", "uncomplete"},
		{"lessons", "threads"},
		{"threads", "messages"},
		{"threads", ""},
	} {
		if p, ok := canon(rule.prefix, rule.suffix); ok {
			return p
		}
	}
	return path
}

// statusWriter captures the response code written by downstream handlers.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
