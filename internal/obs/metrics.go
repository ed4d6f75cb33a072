package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
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

	// AuthzDecisions counts authorization outcomes by permission and denial reason.
	AuthzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization decisions by permission, outcome and reason.",
		},
		[]string{"permission", "outcome", "reason"},
	)

	// AuthzUnknownRoles counts lookups of roles missing from the role table.
	AuthzUnknownRoles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_unknown_role_total",
		Help: "Role lookups that matched no configured role.",
	})

	// AuditWrites counts persisted audit entries.
	AuditWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_entries_written_total",
			Help: "Audit entries persisted by action and resource type.",
		},
		[]string{"action", "resource"},
	)

	// AuditEntries holds the last observed audit volume per organization.
	AuditEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audit_entries",
			Help: "Stored audit entries per organization, refreshed on a schedule.",
		},
		[]string{"organization"},
	)

	registerOnce sync.Once
)

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			AuthzDecisions, AuthzUnknownRoles, AuditWrites, AuditEntries,
		)
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses identifiers in known routes so label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "tasks" && parts[1] != "audit-log":
		return "/tasks/:id"
	case len(parts) == 2 && parts[0] == "users" && parts[1] != "profile":
		return "/users/:id"
	case len(parts) == 3 && parts[0] == "users" && parts[1] == "organization":
		return "/users/organization/:organizationId"
	case len(parts) == 3 && parts[0] == "audit-logs" && parts[1] == "users":
		return "/audit-logs/users/:userId"
	case len(parts) == 4 && parts[0] == "audit-logs" && parts[1] == "resource":
		return "/audit-logs/resource/:resource/:resourceId"
	}
	return path
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
