package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"tasktrail.io/internal/audit"
	"tasktrail.io/internal/auth"
	"tasktrail.io/internal/obs"
	"tasktrail.io/internal/task"
)

const serviceName = "tasktrail-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe reports readiness by pinging the database, when there is one.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP surface of the service.
type API struct {
	router   *mux.Router
	ready    readinessChecker
	version  string
	auth     *auth.Service
	engine   *auth.Engine
	tasks    *task.Service
	recorder *audit.Recorder
	feed     *audit.Feed
	limiter  Limiter
	proxies  TrustedProxies
	maxBody  int64
}

// Option configures API.
type Option func(*API)

// WithVersion sets the version reported by /healthz and /info.
func WithVersion(v string) Option {
	return func(a *API) { a.version = v }
}

// WithReadiness replaces the readiness check behind /readyz.
func WithReadiness(r readinessChecker) Option {
	return func(a *API) {
		if r != nil {
			a.ready = r
		}
	}
}

// WithFeed enables the live audit stream.
func WithFeed(f *audit.Feed) Option {
	return func(a *API) { a.feed = f }
}

// WithLimiter replaces the default in-process rate limiter.
func WithLimiter(l Limiter) Option {
	return func(a *API) {
		if l != nil {
			a.limiter = l
		}
	}
}

// WithTrustedProxies lets the listed proxies report client addresses.
func WithTrustedProxies(tp TrustedProxies) Option {
	return func(a *API) { a.proxies = tp }
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// New builds the API and registers its routes.
func New(authSvc *auth.Service, engine *auth.Engine, tasks *task.Service, recorder *audit.Recorder, opts ...Option) *API {
	a := &API{
		router:   mux.NewRouter(),
		ready:    ReadyProbe{},
		version:  "dev",
		auth:     authSvc,
		engine:   engine,
		tasks:    tasks,
		recorder: recorder,
		limiter:  NewLocalLimiter(20, 10),
		maxBody:  1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "Cannot "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.HandleFunc("/info", a.Info).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/auth/login", a.handleLogin).Methods(http.MethodPost)

	p := r.NewRoute().Subrouter()
	p.Use(a.withAuth)

	p.HandleFunc("/auth/profile", a.handleAuthProfile).Methods(http.MethodGet)
	p.HandleFunc("/auth/validate", a.handleValidate).Methods(http.MethodGet)

	p.HandleFunc("/users/profile", a.handleUserProfile).Methods(http.MethodGet)
	p.HandleFunc("/users/organization/{organizationId}", a.handleOrganizationUsers).Methods(http.MethodGet)
	p.HandleFunc("/users/{id}", a.handleGetUser).Methods(http.MethodGet)

	p.HandleFunc("/tasks", a.handleCreateTask).Methods(http.MethodPost)
	p.HandleFunc("/tasks", a.handleListTasks).Methods(http.MethodGet)
	p.HandleFunc("/tasks/audit-log", a.handleTaskAuditLog).Methods(http.MethodGet)
	p.HandleFunc("/tasks/{id}", a.handleGetTask).Methods(http.MethodGet)
	p.HandleFunc("/tasks/{id}", a.handleUpdateTask).Methods(http.MethodPut)
	p.HandleFunc("/tasks/{id}", a.handleDeleteTask).Methods(http.MethodDelete)

	p.HandleFunc("/audit-logs", a.handleAuditLogs).Methods(http.MethodGet)
	p.HandleFunc("/audit-logs/stream", a.Stream).Methods(http.MethodGet)
	p.HandleFunc("/audit-logs/resource/{resource}/{resourceId}", a.handleResourceHistory).Methods(http.MethodGet)
	p.HandleFunc("/audit-logs/users/{userId}", a.handleUserHistory).Methods(http.MethodGet)
}

// Handler returns the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.limiter, a.proxies)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
