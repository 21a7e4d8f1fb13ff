package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"learnhub.org/internal/auth"
	"learnhub.org/internal/content"
	"learnhub.org/internal/entitlement"
	"learnhub.org/internal/forum"
	"learnhub.org/internal/obs"
	"learnhub.org/internal/progress"
	"learnhub.org/internal/session"
	"learnhub.org/internal/stream"
)

// ReadyProbe checks downstream readiness (for example a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps bundles the stores the API serves.
type Deps struct {
	Users     auth.UserStore
	Registrar *auth.Registrar
	Ledger    entitlement.Ledger
	Catalog   content.Catalog
	Records   progress.Store
	Forum     forum.Store
	Stream    *stream.Stream

	// Zero values fall back to the built-in rate limit defaults.
	RateBurst  int
	RatePerSec int
}

// API is the HTTP layer of the learning platform backend.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	users     auth.UserStore
	registrar *auth.Registrar
	ledger    entitlement.Ledger
	catalog   content.Catalog
	records   progress.Store
	forum     forum.Store
	stream    *stream.Stream

	rateBurst  int
	ratePerSec int
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		users:      deps.Users,
		registrar:  deps.Registrar,
		ledger:     deps.Ledger,
		catalog:    deps.Catalog,
		records:    deps.Records,
		forum:      deps.Forum,
		stream:     deps.Stream,
		rateBurst:  20,
		ratePerSec: 10,
	}
	if deps.RateBurst > 0 {
		a.rateBurst = deps.RateBurst
	}
	if deps.RatePerSec > 0 {
		a.ratePerSec = deps.RatePerSec
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)

	a.mux.HandleFunc("/v1/courses/", a.handleCourseResource)
	a.mux.HandleFunc("/v1/purchases", a.handlePurchases)
	a.mux.HandleFunc("/v1/entitlements", a.handleEntitlements)
	a.mux.HandleFunc("/v1/lessons/", a.handleLessonResource)
	a.mux.HandleFunc("/v1/threads/", a.handleThreadResource)

	a.mux.HandleFunc("/v1/stream", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	h = Logging(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "learnhub-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "learnhub-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// identityFromRequest resolves the authenticated caller, if any. Handlers
// behind withAuth always see a non-zero identity; public handlers may get
// the zero value for anonymous visitors.
func (a *API) identityFromRequest(r *http.Request) session.Identity {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok || userID == "" {
		return session.Identity{}
	}
	user, err := a.users.FindUser(r.Context(), userID)
	if err != nil {
		return session.Identity{}
	}
	return user.Identity()
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
