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

	"lojinha.app/internal/audit"
	"lojinha.app/internal/identity"
	"lojinha.app/internal/obs"
	"lojinha.app/internal/stream"
	"lojinha.app/internal/tenant"
)

// ReadyProbe reports whether the service can serve traffic (DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the tenant service.
type API struct {
	mux        *http.ServeMux
	tenants    *tenant.Service
	dir        identity.Directory
	events     *stream.Stream
	readyProbe ReadyProbe
	version    string

	rateBurst  int
	ratePerSec int
}

// Option configures optional API collaborators.
type Option func(*API)

// WithDirectory wires the external identity directory for the resolve endpoint.
func WithDirectory(dir identity.Directory) Option {
	return func(a *API) { a.dir = dir }
}

// WithStream enables SSE store-activity events.
func WithStream(s *stream.Stream) Option {
	return func(a *API) { a.events = s }
}

func New(tenants *tenant.Service, rp ReadyProbe, version string, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		tenants:    tenants,
		readyProbe: rp,
		version:    version,
		rateBurst:  20,
		ratePerSec: 10,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// stores and memberships
	a.mux.HandleFunc("/v1/stores", a.handleStores)
	a.mux.HandleFunc("/v1/stores/", a.handleStoreScoped)

	// invite redemption is store-agnostic: the code carries the store
	a.mux.HandleFunc("/v1/invites/redeem", a.handleRedeem)

	// employee offboarding and identity lookups
	a.mux.HandleFunc("/v1/employees/", a.handleEmployeeResource)
	a.mux.HandleFunc("/v1/principals/resolve", a.handlePrincipalsResolve)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "lojinha-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "lojinha-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// audit records an API-level event; failures are non-fatal.
func (a *API) audit(ctx context.Context, event, entity, entityID string, meta map[string]string) {
	fields := map[string]any{
		"entity":    entity,
		"entity_id": entityID,
	}
	for k, v := range meta {
		fields[k] = v
	}
	_ = audit.LogEvent(ctx, event, fields)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorKind(w, r, code, "", msg)
}

// writeErrorKind emits the error envelope. kind is a stable machine-readable
// discriminator for cases that share a status code (already_used vs expired).
func writeErrorKind(w http.ResponseWriter, r *http.Request, code int, kind, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if kind != "" {
		payload["kind"] = kind
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
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

func handleTenantError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenant.ErrInvalidInput):
		writeErrorKind(w, r, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, tenant.ErrAlreadyUsed):
		writeErrorKind(w, r, http.StatusBadRequest, "already_used", "access code was already used")
	case errors.Is(err, tenant.ErrExpired):
		writeErrorKind(w, r, http.StatusBadRequest, "expired", "access code has expired")
	case errors.Is(err, tenant.ErrForbidden):
		writeErrorKind(w, r, http.StatusForbidden, "forbidden", "insufficient role for this store")
	case errors.Is(err, tenant.ErrNotFound):
		writeErrorKind(w, r, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, tenant.ErrConflict):
		writeErrorKind(w, r, http.StatusConflict, "conflict", err.Error())
	default:
		writeErrorKind(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}
