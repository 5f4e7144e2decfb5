package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	dnssrv "github.com/curtisra-gif/os-failover/internal/dns"
	"github.com/curtisra-gif/os-failover/internal/health"
	"github.com/curtisra-gif/os-failover/internal/model"
)

// Handler exposes the admin surface: health snapshots, policy state and
// the Prometheus registry.
type Handler struct {
	monitor  *health.Monitor
	resolver *dnssrv.Resolver
	metrics  http.Handler
	logger   *zap.Logger
}

func NewHandler(monitor *health.Monitor, resolver *dnssrv.Resolver, metrics http.Handler, logger *zap.Logger) *Handler {
	return &Handler{
		monitor:  monitor,
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
	}
}

// Router builds the admin HTTP router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", h.metrics)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Get("/policies", h.ListPolicies)
	})

	return r
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)
		next.ServeHTTP(w, r)
	})
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the response for GET /api/v1/status.
type StatusResponse struct {
	Checks      []model.CheckStatus `json:"checks"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// GetStatus handles GET /api/v1/status.
func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, StatusResponse{
		Checks:      h.monitor.Snapshot(),
		GeneratedAt: time.Now().UTC(),
	})
}

// PolicyResponse summarizes one zone's failover policy and which origin
// currently answers for it.
type PolicyResponse struct {
	Zone           string     `json:"zone"`
	ActiveRole     model.Role `json:"active_role"`
	PrimaryFQDN    string     `json:"primary_fqdn"`
	PrimaryState   string     `json:"primary_state"`
	SecondaryFQDN  string     `json:"secondary_fqdn"`
	SecondaryState string     `json:"secondary_state"`
}

// PoliciesResponse is the response for GET /api/v1/policies.
type PoliciesResponse struct {
	Policies    []PolicyResponse `json:"policies"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// ListPolicies handles GET /api/v1/policies.
func (h *Handler) ListPolicies(w http.ResponseWriter, _ *http.Request) {
	policies := h.resolver.Policies()
	out := make([]PolicyResponse, 0, len(policies))
	for _, p := range policies {
		out = append(out, PolicyResponse{
			Zone:           p.Zone,
			ActiveRole:     p.ActiveRole(),
			PrimaryFQDN:    p.Primary.Endpoint.FQDN,
			PrimaryState:   string(p.Primary.Status.State()),
			SecondaryFQDN:  p.Secondary.Endpoint.FQDN,
			SecondaryState: string(p.Secondary.Status.State()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Zone < out[j].Zone })

	h.respondJSON(w, http.StatusOK, PoliciesResponse{
		Policies:    out,
		GeneratedAt: time.Now().UTC(),
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
