package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"

	"netdiag-orchestrator/internal/backend"
	"netdiag-orchestrator/internal/pkg/render"
	"netdiag-orchestrator/internal/router"
)

// Handler serves process liveness and the cached backend reachability state.
type Handler struct {
	monitor *backend.Monitor
}

type NewHandlerParams struct {
	fx.In

	Monitor *backend.Monitor
}

func NewHandler(p NewHandlerParams) *Handler {
	return &Handler{monitor: p.Monitor}
}

func (h *Handler) RegisterRoute(r *chi.Mux) {
	r.Get("/health", h.Handle)
	r.Get("/v1/backend/status", h.handleBackendStatus)
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	render.ChiJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleBackendStatus returns the last probe outcome without blocking on a
// fresh round trip; the lifecycle ticker keeps it current.
func (h *Handler) handleBackendStatus(w http.ResponseWriter, r *http.Request) {
	render.ChiJSON(w, http.StatusOK, h.monitor.Last())
}

var _ router.Handler = (*Handler)(nil)
