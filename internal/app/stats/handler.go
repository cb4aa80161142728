package stats

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"netdiag-orchestrator/internal/identity"
	"netdiag-orchestrator/internal/pkg/render"
	"netdiag-orchestrator/internal/router"
	"netdiag-orchestrator/internal/usage"
)

// Handler serves aggregated usage statistics for the calling subject.
type Handler struct {
	tracker *usage.Tracker
	logger  *zap.SugaredLogger
}

type NewHandlerParams struct {
	fx.In

	Tracker *usage.Tracker
	Logger  *zap.SugaredLogger
}

func NewHandler(p NewHandlerParams) *Handler {
	return &Handler{tracker: p.Tracker, logger: p.Logger}
}

func (h *Handler) RegisterRoute(r *chi.Mux) {
	r.Get("/v1/usage/stats", h.Handle)
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	user := identity.FromRequest(r)
	stats := h.tracker.StatsFor(r.Context(), identity.SubjectID(user, r))
	render.ChiJSON(w, http.StatusOK, stats)
}

var _ router.Handler = (*Handler)(nil)
