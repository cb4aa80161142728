package tools

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"netdiag-orchestrator/internal/catalog"
	"netdiag-orchestrator/internal/pkg/render"
	"netdiag-orchestrator/internal/router"
)

type ListHandler struct{}

func NewListHandler() *ListHandler { return &ListHandler{} }

func (h *ListHandler) RegisterRoute(r *chi.Mux) {
	r.Get("/v1/tools", h.Handle)
}

type listResponse struct {
	Tools []catalog.ToolDescriptor `json:"tools"`
}

func (h *ListHandler) Handle(w http.ResponseWriter, r *http.Request) {
	render.ChiJSON(w, http.StatusOK, listResponse{Tools: catalog.All()})
}

var _ router.Handler = (*ListHandler)(nil)
