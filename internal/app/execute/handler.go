package execute

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"netdiag-orchestrator/internal/catalog"
	"netdiag-orchestrator/internal/execution"
	"netdiag-orchestrator/internal/identity"
	"netdiag-orchestrator/internal/pkg/render"
	"netdiag-orchestrator/internal/router"
)

// Handler exposes the execution lifecycle over HTTP: start an invocation,
// poll its state, and resolve a pending challenge.
type Handler struct {
	registry *execution.Registry
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

type NewHandlerParams struct {
	fx.In

	Registry *execution.Registry
	Logger   *zap.SugaredLogger
}

func NewHandler(p NewHandlerParams) *Handler {
	return &Handler{
		registry: p.Registry,
		validate: validator.New(),
		logger:   p.Logger,
	}
}

func (h *Handler) RegisterRoute(r *chi.Mux) {
	r.Post("/v1/tools/{toolID}/execute", h.Handle)
	r.Get("/v1/tools/{toolID}/executions/current", h.handleStatus)
	r.Post("/v1/tools/{toolID}/challenge", h.handleChallenge)
}

type executeRequest struct {
	Input string `json:"input" validate:"required"`
}

type challengeRequest struct {
	Answer *int `json:"answer" validate:"required"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	tool, ok := h.lookupTool(w, r)
	if !ok {
		return
	}
	if tool.InputType == catalog.InputEmailList {
		render.ChiErr(w, http.StatusBadRequest, "bulk tools are executed via the bulk endpoint")
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.ChiErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		render.ChiErr(w, http.StatusBadRequest, "missing input")
		return
	}

	user := identity.FromRequest(r)
	session := h.registry.Session(identity.SubjectID(user, r), userIDPtr(user), identity.PlanOf(user), tool)

	st := session.Execute(r.Context(), req.Input)
	h.logger.Infow("execution_started",
		"tool", tool.ID,
		"phase", st.Phase,
		"plan", identity.PlanOf(user),
	)
	render.ChiJSON(w, statusForPhase(st.Phase), st)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	tool, ok := h.lookupTool(w, r)
	if !ok {
		return
	}

	user := identity.FromRequest(r)
	session, ok := h.registry.Peek(identity.SubjectID(user, r), tool.ID)
	if !ok {
		render.ChiJSON(w, http.StatusOK, execution.State{Phase: execution.PhaseIdle})
		return
	}
	render.ChiJSON(w, http.StatusOK, session.Snapshot())
}

func (h *Handler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	tool, ok := h.lookupTool(w, r)
	if !ok {
		return
	}

	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.ChiErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		render.ChiErr(w, http.StatusBadRequest, "missing answer")
		return
	}

	user := identity.FromRequest(r)
	session, ok := h.registry.Peek(identity.SubjectID(user, r), tool.ID)
	if !ok {
		render.ChiErr(w, http.StatusConflict, "no execution pending a challenge")
		return
	}

	st, err := session.SubmitChallenge(r.Context(), *req.Answer)
	if errors.Is(err, execution.ErrNoChallengePending) {
		render.ChiErr(w, http.StatusConflict, "no execution pending a challenge")
		return
	}
	if err != nil {
		h.logger.Errorw("challenge_submit_failed", "tool", tool.ID, "err", err)
		render.ChiErr(w, http.StatusInternalServerError, "failed to submit challenge")
		return
	}
	render.ChiJSON(w, http.StatusOK, st)
}

func (h *Handler) lookupTool(w http.ResponseWriter, r *http.Request) (catalog.ToolDescriptor, bool) {
	tool, err := catalog.Lookup(chi.URLParam(r, "toolID"))
	if err != nil {
		render.ChiErr(w, http.StatusNotFound, "unknown tool")
		return catalog.ToolDescriptor{}, false
	}
	return tool, true
}

// statusForPhase keeps denials visibly distinct from accepted invocations.
func statusForPhase(p execution.Phase) int {
	if p == execution.PhaseFailed {
		return http.StatusUnprocessableEntity
	}
	return http.StatusAccepted
}

func userIDPtr(u *identity.User) *string {
	if u == nil {
		return nil
	}
	return &u.ID
}

var _ router.Handler = (*Handler)(nil)
