package enqueue

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"netdiag-orchestrator/config"
	"netdiag-orchestrator/internal/app/amqp/bulkvalidate"
	"netdiag-orchestrator/internal/entitlement"
	"netdiag-orchestrator/internal/identity"
	"netdiag-orchestrator/internal/pkg/render"
	"netdiag-orchestrator/internal/router"
)

const maxBulkAddresses = 500

// Handler accepts bulk email-validation jobs and publishes them to the queue.
// The worker does the actual validation; this endpoint only gates and enqueues.
type Handler struct {
	cfg      *config.Config
	channel  *amqp.Channel
	store    *bulkvalidate.ResultStore
	validate *validator.Validate
	logger   *zap.SugaredLogger

	publish func(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type NewHandlerParams struct {
	fx.In

	Cfg     *config.Config
	Channel *amqp.Channel `optional:"true"`
	Store   *bulkvalidate.ResultStore
	Logger  *zap.SugaredLogger
}

func NewHandler(p NewHandlerParams) *Handler {
	var publishFn func(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	if p.Channel != nil {
		publishFn = p.Channel.PublishWithContext
	}

	return &Handler{
		cfg:      p.Cfg,
		channel:  p.Channel,
		store:    p.Store,
		validate: validator.New(),
		logger:   p.Logger,
		publish:  publishFn,
	}
}

func (h *Handler) RegisterRoute(r *chi.Mux) {
	r.Post("/v1/tools/email-validate/bulk", h.Handle)
	r.Get("/v1/tools/email-validate/bulk/{jobID}", h.handleJobResults)
}

type bulkRequest struct {
	Addresses []string `json:"addresses" validate:"required,min=1,dive,email"`
}

type bulkResponse struct {
	OK       bool   `json:"ok"`
	JobID    string `json:"job_id"`
	Accepted int    `json:"accepted"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	user := identity.FromRequest(r)
	if !identity.PlanOf(user).Paid() {
		render.ChiJSON(w, http.StatusForbidden, map[string]any{
			"error":            entitlement.ReasonPaidPlanRequired,
			"upgrade_required": true,
		})
		return
	}

	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.ChiErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		render.ChiErr(w, http.StatusBadRequest, "addresses must be a non-empty list of valid emails")
		return
	}
	if len(req.Addresses) > maxBulkAddresses {
		render.ChiErr(w, http.StatusRequestEntityTooLarge, "too many addresses in one job")
		return
	}

	if strings.TrimSpace(h.cfg.RabbitMQ.URL) == "" || h.publish == nil {
		render.ChiErr(w, http.StatusServiceUnavailable, "bulk validation queue disabled")
		return
	}

	ex := h.cfg.RabbitMQ.Exchange
	if ex == "" {
		ex = "events"
	}
	routingKey := h.cfg.RabbitMQ.RoutingKey
	if routingKey == "" {
		routingKey = h.cfg.RabbitMQ.Queue
	}

	now := time.Now().UTC()
	jobID := uuid.NewString()

	env := bulkvalidate.BulkRequestedEnvelope{
		EventName: bulkvalidate.EventName,
		EventID:   jobID,
		TS:        now,
		Data: bulkvalidate.BulkRequestedEventData{
			UserID:    user.ID,
			Plan:      string(identity.PlanOf(user)),
			Addresses: req.Addresses,
		},
	}
	body, err := json.Marshal(env)
	if err != nil {
		h.logger.Errorw("bulk_enqueue_marshal_failed", "err", err)
		render.ChiErr(w, http.StatusInternalServerError, "failed to encode message")
		return
	}

	if h.channel != nil && h.cfg.RabbitMQ.DeclareTopology {
		if err := h.channel.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			h.logger.Errorw("bulk_enqueue_exchange_declare_failed", "exchange", ex, "err", err)
			render.ChiErr(w, http.StatusBadGateway, "queue exchange declare failed")
			return
		}
	}

	if err := h.publish(r.Context(), ex, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    now,
		MessageId:    jobID,
		Body:         body,
	}); err != nil {
		h.logger.Errorw(
			"bulk_enqueue_publish_failed",
			"exchange", ex,
			"routing_key", routingKey,
			"job_id", jobID,
			"err", err,
		)
		render.ChiErr(w, http.StatusBadGateway, "failed to publish job")
		return
	}

	h.logger.Infow("bulk_enqueue_published",
		"exchange", ex,
		"routing_key", routingKey,
		"job_id", jobID,
		"addresses", len(req.Addresses),
	)
	render.ChiJSON(w, http.StatusAccepted, bulkResponse{OK: true, JobID: jobID, Accepted: len(req.Addresses)})
}

func (h *Handler) handleJobResults(w http.ResponseWriter, r *http.Request) {
	user := identity.FromRequest(r)
	if !identity.PlanOf(user).Paid() {
		render.ChiErr(w, http.StatusForbidden, entitlement.ReasonPaidPlanRequired)
		return
	}

	jobID := chi.URLParam(r, "jobID")
	if _, err := uuid.Parse(jobID); err != nil {
		render.ChiErr(w, http.StatusBadRequest, "invalid job id")
		return
	}

	results, err := h.store.JobResults(r.Context(), jobID, user.ID)
	if err != nil {
		h.logger.Errorw("bulk_job_results_failed", "job_id", jobID, "err", err)
		render.ChiErr(w, http.StatusInternalServerError, "failed to load job results")
		return
	}
	render.ChiJSON(w, http.StatusOK, map[string]any{
		"job_id":  jobID,
		"results": results,
	})
}

var _ router.Handler = (*Handler)(nil)
