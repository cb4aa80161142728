package bulkvalidate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"netdiag-orchestrator/internal/backend"
	"netdiag-orchestrator/internal/usage"
)

// validateTool is the single-address backend tool each job entry runs through.
const validateTool = "email-validate"

// bulkToolID is what the job counts as in usage stats.
const bulkToolID = "email-validate-bulk"

type ValidateHandler struct {
	backend backend.Client
	store   *ResultStore
	tracker *usage.Tracker
	logger  *zap.SugaredLogger
}

type NewValidateHandlerParams struct {
	fx.In

	Backend backend.Client
	Store   *ResultStore
	Tracker *usage.Tracker
	Logger  *zap.SugaredLogger
}

func NewValidateHandler(p NewValidateHandlerParams) *ValidateHandler {
	return &ValidateHandler{
		backend: p.Backend,
		store:   p.Store,
		tracker: p.Tracker,
		logger:  p.Logger,
	}
}

// Handle runs every address of the job through the diagnostic backend and
// persists the per-address outcomes atomically. A backend error on one
// address marks that address invalid rather than failing the whole job;
// only persistence failures bounce the message back to the queue.
func (h *ValidateHandler) Handle(ctx context.Context, msg BulkRequestedEnvelope) error {
	userID := strings.TrimSpace(msg.Data.UserID)
	if userID == "" {
		return fmt.Errorf("missing user_id")
	}
	if len(msg.Data.Addresses) == 0 {
		return fmt.Errorf("empty address list")
	}
	if msg.EventName != "" && msg.EventName != EventName {
		return fmt.Errorf("unexpected event_name: %s", msg.EventName)
	}

	results := make([]AddressResult, 0, len(msg.Data.Addresses))
	anyValid := false
	for _, raw := range msg.Data.Addresses {
		address := strings.TrimSpace(raw)
		if address == "" {
			continue
		}

		r := AddressResult{
			JobID:       msg.EventID,
			UserID:      userID,
			Address:     address,
			CreatedAtMS: nowMS(),
		}
		resp, err := h.backend.Execute(ctx, backend.Request{
			Tool:     validateTool,
			Input:    address,
			UserPlan: msg.Data.Plan,
			UserID:   &userID,
		})
		switch {
		case err != nil:
			r.Detail = err.Error()
			h.logger.Warnw("bulkvalidate_address_failed",
				"job_id", msg.EventID,
				"address", address,
				"err", err,
			)
		case resp.Success:
			r.Valid = 1
			anyValid = true
		default:
			r.Detail = resp.Error
		}
		results = append(results, r)
	}

	if len(results) == 0 {
		return fmt.Errorf("no usable addresses in job %s", msg.EventID)
	}

	if err := h.store.SaveJob(ctx, results); err != nil {
		h.logger.Errorw("bulkvalidate_persist_failed", "job_id", msg.EventID, "err", err)
		return err
	}

	// One usage record per job, not per address.
	h.tracker.RecordOutcome(ctx, userID, bulkToolID, anyValid)

	h.logger.Infow("bulkvalidate_finished",
		"job_id", msg.EventID,
		"addresses", len(results),
	)
	return nil
}
