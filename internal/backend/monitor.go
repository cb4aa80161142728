package backend

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"netdiag-orchestrator/config"
)

type Status string

const (
	StatusChecking     Status = "checking"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

type Health struct {
	Status    Status    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Monitor probes whether the diagnostic backend is reachable. Purely
// advisory: it never gates tool execution and may run alongside any number of
// in-flight invocations.
type Monitor struct {
	baseURL string
	env     config.Env
	client  *http.Client
	logger  *zap.SugaredLogger

	mu   sync.Mutex
	last Health
}

func NewMonitor(cfg *config.Config, logger *zap.SugaredLogger) *Monitor {
	return newMonitor(ResolveBaseURL(cfg), cfg.ENV, logger)
}

// NewMonitorForBase is used by tests to point at an explicit base URL.
func NewMonitorForBase(baseURL string, env config.Env, logger *zap.SugaredLogger) *Monitor {
	return newMonitor(baseURL, env, logger)
}

func newMonitor(baseURL string, env config.Env, logger *zap.SugaredLogger) *Monitor {
	return &Monitor{
		baseURL: baseURL,
		env:     env,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
		last:    Health{Status: StatusChecking},
	}
}

// Probe issues one health check against the auth/verify endpoint. A 401 means
// the endpoint is live but wants credentials, so it counts as connected.
func (m *Monitor) Probe(ctx context.Context) Health {
	h := m.probe(ctx)

	m.mu.Lock()
	m.last = h
	m.mu.Unlock()

	if h.Status != StatusConnected {
		m.logger.Warnw("backend_unreachable", "detail", h.Detail)
	}
	return h
}

// Last returns the most recent probe outcome, StatusChecking before the
// first probe completes.
func (m *Monitor) Last() Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Monitor) probe(ctx context.Context) Health {
	now := time.Now().UTC()
	url := m.baseURL + "/auth/verify"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Health{Status: StatusDisconnected, Detail: err.Error(), CheckedAt: now}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return Health{Status: StatusDisconnected, Detail: m.downDetail(), CheckedAt: now}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusUnauthorized:
		return Health{Status: StatusConnected, CheckedAt: now}
	default:
		return Health{
			Status:    StatusDisconnected,
			Detail:    fmt.Sprintf("service reachable but misconfigured: %s", resp.Status),
			CheckedAt: now,
		}
	}
}

func (m *Monitor) downDetail() string {
	if m.env == config.Dev || m.env == config.Test {
		return fmt.Sprintf("diagnostic service not responding at %s; start it locally", m.baseURL)
	}
	return "diagnostic service appears to be down"
}
