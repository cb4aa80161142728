package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"netdiag-orchestrator/config"
)

// Request is the wire contract for one diagnostic execution. UserID is nil
// for anonymous callers.
type Request struct {
	Tool     string  `json:"-"`
	Input    string  `json:"input"`
	UserPlan string  `json:"userPlan"`
	UserID   *string `json:"userId"`
}

type Usage struct {
	DailyUsed  int `json:"dailyUsed"`
	DailyLimit int `json:"dailyLimit"`
	Remaining  int `json:"remaining"`
}

type Response struct {
	Success         bool            `json:"success"`
	Data            json.RawMessage `json:"data,omitempty"`
	Error           string          `json:"error,omitempty" validate:"required_if=Success false"`
	ExecutionTimeMs int64           `json:"executionTimeMs,omitempty"`
	Usage           *Usage          `json:"usage,omitempty"`
}

// Client runs a diagnostic tool against the remote backend.
type Client interface {
	Execute(ctx context.Context, req Request) (Response, error)
}

// ResolveBaseURL picks the backend base URL: the configured one when set,
// otherwise the fixed local development port.
func ResolveBaseURL(cfg *config.Config) string {
	if base := strings.TrimSpace(cfg.Backend.BaseURL); base != "" {
		return strings.TrimRight(base, "/")
	}
	return fmt.Sprintf("http://127.0.0.1:%d", cfg.Backend.LocalPort)
}

type HTTPClient struct {
	baseURL  string
	client   *http.Client
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

func NewHTTPClient(cfg *config.Config, logger *zap.SugaredLogger) *HTTPClient {
	timeout := time.Duration(cfg.Backend.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:  ResolveBaseURL(cfg),
		client:   &http.Client{Timeout: timeout},
		validate: validator.New(),
		logger:   logger,
	}
}

// NewHTTPClientForBase is used by tests and the worker to point at an
// explicit base URL.
func NewHTTPClientForBase(baseURL string, timeout time.Duration, logger *zap.SugaredLogger) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		validate: validator.New(),
		logger:   logger,
	}
}

func (c *HTTPClient) Execute(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Tool) == "" {
		return Response{}, fmt.Errorf("missing tool")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode backend request: %w", err)
	}

	url := fmt.Sprintf("%s/tools/%s/execute", c.baseURL, req.Tool)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("backend call: %w", err)
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode backend response (status %s): %w", resp.Status, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := out.Error
		if msg == "" {
			msg = resp.Status
		}
		return Response{}, fmt.Errorf("backend returned %d: %s", resp.StatusCode, msg)
	}

	if err := c.validate.Struct(out); err != nil {
		return Response{}, fmt.Errorf("backend response contract: %w", err)
	}

	if out.ExecutionTimeMs == 0 {
		out.ExecutionTimeMs = time.Since(start).Milliseconds()
	}

	return out, nil
}

var _ Client = (*HTTPClient)(nil)
