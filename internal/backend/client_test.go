package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPClient_ExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tools/dns-lookup/execute", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "example.com", req.Input)
		require.Equal(t, "free", req.UserPlan)
		require.NotNil(t, req.UserID)
		require.Equal(t, "u1", *req.UserID)

		_ = json.NewEncoder(w).Encode(Response{
			Success:         true,
			Data:            json.RawMessage(`{"records":["93.184.216.34"]}`),
			ExecutionTimeMs: 42,
			Usage:           &Usage{DailyUsed: 1, DailyLimit: 25, Remaining: 24},
		})
	}))
	defer srv.Close()

	userID := "u1"
	c := NewHTTPClientForBase(srv.URL, time.Second, zap.NewNop().Sugar())
	resp, err := c.Execute(context.Background(), Request{
		Tool: "dns-lookup", Input: "example.com", UserPlan: "free", UserID: &userID,
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, int64(42), resp.ExecutionTimeMs)
	require.Equal(t, 24, resp.Usage.Remaining)
}

func TestHTTPClient_ExecuteAnonymousSendsNullUserID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		v, ok := raw["userId"]
		require.True(t, ok)
		require.Nil(t, v)

		_ = json.NewEncoder(w).Encode(Response{Success: true})
	}))
	defer srv.Close()

	c := NewHTTPClientForBase(srv.URL, time.Second, zap.NewNop().Sugar())
	_, err := c.Execute(context.Background(), Request{Tool: "ping", Input: "example.com", UserPlan: "anonymous"})
	require.NoError(t, err)
}

func TestHTTPClient_ExecuteBackend5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(Response{Success: false, Error: "probe timed out"})
	}))
	defer srv.Close()

	c := NewHTTPClientForBase(srv.URL, time.Second, zap.NewNop().Sugar())
	_, err := c.Execute(context.Background(), Request{Tool: "ping", Input: "example.com", UserPlan: "free"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "probe timed out")
}

func TestHTTPClient_ExecuteMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewHTTPClientForBase(srv.URL, time.Second, zap.NewNop().Sugar())
	_, err := c.Execute(context.Background(), Request{Tool: "ping", Input: "example.com", UserPlan: "free"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode backend response")
}

func TestHTTPClient_ExecuteContractViolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// success=false with no error message violates the response contract.
		_ = json.NewEncoder(w).Encode(Response{Success: false})
	}))
	defer srv.Close()

	c := NewHTTPClientForBase(srv.URL, time.Second, zap.NewNop().Sugar())
	_, err := c.Execute(context.Background(), Request{Tool: "ping", Input: "example.com", UserPlan: "free"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "contract")
}

func TestHTTPClient_ExecuteNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewHTTPClientForBase(url, time.Second, zap.NewNop().Sugar())
	_, err := c.Execute(context.Background(), Request{Tool: "ping", Input: "example.com", UserPlan: "free"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "backend call")
}
