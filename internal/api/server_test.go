package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/command"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/driver"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/metrics"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/pool"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/remotetest"
)

func newTestServer(t *testing.T, maxSessions int) (*httptest.Server, *remotetest.Server) {
	t.Helper()

	remote := remotetest.New(t, command.DialectW3C)
	p, err := pool.NewEndpointPool([]string{remote.URL}, nil)
	require.NoError(t, err)
	balancer := pool.NewLoadBalancer(p)
	m := metrics.New()

	manager := driver.NewManager(driver.ManagerConfig{
		Driver: driver.Options{
			HTTPClient: &http.Client{Transport: &http.Transport{DisableKeepAlives: true}},
			Metrics:    m,
		},
		MaxSessions: maxSessions,
		Balancer:    balancer,
	})
	t.Cleanup(func() { _ = manager.Close(context.Background()) })

	srv := httptest.NewServer(NewServer("0", manager, balancer, m).Handler())
	t.Cleanup(srv.Close)
	return srv, remote
}

func do(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func createSession(t *testing.T, srv *httptest.Server, name string) SessionInfo {
	t.Helper()
	resp, body := do(t, http.MethodPost, srv.URL+"/sessions", CreateSessionRequest{Owner: "agent-1", SessionName: name})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var info SessionInfo
	require.NoError(t, json.Unmarshal(body, &info))
	return info
}

func TestSessionLifecycle(t *testing.T) {
	srv, remote := newTestServer(t, 5)

	info := createSession(t, srv, "checkout")
	assert.True(t, strings.HasPrefix(info.SessionID, "sess_"))
	assert.Equal(t, "checkout", info.SessionName)
	assert.Equal(t, "abc", info.RemoteSessionID)
	assert.Equal(t, "w3c", info.Dialect)
	assert.True(t, info.Loaded)

	resp, body := do(t, http.MethodGet, srv.URL+"/sessions/"+info.SessionID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list ListSessionsResponse
	resp, body = do(t, http.MethodGet, srv.URL+"/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 1, list.Count)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/sessions/"+info.SessionID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, remote.Count(command.Quit))

	resp, body = do(t, http.MethodGet, srv.URL+"/sessions/"+info.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), ErrCodeSessionNotFound)
}

func TestExecuteCommand(t *testing.T) {
	srv, remote := newTestServer(t, 5)
	remote.Handle(command.GetTitle, func(remotetest.Request) remotetest.Reply {
		return remotetest.Reply{Value: "Cart"}
	})
	info := createSession(t, srv, "")

	resp, body := do(t, http.MethodPost, srv.URL+"/sessions/"+info.SessionID+"/commands/"+command.GetTitle, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out CommandResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "Cart", out.Value)

	resp, body = do(t, http.MethodPost, srv.URL+"/sessions/"+info.SessionID+"/commands/"+command.Navigate,
		map[string]any{"url": "https://example.test/"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	last, ok := remote.Last(command.Navigate)
	require.True(t, ok)
	assert.Equal(t, "https://example.test/", last.Body["url"])
}

func TestExecuteCommandErrors(t *testing.T) {
	srv, remote := newTestServer(t, 5)
	remote.Handle(command.FindElement, func(remotetest.Request) remotetest.Reply {
		return remotetest.Fail("no such element", 7, "missing")
	})
	info := createSession(t, srv, "")

	tests := []struct {
		name   string
		cmd    string
		params any
		status int
		kind   string
	}{
		{"remote not found", command.FindElement, map[string]any{"using": "css selector", "value": "#x"}, http.StatusNotFound, "NoSuchElement"},
		{"unknown command", "teleport", nil, http.StatusBadRequest, "ProtocolError"},
		{"missing parameter", command.ClickElement, nil, http.StatusBadRequest, "ProtocolError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, srv.URL+"/sessions/"+info.SessionID+"/commands/"+tt.cmd, tt.params)
			assert.Equal(t, tt.status, resp.StatusCode, string(body))

			var e ErrorResponse
			require.NoError(t, json.Unmarshal(body, &e))
			assert.Equal(t, tt.kind, e.Error.Kind)
		})
	}
}

func TestSessionLimitAndConflicts(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	createSession(t, srv, "only")

	resp, body := do(t, http.MethodPost, srv.URL+"/sessions", CreateSessionRequest{Owner: "agent-1", SessionName: "only"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), ErrCodeSessionNameConflict)

	resp, body = do(t, http.MethodPost, srv.URL+"/sessions", CreateSessionRequest{Owner: "agent-1"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(body), ErrCodeSessionLimit)
}

func TestRenameAndOwnerListing(t *testing.T) {
	srv, _ := newTestServer(t, 5)
	info := createSession(t, srv, "draft")

	resp, body := do(t, http.MethodPut, srv.URL+"/sessions/"+info.SessionID+"/rename", RenameSessionRequest{SessionName: "final"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = do(t, http.MethodPost, srv.URL+"/sessions/resume", ResumeSessionRequest{Owner: "agent-1", SessionName: "final"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var owned ListOwnerSessionsResponse
	resp, body = do(t, http.MethodGet, srv.URL+"/owners/agent-1/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &owned))
	require.Equal(t, 1, owned.Count)
	assert.Equal(t, "final", owned.Sessions[0].SessionName)
}

func TestEvaluateWithoutDebugEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, 5)
	info := createSession(t, srv, "")

	resp, body := do(t, http.MethodPost, srv.URL+"/sessions/"+info.SessionID+"/evaluate", EvaluateRequest{Expression: "1"})
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.Contains(t, string(body), ErrCodeUnsupported)

	resp, _ = do(t, http.MethodPost, srv.URL+"/sessions/"+info.SessionID+"/evaluate", EvaluateRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, 5)
	createSession(t, srv, "")

	var health HealthResponse
	resp, body := do(t, http.MethodGet, srv.URL+"/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Sessions)

	resp, body = do(t, http.MethodGet, srv.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "remote_driver_active_sessions 1")

	var pm pool.PoolMetrics
	resp, body = do(t, http.MethodGet, srv.URL+"/pool", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &pm))
	assert.Equal(t, int64(1), pm.TotalSessions)
}
