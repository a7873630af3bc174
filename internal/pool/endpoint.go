package pool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
)

// Endpoint is one remote end the pool can place sessions on.
type Endpoint struct {
	url          string
	sessionCount atomic.Int64
	healthy      atomic.Bool
	lastCheck    atomic.Int64
}

// EndpointMetrics is a snapshot of one endpoint.
type EndpointMetrics struct {
	URL          string    `json:"url"`
	SessionCount int64     `json:"session_count"`
	Healthy      bool      `json:"healthy"`
	LastCheck    time.Time `json:"last_check,omitempty"`
}

// NewEndpoint returns an endpoint assumed healthy until a probe says
// otherwise.
func NewEndpoint(rawURL string) *Endpoint {
	e := &Endpoint{url: strings.TrimRight(rawURL, "/")}
	e.healthy.Store(true)
	return e
}

// URL returns the remote end URL.
func (e *Endpoint) URL() string { return e.url }

// GetSessionCount returns the sessions placed on this endpoint.
func (e *Endpoint) GetSessionCount() int64 { return e.sessionCount.Load() }

// IncrementSessionCount records a session placed on this endpoint.
func (e *Endpoint) IncrementSessionCount() { e.sessionCount.Add(1) }

// DecrementSessionCount records a session leaving this endpoint.
func (e *Endpoint) DecrementSessionCount() {
	for {
		n := e.sessionCount.Load()
		if n <= 0 || e.sessionCount.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// IsHealthy reports the outcome of the last probe.
func (e *Endpoint) IsHealthy() bool { return e.healthy.Load() }

// Probe asks the remote end for its status. Both dialects answer GET
// /status; the standardized one may report value.ready=false.
func (e *Endpoint) Probe(ctx context.Context, client *http.Client) error {
	err := e.probe(ctx, client)
	e.healthy.Store(err == nil)
	e.lastCheck.Store(time.Now().UnixNano())
	return err
}

func (e *Endpoint) probe(ctx context.Context, client *http.Client) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url+"/status", nil)
	if err != nil {
		return fmt.Errorf("failed to build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status returned %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("status returned a non-JSON body")
	}
	if ready := gjson.GetBytes(body, "value.ready"); ready.Exists() && !ready.Bool() {
		msg := gjson.GetBytes(body, "value.message").String()
		return fmt.Errorf("remote end not ready: %s", msg)
	}
	return nil
}

// GetMetrics returns a snapshot of the endpoint.
func (e *Endpoint) GetMetrics() EndpointMetrics {
	m := EndpointMetrics{
		URL:          e.url,
		SessionCount: e.sessionCount.Load(),
		Healthy:      e.healthy.Load(),
	}
	if ns := e.lastCheck.Load(); ns != 0 {
		m.LastCheck = time.Unix(0, ns)
	}
	return m
}
