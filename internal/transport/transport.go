// Package transport executes remote driver commands over HTTP.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/command"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/metrics"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/remoteerr"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/response"
)

// DefaultTimeout bounds one command round trip when no option overrides it.
const DefaultTimeout = 60 * time.Second

const userAgent = "browser-remote-driver/1.0 (go)"

// Negotiator owns the registry that is active for one remote session. The
// transport reads it for every command and reports the dialect detected
// from the session-creation reply.
type Negotiator interface {
	Registry() *command.Registry
	// Resolve takes the one-way switch out of negotiation. Calls after the
	// first are ignored.
	Resolve(d command.Dialect) bool
}

// Transport sends commands to one remote end.
type Transport struct {
	baseURL *url.URL
	client  *http.Client
	metrics *metrics.Metrics
}

// Option configures a Transport.
type Option func(*Transport)

// WithTimeout sets the per-command timeout. The client is copied so a
// client shared between transports is never mutated.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			c := *t.client
			c.Timeout = d
			t.client = &c
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithMetrics records command latency and failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Transport) {
		t.metrics = m
	}
}

// New creates a transport for the remote end at remoteURL.
func New(remoteURL string, opts ...Option) (*Transport, error) {
	base, err := url.Parse(strings.TrimRight(remoteURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid remote URL %q: %w", remoteURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid remote URL %q: scheme must be http or https", remoteURL)
	}

	t := &Transport{
		baseURL: base,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// RemoteURL returns the remote end this transport talks to.
func (t *Transport) RemoteURL() string {
	return t.baseURL.String()
}

// Execute sends one command using the negotiator's active registry. Failures
// are never retried: a transport failure is returned as a TransportError and
// a non-success reply as the translated typed error.
func (t *Transport) Execute(ctx context.Context, neg Negotiator, cmd *command.Command) (*response.Response, error) {
	registry := neg.Registry()
	start := time.Now()

	resp, err := t.execute(ctx, registry, cmd)
	t.metrics.ObserveCommand(cmd.Name, registry.Dialect().String(), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if cmd.Name == command.NewSession && resp.OK() && resp.SessionID != "" {
		detected := command.DialectW3C
		if resp.Shape == response.ShapeLegacy {
			detected = command.DialectLegacy
		}
		if neg.Resolve(detected) {
			slog.Debug("protocol dialect detected", "dialect", detected.String(), "session_id", resp.SessionID)
		}
	}

	if !resp.OK() {
		translated := remoteerr.Translate(resp)
		var remoteErr *remoteerr.Error
		if errors.As(translated, &remoteErr) {
			remoteErr.Command = cmd.Name
		}
		return resp, translated
	}
	return resp, nil
}

func (t *Transport) execute(ctx context.Context, registry *command.Registry, cmd *command.Command) (*response.Response, error) {
	req, err := registry.Resolve(cmd)
	if err != nil {
		return nil, err
	}

	httpReq, err := t.newRequest(ctx, req)
	if err != nil {
		return nil, remoteerr.Protocol(remoteerr.ReasonMissingParameter, cmd.Name, "%v", err)
	}

	slog.Debug("executing command",
		"command", cmd.Name,
		"method", req.Method,
		"path", req.Path,
		"dialect", registry.Dialect().String())

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, remoteerr.Transport(classify(ctx, err), cmd.Name, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, remoteerr.Transport(classify(ctx, err), cmd.Name, err)
	}

	resp, err := response.Decode(httpResp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, remoteerr.Transport(remoteerr.ReasonMalformed, cmd.Name,
			fmt.Errorf("HTTP %d: %w", httpResp.StatusCode, err))
	}
	// An error status must carry an error payload; a bare one is not a success.
	if httpResp.StatusCode >= http.StatusBadRequest && resp.OK() {
		return nil, remoteerr.Transport(remoteerr.ReasonMalformed, cmd.Name,
			fmt.Errorf("HTTP %d without an error payload", httpResp.StatusCode))
	}
	return resp, nil
}

func (t *Transport) newRequest(ctx context.Context, req *command.Request) (*http.Request, error) {
	// req.Path is already escaped segment by segment.
	target := t.baseURL.String() + req.Path

	var body io.Reader
	if req.Method == http.MethodPost || req.Method == http.MethodPut {
		payload := req.Body
		if payload == nil {
			payload = map[string]any{}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode parameters: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json, image/png")
	httpReq.Header.Set("User-Agent", userAgent)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json;charset=utf-8")
	}
	return httpReq, nil
}

func classify(ctx context.Context, err error) remoteerr.Reason {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return remoteerr.ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return remoteerr.ReasonTimeout
	}
	return remoteerr.ReasonUnreachable
}
