// Package session owns one remote driver session: its id, negotiated
// capabilities and protocol dialect. Coordinator.Execute is the single entry
// point for every higher-level operation.
package session

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"sync"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/command"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/remoteerr"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/response"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/transport"
)

// ErrAlreadyStarted is returned by StartSession on a coordinator that has
// already created its session.
var ErrAlreadyStarted = errors.New("session already started")

// Executor sends one command to the remote end. *transport.Transport
// implements it.
type Executor interface {
	Execute(ctx context.Context, neg transport.Negotiator, cmd *command.Command) (*response.Response, error)
}

// Status is the lifecycle state of a coordinator.
type Status string

const (
	StatusIdle   Status = "idle"   // no session created yet
	StatusActive Status = "active" // session created
	StatusEnded  Status = "ended"  // quit issued, successfully or not
)

// Coordinator owns the session id, the negotiated capabilities and the
// active command registry of one remote session.
type Coordinator struct {
	exec    Executor
	dialect *Dialect

	mu        sync.RWMutex
	status    Status
	sessionID string
	caps      map[string]any
	features  Features
}

// NewCoordinator returns an idle coordinator that negotiates its dialect on
// StartSession.
func NewCoordinator(exec Executor) *Coordinator {
	return &Coordinator{
		exec:    exec,
		dialect: &Dialect{},
		status:  StatusIdle,
	}
}

// Attach returns an active coordinator for a session created elsewhere,
// such as one restored from storage.
func Attach(exec Executor, sessionID string, d command.Dialect, caps map[string]any) *Coordinator {
	caps = maps.Clone(caps)
	return &Coordinator{
		exec:      exec,
		dialect:   NewDialect(d),
		status:    StatusActive,
		sessionID: sessionID,
		caps:      caps,
		features:  DeriveFeatures(caps, d),
	}
}

// StartSession creates the remote session. The request carries both the
// legacy desiredCapabilities and the standardized capabilities object so
// either dialect can answer it.
func (c *Coordinator) StartSession(ctx context.Context, caps map[string]any) (string, map[string]any, error) {
	if caps == nil {
		caps = map[string]any{}
	}
	params := map[string]any{
		"desiredCapabilities": caps,
		"capabilities": map[string]any{
			"firstMatch": []any{caps},
		},
	}
	if _, err := c.start(ctx, params); err != nil {
		return "", nil, err
	}
	return c.SessionID(), c.Capabilities(), nil
}

func (c *Coordinator) start(ctx context.Context, params map[string]any) (*response.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusIdle {
		return nil, ErrAlreadyStarted
	}

	resp, err := c.exec.Execute(ctx, c.dialect, command.New("", command.NewSession, params))
	if err != nil {
		return resp, err
	}
	if resp.SessionID == "" {
		return resp, remoteerr.New(remoteerr.SessionNotCreated, "remote end returned no session id")
	}

	c.sessionID = resp.SessionID
	c.caps = maps.Clone(resp.Map())
	if c.caps == nil {
		c.caps = map[string]any{}
	}
	c.features = DeriveFeatures(c.caps, c.dialect.Current())
	c.status = StatusActive

	slog.Info("remote session started",
		"session_id", c.sessionID,
		"dialect", c.dialect.Current().String())
	return resp, nil
}

// Execute runs one named command against the session. Session creation
// and quit are routed through StartSession and EndSession semantics.
func (c *Coordinator) Execute(ctx context.Context, name string, params map[string]any) (*response.Response, error) {
	switch name {
	case command.NewSession:
		return c.start(ctx, params)
	case command.Quit:
		return nil, c.EndSession(ctx)
	}

	c.mu.RLock()
	status, sessionID := c.status, c.sessionID
	c.mu.RUnlock()

	switch status {
	case StatusIdle:
		return nil, &remoteerr.Error{Kind: remoteerr.NoSuchDriver, Command: name, Message: "no session has been started"}
	case StatusEnded:
		return nil, &remoteerr.Error{Kind: remoteerr.InvalidSessionID, Command: name, Message: "session has been ended"}
	}

	return c.exec.Execute(ctx, c.dialect, command.New(sessionID, name, params))
}

// EndSession quits the remote session. The coordinator is torn down whatever
// the outcome, so later calls fail fast without touching the network.
func (c *Coordinator) EndSession(ctx context.Context) error {
	c.mu.Lock()
	status, sessionID := c.status, c.sessionID
	c.status = StatusEnded
	c.mu.Unlock()

	if status != StatusActive {
		return nil
	}

	_, err := c.exec.Execute(ctx, c.dialect, command.New(sessionID, command.Quit, nil))
	if err != nil {
		slog.Warn("quit failed, session torn down anyway", "session_id", sessionID, "error", err)
		return err
	}
	slog.Info("remote session ended", "session_id", sessionID)
	return nil
}

// SessionID returns the remote session id, or "" before StartSession.
func (c *Coordinator) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Capabilities returns a copy of the negotiated capabilities.
func (c *Coordinator) Capabilities() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.caps)
}

// Features returns the feature flags derived at session creation.
func (c *Coordinator) Features() Features {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.features
}

// Status returns the lifecycle state.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Dialect returns the active protocol dialect.
func (c *Coordinator) Dialect() command.Dialect {
	return c.dialect.Current()
}
