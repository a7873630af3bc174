// Package cdp implements the debugging channel: one persistent WebSocket to a
// DevTools-protocol endpoint carrying id-correlated commands and unsolicited
// events.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/gorilla/websocket"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/metrics"
)

// ErrSessionClosed fails every command pending or issued after the channel
// closed.
var ErrSessionClosed = errors.New("debug session closed")

// DefaultCommandTimeout bounds a command whose context carries no deadline.
const DefaultCommandTimeout = 30 * time.Second

const closeGracePeriod = 5 * time.Second

// Request is a typed command of the proto package, such as proto.FetchEnable.
type Request interface {
	ProtoReq() string
}

var _ proto.Client = (*Session)(nil)

// Session is one open debugging channel.
type Session struct {
	conn    *websocket.Conn
	wsURL   string
	timeout time.Duration
	metrics *metrics.Metrics

	// target is the flattened target session commands are routed to.
	target atomic.Value

	nextID    atomic.Int64
	writeMu   sync.Mutex
	pendingMu sync.Mutex
	pending   map[int64]chan *message

	enableMu sync.Mutex
	enabled  map[string]bool

	events *dispatcher

	done       chan struct{}
	failOnce   sync.Once
	failErr    error
	readerDone chan struct{}
	closeOnce  sync.Once
	closeErr   error
}

// Option configures a Session.
type Option func(*Session)

// WithCommandTimeout bounds commands issued without a context deadline.
func WithCommandTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics records every command.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) {
		s.metrics = m
	}
}

// Dial opens the channel to wsURL.
func Dial(ctx context.Context, wsURL string, opts ...Option) (*Session, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 30 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial debugging endpoint %s: %w", wsURL, err)
	}

	s := &Session{
		conn:       conn,
		wsURL:      wsURL,
		timeout:    DefaultCommandTimeout,
		pending:    make(map[int64]chan *message),
		enabled:    make(map[string]bool),
		events:     newDispatcher(),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	s.target.Store("")
	for _, opt := range opts {
		opt(s)
	}

	go s.readLoop()

	slog.Debug("debug session opened", "url", wsURL)
	return s, nil
}

// Connect resolves endpoint, dials it and, for a browser-level endpoint,
// attaches to the first page target.
func Connect(ctx context.Context, endpoint Endpoint, client *http.Client, opts ...Option) (*Session, error) {
	wsURL, err := endpoint.Resolve(ctx, client)
	if err != nil {
		return nil, err
	}

	s, err := Dial(ctx, wsURL, opts...)
	if err != nil {
		return nil, err
	}

	if strings.Contains(wsURL, "/devtools/browser/") {
		if err := s.AttachToPage(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

type targetInfo struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	URL      string `json:"url"`
}

// AttachToPage attaches to the first page target in flattened mode; every
// later command is routed to that target.
func (s *Session) AttachToPage(ctx context.Context) error {
	raw, err := s.call(ctx, "", "Target.getTargets", struct{}{})
	if err != nil {
		return err
	}
	var targets struct {
		TargetInfos []targetInfo `json:"targetInfos"`
	}
	if err := json.Unmarshal(raw, &targets); err != nil {
		return fmt.Errorf("failed to parse targets: %w", err)
	}

	for _, t := range targets.TargetInfos {
		if t.Type != "page" {
			continue
		}
		raw, err := s.call(ctx, "", "Target.attachToTarget", map[string]any{
			"targetId": t.TargetID,
			"flatten":  true,
		})
		if err != nil {
			return err
		}
		var attached struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(raw, &attached); err != nil {
			return fmt.Errorf("failed to parse attach result: %w", err)
		}
		s.target.Store(attached.SessionID)
		slog.Debug("attached to page target", "target_id", t.TargetID, "target_session", attached.SessionID)
		return nil
	}
	return fmt.Errorf("no page target found")
}

// TargetSession returns the attached target session id, or "".
func (s *Session) TargetSession() string {
	return s.target.Load().(string)
}

// SendDomainCommand sends Domain.command and waits for its response.
func (s *Session) SendDomainCommand(ctx context.Context, domain, command string, params any) (json.RawMessage, error) {
	return s.call(ctx, s.TargetSession(), domain+"."+command, params)
}

// Call implements proto.Client. An empty sessionID routes to the attached
// target.
func (s *Session) Call(ctx context.Context, sessionID, method string, params any) ([]byte, error) {
	if sessionID == "" {
		sessionID = s.TargetSession()
	}
	return s.call(ctx, sessionID, method, params)
}

// Client binds ctx to the session for the proto package's Call helpers.
func (s *Session) Client(ctx context.Context) proto.Client {
	return boundClient{s: s, ctx: ctx}
}

type boundClient struct {
	s   *Session
	ctx context.Context
}

func (c boundClient) Call(ctx context.Context, sessionID, method string, params any) ([]byte, error) {
	return c.s.Call(ctx, sessionID, method, params)
}

func (c boundClient) GetContext() context.Context {
	return c.ctx
}

func (s *Session) call(ctx context.Context, sessionID, method string, params any) (json.RawMessage, error) {
	result, err := s.roundTrip(ctx, sessionID, method, params)
	s.metrics.ObserveDebugCommand(method, err)
	return result, err
}

func (s *Session) roundTrip(ctx context.Context, sessionID, method string, params any) (json.RawMessage, error) {
	select {
	case <-s.done:
		return nil, s.closedErr()
	default:
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	id := s.nextID.Add(1)
	ch := make(chan *message, 1)
	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	if params == nil {
		params = struct{}{}
	}
	if err := s.write(request{ID: id, Method: method, Params: params, SessionID: sessionID}); err != nil {
		return nil, err
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return nil, &CommandError{Method: method, ResponseError: *msg.Error}
		}
		return msg.Result, nil
	case <-s.done:
		return nil, s.closedErr()
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

func (s *Session) write(req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", req.Method, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	slog.Debug("cdp send", "id", req.ID, "method", req.Method)
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.fail(err)
		return s.closedErr()
	}
	return nil
}

func (s *Session) readLoop() {
	defer close(s.readerDone)
	for {
		_, buf, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("debug channel closed unexpectedly", "url", s.wsURL, "error", err)
			}
			s.fail(err)
			return
		}

		var msg message
		if err := json.Unmarshal(buf, &msg); err != nil {
			slog.Warn("ignoring malformed debug frame", "error", err)
			continue
		}

		switch {
		case msg.ID != 0:
			s.pendingMu.Lock()
			ch, ok := s.pending[msg.ID]
			s.pendingMu.Unlock()
			if ok {
				ch <- &msg
			}
		case msg.Method != "":
			if msg.SessionID != "" && msg.SessionID != s.TargetSession() {
				continue
			}
			domain, name := splitMethod(msg.Method)
			s.events.enqueue(Event{Domain: domain, Name: name, SessionID: msg.SessionID, Params: msg.Params})
		default:
			slog.Warn("ignoring debug frame without id or method")
		}
	}
}

// fail marks the channel dead and releases every waiter.
func (s *Session) fail(cause error) {
	s.failOnce.Do(func() {
		s.failErr = cause
		close(s.done)
	})
}

func (s *Session) closedErr() error {
	if s.failErr == nil || errors.Is(s.failErr, ErrSessionClosed) {
		return ErrSessionClosed
	}
	return fmt.Errorf("%w: %v", ErrSessionClosed, s.failErr)
}

// Subscribe registers h for events whose method is exactly domain.name.
func (s *Session) Subscribe(domain, name string, h Handler) Subscription {
	return s.events.subscribe(domain, name, h)
}

// Unsubscribe removes one handler. Unknown subscriptions are ignored.
func (s *Session) Unsubscribe(sub Subscription) {
	s.events.unsubscribe(sub)
}

// UnsubscribeAll removes every handler and drops queued events.
func (s *Session) UnsubscribeAll() {
	s.events.unsubscribeAll()
}

// Subscriptions returns the number of registered handlers.
func (s *Session) Subscriptions() int {
	return s.events.count()
}

// Enable sends a domain enable command unless the domain is already
// enabled on this session.
func (s *Session) Enable(ctx context.Context, req Request) error {
	domain, _ := splitMethod(req.ProtoReq())

	s.enableMu.Lock()
	defer s.enableMu.Unlock()
	if s.enabled[domain] {
		return nil
	}
	if _, err := s.Call(ctx, "", req.ProtoReq(), req); err != nil {
		return err
	}
	s.enabled[domain] = true
	return nil
}

// Disable sends a domain disable command if the domain is enabled.
func (s *Session) Disable(ctx context.Context, req Request) error {
	domain, _ := splitMethod(req.ProtoReq())

	s.enableMu.Lock()
	defer s.enableMu.Unlock()
	if !s.enabled[domain] {
		return nil
	}
	delete(s.enabled, domain)
	_, err := s.Call(ctx, "", req.ProtoReq(), req)
	return err
}

// Enabled reports whether domain has been enabled.
func (s *Session) Enabled(domain string) bool {
	s.enableMu.Lock()
	defer s.enableMu.Unlock()
	return s.enabled[domain]
}

// Done is closed once the channel is dead.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close shuts the channel down, failing pending commands with
// ErrSessionClosed, and waits for the reader and dispatcher to exit. It is
// idempotent and must not be called from a Handler.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.fail(ErrSessionClosed)

		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		s.writeMu.Unlock()

		s.closeErr = s.conn.Close()
		<-s.readerDone
		s.events.close()
		slog.Debug("debug session closed", "url", s.wsURL)
	})
	return s.closeErr
}
