// Package cdptest provides an in-process fake DevTools endpoint for tests of
// the debugging channel.
package cdptest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TargetSession is the session id handed out by Target.attachToTarget.
const TargetSession = "target-session-1"

// ErrNoReply makes a handler leave a command unanswered.
var ErrNoReply = errors.New("no reply")

// Frame is one command received by the fake endpoint.
type Frame struct {
	ID        int64           `json:"id"`
	Method    string          `json:"method"`
	SessionID string          `json:"sessionId,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// Decode unmarshals the command parameters into v.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Params, v)
}

// HandlerFunc answers one command. A non-nil error other than ErrNoReply is
// sent back as a protocol error.
type HandlerFunc func(f Frame) (any, error)

// Server is a fake DevTools endpoint.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	frames   []Frame
	conns    []*conn
	attached bool
	scripts  int
}

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// New starts a fake endpoint closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{handlers: make(map[string]HandlerFunc)}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", s.serveVersion)
	mux.HandleFunc("/devtools/", s.serveWebSocket)
	s.Server = httptest.NewServer(mux)

	t.Cleanup(func() {
		s.mu.Lock()
		conns := s.conns
		s.conns = nil
		s.mu.Unlock()
		for _, c := range conns {
			_ = c.ws.Close()
		}
		s.Close()
	})
	return s
}

// Address returns the host:port that serves /json/version.
func (s *Server) Address() string {
	return strings.TrimPrefix(s.URL, "http://")
}

// BrowserURL is a browser-level endpoint that requires target attachment.
func (s *Server) BrowserURL() string {
	return "ws://" + s.Address() + "/devtools/browser/fake"
}

// PageURL is a page-level endpoint.
func (s *Server) PageURL() string {
	return "ws://" + s.Address() + "/devtools/page/fake"
}

// Handle overrides the reply to method.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Frames returns every received command with the given method.
func (s *Server) Frames(method string) []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Frame
	for _, f := range s.frames {
		if f.Method == method {
			out = append(out, f)
		}
	}
	return out
}

// Count returns how many times method was received.
func (s *Server) Count(method string) int {
	return len(s.Frames(method))
}

// WaitFor blocks until method has been received n times.
func (s *Server) WaitFor(t testing.TB, method string, n int) []Frame {
	t.Helper()
	require.Eventually(t, func() bool { return s.Count(method) >= n },
		2*time.Second, 5*time.Millisecond, "waiting for %d x %s", n, method)
	return s.Frames(method)
}

// Emit sends an event to every open connection.
func (s *Server) Emit(t testing.TB, method string, params any) {
	t.Helper()

	data, err := json.Marshal(params)
	require.NoError(t, err)

	s.mu.Lock()
	conns := append([]*conn(nil), s.conns...)
	ev := map[string]any{"method": method, "params": json.RawMessage(data)}
	if s.attached {
		ev["sessionId"] = TargetSession
	}
	s.mu.Unlock()

	require.NotEmpty(t, conns, "no open debug connection")
	for _, c := range conns {
		require.NoError(t, c.write(ev))
	}
}

func (s *Server) serveVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"Browser":              "Fake/1.0",
		"Protocol-Version":     "1.3",
		"webSocketDebuggerUrl": s.BrowserURL(),
	})
}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &conn{ws: ws}

	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.mu.Unlock()

	defer func() {
		_ = ws.Close()
		s.mu.Lock()
		for i, other := range s.conns {
			if other == c {
				s.conns = append(s.conns[:i], s.conns[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}()

	for {
		var f Frame
		if err := ws.ReadJSON(&f); err != nil {
			return
		}
		s.answer(c, f)
	}
}

func (s *Server) answer(c *conn, f Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	h, ok := s.handlers[f.Method]
	s.mu.Unlock()

	if !ok {
		h = s.defaultHandler
	}
	result, err := h(f)
	if errors.Is(err, ErrNoReply) {
		return
	}

	reply := map[string]any{"id": f.ID}
	if f.SessionID != "" {
		reply["sessionId"] = f.SessionID
	}
	if err != nil {
		reply["error"] = map[string]any{"code": -32000, "message": err.Error()}
	} else {
		if result == nil {
			result = map[string]any{}
		}
		reply["result"] = result
	}
	_ = c.write(reply)
}

func (s *Server) defaultHandler(f Frame) (any, error) {
	switch f.Method {
	case "Target.getTargets":
		return map[string]any{"targetInfos": []map[string]any{
			{"targetId": "service-worker-1", "type": "service_worker", "url": "https://example/sw.js"},
			{"targetId": "page-1", "type": "page", "url": "about:blank"},
		}}, nil
	case "Target.attachToTarget":
		s.mu.Lock()
		s.attached = true
		s.mu.Unlock()
		return map[string]any{"sessionId": TargetSession}, nil
	case "Page.addScriptToEvaluateOnNewDocument":
		s.mu.Lock()
		s.scripts++
		id := fmt.Sprintf("script-%d", s.scripts)
		s.mu.Unlock()
		return map[string]any{"identifier": id}, nil
	}
	return nil, nil
}
