// Package remotetest provides an in-process fake remote end speaking either
// dialect, for tests of the command path.
package remotetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/command"
)

// Request is one command received by the fake remote end.
type Request struct {
	Command string
	Method  string
	Path    string
	Tokens  map[string]string
	Body    map[string]any
}

// Reply describes how the fake remote end answers one command.
type Reply struct {
	Value any
	// ErrorCode and LegacyStatus describe a failure in each dialect.
	ErrorCode    string
	LegacyStatus int
	Message      string
	// Raw, when set, is written verbatim with ContentType.
	Raw         []byte
	ContentType string
	HTTPStatus  int
}

// Fail builds an error reply understood by both dialects.
func Fail(code string, legacyStatus int, message string) Reply {
	return Reply{ErrorCode: code, LegacyStatus: legacyStatus, Message: message, HTTPStatus: http.StatusNotFound}
}

// Handler answers one command.
type Handler func(req Request) Reply

// Server is a fake remote end.
type Server struct {
	*httptest.Server

	dialect   command.Dialect
	sessionID string

	mu       sync.Mutex
	handlers map[string]Handler
	requests []Request
}

// New starts a fake remote end that answers in dialect d. It is closed when
// the test ends.
func New(t testing.TB, d command.Dialect) *Server {
	t.Helper()

	s := &Server{
		dialect:   d,
		sessionID: "abc",
		handlers:  make(map[string]Handler),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// SetSessionID changes the id handed out by newSession.
func (s *Server) SetSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
}

// Handle overrides the reply for a command name.
func (s *Server) Handle(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// Requests returns every command received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many times name was received.
func (s *Server) Count(name string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Command == name {
			n++
		}
	}
	return n
}

// Last returns the most recent request for name.
func (s *Server) Last(name string) (Request, bool) {
	reqs := s.Requests()
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Command == name {
			return reqs[i], true
		}
	}
	return Request{}, false
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	registry := command.RegistryFor(s.dialect)
	name, tokens, ok := registry.Match(r.Method, r.URL.EscapedPath())
	if !ok {
		s.write(w, Reply{
			ErrorCode:    "unknown command",
			LegacyStatus: 9,
			Message:      r.Method + " " + r.URL.Path,
			HTTPStatus:   http.StatusNotFound,
		})
		return
	}

	req := Request{Command: name, Method: r.Method, Path: r.URL.Path, Tokens: tokens}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &req.Body)
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	h, ok := s.handlers[name]
	sessionID := s.sessionID
	s.mu.Unlock()

	if !ok {
		h = s.defaultHandler(sessionID)
	}
	reply := h(req)

	if name == command.NewSession && reply.ErrorCode == "" && reply.LegacyStatus == 0 && reply.Raw == nil {
		s.writeNewSession(w, sessionID, reply.Value)
		return
	}
	s.write(w, reply)
}

func (s *Server) defaultHandler(sessionID string) Handler {
	return func(req Request) Reply {
		if req.Command == command.NewSession {
			caps := map[string]any{"browserName": "x"}
			if desired, ok := req.Body["desiredCapabilities"].(map[string]any); ok {
				for k, v := range desired {
					caps[k] = v
				}
			}
			return Reply{Value: caps}
		}
		return Reply{}
	}
}

func (s *Server) writeNewSession(w http.ResponseWriter, sessionID string, caps any) {
	var envelope map[string]any
	if s.dialect == command.DialectLegacy {
		envelope = map[string]any{"sessionId": sessionID, "status": 0, "value": caps}
	} else {
		envelope = map[string]any{"value": map[string]any{"sessionId": sessionID, "capabilities": caps}}
	}
	writeJSON(w, http.StatusOK, envelope)
}

func (s *Server) write(w http.ResponseWriter, reply Reply) {
	if reply.Raw != nil {
		w.Header().Set("Content-Type", reply.ContentType)
		status := reply.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write(reply.Raw)
		return
	}

	failed := reply.ErrorCode != "" || reply.LegacyStatus != 0
	status := http.StatusOK
	if failed {
		status = reply.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
	}

	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()

	if s.dialect == command.DialectLegacy {
		value := reply.Value
		if failed {
			value = map[string]any{"message": reply.Message}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"sessionId": sessionID,
			"status":    reply.LegacyStatus,
			"value":     value,
		})
		return
	}

	if failed {
		code := reply.ErrorCode
		if code == "" {
			code = "unknown error"
		}
		writeJSON(w, status, map[string]any{"value": map[string]any{
			"error":      code,
			"message":    reply.Message,
			"stacktrace": "",
		}})
		return
	}
	writeJSON(w, status, map[string]any{"value": reply.Value})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ElementValue encodes an element reference the way the dialect does.
func ElementValue(d command.Dialect, id string) map[string]any {
	if d == command.DialectLegacy {
		return map[string]any{"ELEMENT": id}
	}
	return map[string]any{"element-6066-11e4-a52f-4d5f6e6e2f5c": id}
}
