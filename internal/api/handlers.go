package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/driver"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/pool"
)

// Handlers contains HTTP handlers for the API
type Handlers struct {
	sessionManager *driver.Manager
	loadBalancer   *pool.LoadBalancer
}

// NewHandlers creates a new Handlers instance
func NewHandlers(manager *driver.Manager, loadBalancer *pool.LoadBalancer) *Handlers {
	return &Handlers{
		sessionManager: manager,
		loadBalancer:   loadBalancer,
	}
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// CreateSession handles POST /sessions
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	sess, err := h.sessionManager.Create(r.Context(), driver.CreateRequest{
		Owner:        req.Owner,
		Name:         strings.TrimSpace(req.SessionName),
		Capabilities: req.Capabilities,
		Endpoint:     req.Endpoint,
	})
	if err != nil {
		writeFailure(w, err, ErrCodeSessionCreateFailed)
		return
	}

	writeJSON(w, http.StatusCreated, sessionInfo(sess.Summary()))
}

// ResumeSession handles POST /sessions/resume
func (h *Handlers) ResumeSession(w http.ResponseWriter, r *http.Request) {
	var req ResumeSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.SessionName == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "session_name is required")
		return
	}

	sess, err := h.sessionManager.ResumeByName(r.Context(), req.Owner, req.SessionName)
	if err != nil {
		writeFailure(w, err, ErrCodeInternalError)
		return
	}
	writeJSON(w, http.StatusOK, sessionInfo(sess.Summary()))
}

// GetSession handles GET /sessions/{id}
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessionManager.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err, ErrCodeInternalError)
		return
	}
	writeJSON(w, http.StatusOK, sessionInfo(sess.Summary()))
}

// DestroySession handles DELETE /sessions/{id}
func (h *Handlers) DestroySession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionManager.Destroy(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeFailure(w, err, ErrCodeInternalError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSessions handles GET /sessions
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessionManager.List()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sessionInfo(sess.Summary()))
	}
	writeJSON(w, http.StatusOK, ListSessionsResponse{Sessions: infos, Count: len(infos)})
}

// ListOwnerSessions handles GET /owners/{owner}/sessions
func (h *Handlers) ListOwnerSessions(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")

	summaries, err := h.sessionManager.ListOwner(r.Context(), owner)
	if err != nil {
		writeFailure(w, err, ErrCodeInternalError)
		return
	}

	infos := make([]SessionInfo, 0, len(summaries))
	for _, s := range summaries {
		infos = append(infos, sessionInfo(s))
	}
	writeJSON(w, http.StatusOK, ListOwnerSessionsResponse{Owner: owner, Sessions: infos, Count: len(infos)})
}

// RenameSession handles PUT /sessions/{id}/rename
func (h *Handlers) RenameSession(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "id")

	var req RenameSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	name := strings.TrimSpace(req.SessionName)
	if name == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "session_name is required")
		return
	}

	if err := h.sessionManager.Rename(r.Context(), handle, name); err != nil {
		writeFailure(w, err, ErrCodeInternalError)
		return
	}

	sess, err := h.sessionManager.Get(handle)
	if err != nil {
		writeFailure(w, err, ErrCodeInternalError)
		return
	}
	writeJSON(w, http.StatusOK, sessionInfo(sess.Summary()))
}

// ExecuteCommand handles POST /sessions/{id}/commands/{name}. The body is
// the command's parameter object.
func (h *Handlers) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")

	params := map[string]any{}
	if err := decodeBody(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	resp, err := h.sessionManager.Execute(r.Context(), handle, name, params)
	if err != nil {
		writeFailure(w, err, ErrCodeCommandFailed)
		return
	}

	out := CommandResponse{SessionID: handle, Command: name}
	if resp != nil {
		out.Value = resp.Value
	}
	writeJSON(w, http.StatusOK, out)
}

// Evaluate handles POST /sessions/{id}/evaluate
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "id")

	var req EvaluateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.Expression == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "expression is required")
		return
	}

	sess, err := h.sessionManager.Resume(r.Context(), handle)
	if err != nil {
		writeFailure(w, err, ErrCodeInternalError)
		return
	}

	result, err := sess.Driver.Evaluate(r.Context(), req.Expression)
	if err != nil {
		writeFailure(w, err, ErrCodeCommandFailed)
		return
	}
	writeJSON(w, http.StatusOK, EvaluateResponse{SessionID: handle, Result: result})
}

// AccessibilityTree handles GET /sessions/{id}/accessibility
func (h *Handlers) AccessibilityTree(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "id")

	sess, err := h.sessionManager.Resume(r.Context(), handle)
	if err != nil {
		writeFailure(w, err, ErrCodeInternalError)
		return
	}

	nodes, err := sess.Driver.AccessibilityTree(r.Context())
	if err != nil {
		writeFailure(w, err, ErrCodeCommandFailed)
		return
	}
	writeJSON(w, http.StatusOK, AccessibilityTreeResponse{SessionID: handle, Nodes: nodes})
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if _, err := h.loadBalancer.SelectEndpoint(); err != nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: status, Sessions: h.sessionManager.Count()})
}
