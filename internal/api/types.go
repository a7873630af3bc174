package api

import (
	"time"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/driver"
)

// Request Types

// CreateSessionRequest for POST /sessions
type CreateSessionRequest struct {
	Owner        string         `json:"owner"`
	SessionName  string         `json:"session_name,omitempty"`
	Capabilities map[string]any `json:"capabilities,omitempty"`
	// Optional: pin the remote end, otherwise the load balancer decides
	Endpoint string `json:"endpoint,omitempty"`
}

// ResumeSessionRequest for POST /sessions/resume
type ResumeSessionRequest struct {
	Owner       string `json:"owner"`
	SessionName string `json:"session_name"`
}

// RenameSessionRequest for PUT /sessions/{id}/rename
type RenameSessionRequest struct {
	SessionName string `json:"session_name"`
}

// EvaluateRequest for POST /sessions/{id}/evaluate
type EvaluateRequest struct {
	Expression string `json:"expression"`
}

// Response Types

// SessionInfo describes one session
type SessionInfo struct {
	SessionID       string    `json:"session_id"`
	SessionName     string    `json:"session_name"`
	Owner           string    `json:"owner,omitempty"`
	Endpoint        string    `json:"endpoint"`
	RemoteSessionID string    `json:"remote_session_id"`
	Dialect         string    `json:"dialect"`
	Status          string    `json:"status"`
	Loaded          bool      `json:"loaded"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivity    time.Time `json:"last_activity"`
}

func sessionInfo(s driver.Summary) SessionInfo {
	return SessionInfo{
		SessionID:       s.Handle,
		SessionName:     s.Name,
		Owner:           s.Owner,
		Endpoint:        s.Endpoint,
		RemoteSessionID: s.RemoteSessionID,
		Dialect:         s.Dialect,
		Status:          s.Status,
		Loaded:          s.Loaded,
		CreatedAt:       s.CreatedAt,
		LastActivity:    s.LastActivity,
	}
}

// ListSessionsResponse returned with all sessions
type ListSessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
	Count    int           `json:"count"`
}

// ListOwnerSessionsResponse for GET /owners/{owner}/sessions
type ListOwnerSessionsResponse struct {
	Owner    string        `json:"owner"`
	Sessions []SessionInfo `json:"sessions"`
	Count    int           `json:"count"`
}

// CommandResponse returned after a remote command
type CommandResponse struct {
	SessionID string `json:"session_id"`
	Command   string `json:"command"`
	Value     any    `json:"value"`
}

// EvaluateResponse returned after script evaluation
type EvaluateResponse struct {
	SessionID string `json:"session_id"`
	Result    any    `json:"result"`
}

// AccessibilityTreeResponse returned with the page accessibility tree
type AccessibilityTreeResponse struct {
	SessionID string           `json:"session_id"`
	Nodes     []*driver.AXNode `json:"nodes"`
}

// HealthResponse for GET /health
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// Error Types

// ErrorResponse for all error cases
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`    // Machine-readable error code
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message"` // Human-readable message
}

// Common error codes
const (
	ErrCodeSessionNotFound     = "SESSION_NOT_FOUND"
	ErrCodeSessionNameConflict = "SESSION_NAME_CONFLICT"
	ErrCodeSessionLimit        = "SESSION_LIMIT_REACHED"
	ErrCodeNoEndpoint          = "NO_ENDPOINT_AVAILABLE"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeSessionCreateFailed = "SESSION_CREATE_FAILED"
	ErrCodeCommandFailed       = "COMMAND_FAILED"
	ErrCodeUnsupported         = "UNSUPPORTED_OPERATION"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)
