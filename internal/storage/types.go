package storage

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no record exists for a handle or name.
var ErrNotFound = errors.New("session record not found")

// ErrNameTaken is returned when an owner already has a session by that name.
var ErrNameTaken = errors.New("session name already exists")

// SessionRecord is the persisted state of one managed driver session. It
// holds enough to re-attach to the remote session without creating a new
// one.
type SessionRecord struct {
	Handle          string         `json:"handle"`
	Name            string         `json:"name"`
	Owner           string         `json:"owner,omitempty"`
	Endpoint        string         `json:"endpoint"`
	RemoteSessionID string         `json:"remote_session_id"`
	Dialect         string         `json:"dialect"`
	Capabilities    map[string]any `json:"capabilities,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	LastActivity    time.Time      `json:"last_activity"`
	Status          string         `json:"status"`
}

// Validate checks the fields needed to restore a session.
func (s *SessionRecord) Validate() error {
	if s.Handle == "" {
		return fmt.Errorf("handle is required")
	}
	if s.RemoteSessionID == "" {
		return fmt.Errorf("remote_session_id is required")
	}
	if s.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	return nil
}

// EnsureName generates a name like "session-2026-02-08-1a2b3c4d" when none
// was given.
func (s *SessionRecord) EnsureName() {
	if s.Name != "" {
		return
	}
	short := s.Handle
	if len(short) > 8 {
		short = short[len(short)-8:]
	}
	s.Name = fmt.Sprintf("session-%s-%s", s.CreatedAt.Format("2006-01-02"), short)
}
