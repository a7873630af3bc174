package cdp

import (
	"context"
	"errors"
	"sync"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/remoteerr"
)

// DialFunc establishes a debug session.
type DialFunc func(ctx context.Context) (*Session, error)

// Lazy defers opening the debugging channel until first use. Every caller
// shares the one session it opens.
type Lazy struct {
	dial DialFunc

	mu      sync.Mutex
	session *Session
	err     error
	closed  bool
}

// NewLazy returns an accessor that opens the channel with dial.
func NewLazy(dial DialFunc) *Lazy {
	return &Lazy{dial: dial}
}

// Unsupported returns an accessor for a remote end without a debugging
// endpoint.
func Unsupported() *Lazy {
	return &Lazy{err: unsupported(ErrNoEndpoint)}
}

// Value returns the session, opening it on first call. Failure surfaces as
// UnsupportedOperation. A remote end lacking an endpoint fails every later
// call the same way; other failures are retried on the next call.
func (l *Lazy) Value(ctx context.Context) (*Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.session != nil {
		return l.session, nil
	}
	if l.err != nil {
		return nil, l.err
	}
	if l.closed {
		return nil, ErrSessionClosed
	}

	s, err := l.dial(ctx)
	if err != nil {
		wrapped := unsupported(err)
		if errors.Is(err, ErrNoEndpoint) {
			l.err = wrapped
		}
		return nil, wrapped
	}
	l.session = s
	return s, nil
}

// Loaded returns the session if it has been opened, without opening it.
func (l *Lazy) Loaded() (*Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session, l.session != nil
}

// Close closes the session if one was opened. Later Value calls fail.
func (l *Lazy) Close() error {
	l.mu.Lock()
	s := l.session
	l.session = nil
	l.closed = true
	l.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Close()
}

func unsupported(err error) error {
	return &remoteerr.Error{
		Kind:    remoteerr.UnsupportedOperation,
		Message: "debugging protocol is not available",
		Err:     err,
	}
}
