package session

import (
	"sync/atomic"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/command"
)

const (
	negotiating int32 = iota
	resolvedLegacy
	resolvedW3C
)

// Dialect is the two-state negotiation machine Negotiating -> Legacy | W3C.
// The transition is taken at most once; every read returns an immutable
// registry snapshot.
type Dialect struct {
	state atomic.Int32
}

// NewDialect returns a machine that is already resolved to d.
func NewDialect(d command.Dialect) *Dialect {
	dl := &Dialect{}
	dl.Resolve(d)
	return dl
}

// Registry returns the active registry. While negotiating this is the legacy
// registry, whose session-creation entry is shared by both dialects.
func (d *Dialect) Registry() *command.Registry {
	if d.state.Load() == resolvedW3C {
		return command.W3CRegistry()
	}
	return command.LegacyRegistry()
}

// Resolve leaves the negotiating state. It reports whether this call took
// the transition; later calls never switch back.
func (d *Dialect) Resolve(to command.Dialect) bool {
	next := resolvedLegacy
	if to == command.DialectW3C {
		next = resolvedW3C
	}
	return d.state.CompareAndSwap(negotiating, next)
}

// Resolved reports whether negotiation is over.
func (d *Dialect) Resolved() bool {
	return d.state.Load() != negotiating
}

// Current returns the active dialect.
func (d *Dialect) Current() command.Dialect {
	return d.Registry().Dialect()
}
