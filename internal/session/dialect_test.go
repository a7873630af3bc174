package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/command"
)

func TestDialectNegotiatesOnce(t *testing.T) {
	d := &Dialect{}
	assert.False(t, d.Resolved())
	assert.Equal(t, command.DialectLegacy, d.Registry().Dialect())

	assert.True(t, d.Resolve(command.DialectW3C))
	assert.True(t, d.Resolved())
	assert.Equal(t, command.DialectW3C, d.Current())

	assert.False(t, d.Resolve(command.DialectLegacy))
	assert.Equal(t, command.DialectW3C, d.Current())
}

func TestNewDialectIsResolved(t *testing.T) {
	d := NewDialect(command.DialectLegacy)
	assert.True(t, d.Resolved())
	assert.False(t, d.Resolve(command.DialectW3C))
	assert.Equal(t, command.DialectLegacy, d.Current())
}
