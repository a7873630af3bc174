package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/remoteerr"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveCommand("navigate", "w3c", time.Millisecond, nil)
	m.ObserveDebugCommand("Fetch.enable", nil)
	m.RecordDisposition("continue")
	m.SessionOpened()
	m.SessionClosed()
	assert.Nil(t, m.Registry())
}

func TestCommandErrorsByKind(t *testing.T) {
	m := New()
	m.ObserveCommand("findElement", "w3c", time.Millisecond, remoteerr.New(remoteerr.NoSuchElement, "x"))
	m.ObserveCommand("findElement", "w3c", time.Millisecond, errors.New("plain"))
	m.ObserveCommand("findElement", "w3c", time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandErrors.WithLabelValues("findElement", "NoSuchElement")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commandErrors.WithLabelValues("findElement", "other")))
}

func TestDispositionsAndSessions(t *testing.T) {
	m := New()
	m.RecordDisposition("fulfill")
	m.RecordDisposition("fulfill")
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.interceptions.WithLabelValues("fulfill")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
}

func TestHandlerServesExposition(t *testing.T) {
	m := New()
	m.RecordDisposition("continue")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "remote_driver_interceptions_total")
}
