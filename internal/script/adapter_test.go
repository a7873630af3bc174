package script

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/cdp"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/cdp/cdptest"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/remoteerr"
)

func newAdapter(t *testing.T) (*Adapter, *cdptest.Server, *cdp.Lazy) {
	t.Helper()
	t.Cleanup(func() { goleak.VerifyNone(t) })

	server := cdptest.New(t)
	lazy := cdp.NewLazy(func(ctx context.Context) (*cdp.Session, error) {
		return cdp.Dial(ctx, server.PageURL())
	})
	t.Cleanup(func() { _ = lazy.Close() })
	return NewAdapter(lazy), server, lazy
}

func TestAddInitializationScriptIsIdempotent(t *testing.T) {
	a, server, _ := newAdapter(t)
	ctx := context.Background()

	first, err := a.AddInitializationScript(ctx, "x", "window.x = 1")
	require.NoError(t, err)
	second, err := a.AddInitializationScript(ctx, "x", "window.x = 2")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "window.x = 1", second.Source)
	assert.Equal(t, "script-1", first.ID)
	assert.Equal(t, 1, server.Count("Page.addScriptToEvaluateOnNewDocument"))
}

func TestDomainsEnabledLazilyOnce(t *testing.T) {
	a, server, lazy := newAdapter(t)
	ctx := context.Background()

	_, ok := lazy.Loaded()
	assert.False(t, ok)

	_, err := a.AddInitializationScript(ctx, "a", "1")
	require.NoError(t, err)
	_, err = a.AddInitializationScript(ctx, "b", "2")
	require.NoError(t, err)
	require.NoError(t, a.AddScriptCallbackBinding(ctx, "notify"))

	assert.Equal(t, 1, server.Count("Page.enable"))
	assert.Equal(t, 1, server.Count("Runtime.enable"))

	s, ok := lazy.Loaded()
	require.True(t, ok)
	assert.Equal(t, 3, s.Subscriptions())
}

func TestRemoveInitializationScript(t *testing.T) {
	a, server, _ := newAdapter(t)
	ctx := context.Background()

	script, err := a.AddInitializationScript(ctx, "x", "1")
	require.NoError(t, err)

	require.NoError(t, a.RemoveInitializationScript(ctx, "x"))
	require.NoError(t, a.RemoveInitializationScript(ctx, "x"))
	require.NoError(t, a.RemoveInitializationScript(ctx, "unknown"))

	frames := server.Frames("Page.removeScriptToEvaluateOnNewDocument")
	require.Len(t, frames, 1)
	var params struct {
		Identifier string `json:"identifier"`
	}
	require.NoError(t, frames[0].Decode(&params))
	assert.Equal(t, script.ID, params.Identifier)
	assert.Empty(t, a.InitializationScripts())
}

func TestClearWithNothingRegistered(t *testing.T) {
	a := NewAdapter(cdp.Unsupported())
	ctx := context.Background()

	assert.NoError(t, a.ClearInitializationScripts(ctx))
	assert.NoError(t, a.ClearScriptCallbackBindings(ctx))
	assert.NoError(t, a.Reset(ctx))
}

func TestUnsupportedEndpoint(t *testing.T) {
	a := NewAdapter(cdp.Unsupported())
	_, err := a.AddInitializationScript(context.Background(), "x", "1")
	assert.True(t, remoteerr.Is(err, remoteerr.UnsupportedOperation))
	assert.Empty(t, a.InitializationScripts())
}

func TestBindings(t *testing.T) {
	a, server, _ := newAdapter(t)
	ctx := context.Background()

	require.NoError(t, a.AddScriptCallbackBinding(ctx, "notify"))
	err := a.AddScriptCallbackBinding(ctx, "notify")
	assert.ErrorIs(t, err, ErrDuplicateBinding)
	assert.Equal(t, 1, server.Count("Runtime.addBinding"))

	calls := make(chan BindingCall, 2)
	remove := a.OnBinding(func(c BindingCall) { calls <- c })
	defer remove()

	server.Emit(t, "Runtime.bindingCalled", map[string]any{"name": "other", "payload": "ignored", "executionContextId": 1})
	server.Emit(t, "Runtime.bindingCalled", map[string]any{"name": "notify", "payload": "hello", "executionContextId": 2})

	select {
	case c := <-calls:
		assert.Equal(t, BindingCall{Name: "notify", Payload: "hello", ExecutionContextID: 2}, c)
	case <-time.After(time.Second):
		t.Fatal("binding call not delivered")
	}

	require.NoError(t, a.ClearScriptCallbackBindings(ctx))
	assert.Equal(t, 1, server.Count("Runtime.removeBinding"))
	assert.Empty(t, a.ScriptCallbackBindings())
}

func TestConsoleAndExceptionEvents(t *testing.T) {
	a, server, _ := newAdapter(t)
	require.NoError(t, a.StartEventMonitoring(context.Background()))

	messages := make(chan ConsoleMessage, 1)
	exceptions := make(chan ScriptException, 1)
	a.OnConsole(func(m ConsoleMessage) { messages <- m })
	a.OnException(func(e ScriptException) { exceptions <- e })

	server.Emit(t, "Runtime.consoleAPICalled", map[string]any{
		"type":      "warning",
		"timestamp": 1700000000000.0,
		"args": []map[string]any{
			{"type": "string", "value": "count"},
			{"type": "number", "value": 3},
			{"type": "object", "description": "Window"},
		},
	})
	server.Emit(t, "Runtime.exceptionThrown", map[string]any{
		"timestamp": 1700000000000.0,
		"exceptionDetails": map[string]any{
			"text":         "Uncaught",
			"lineNumber":   4,
			"columnNumber": 2,
			"url":          "http://example/app.js",
			"exception":    map[string]any{"type": "object", "description": "Error: boom"},
		},
	})

	select {
	case m := <-messages:
		assert.Equal(t, "warning", m.Level)
		assert.Equal(t, "count 3 Window", m.Text())
		assert.Equal(t, int64(1700000000000), m.Timestamp.UnixMilli())
	case <-time.After(time.Second):
		t.Fatal("console message not delivered")
	}

	select {
	case e := <-exceptions:
		assert.Equal(t, "Uncaught Error: boom", e.Message)
		assert.Equal(t, 4, e.Line)
		assert.Equal(t, "http://example/app.js", e.URL)
	case <-time.After(time.Second):
		t.Fatal("exception not delivered")
	}
}

func TestResetDropsSubscriptions(t *testing.T) {
	a, _, lazy := newAdapter(t)
	ctx := context.Background()

	_, err := a.AddInitializationScript(ctx, "x", "1")
	require.NoError(t, err)
	require.NoError(t, a.AddScriptCallbackBinding(ctx, "cb"))

	require.NoError(t, a.Reset(ctx))
	s, _ := lazy.Loaded()
	assert.Zero(t, s.Subscriptions())
	assert.Empty(t, a.InitializationScripts())
	assert.Empty(t, a.ScriptCallbackBindings())
}
