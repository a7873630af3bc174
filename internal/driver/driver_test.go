package driver

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/cdp"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/cdp/cdptest"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/command"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/metrics"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/network"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/remoteerr"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/remotetest"
)

func testOptions(remote *remotetest.Server) Options {
	return Options{
		RemoteURL:  remote.URL,
		HTTPClient: &http.Client{Transport: &http.Transport{DisableKeepAlives: true}},
		Metrics:    metrics.New(),
	}
}

func TestDriverQuitTearsDownInOrder(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	ctx := context.Background()

	debug := cdptest.New(t)
	remote := remotetest.New(t, command.DialectW3C)

	d, err := New(ctx, testOptions(remote), map[string]any{"se:cdp": debug.PageURL()})
	require.NoError(t, err)
	assert.Equal(t, "abc", d.Session().SessionID())
	assert.True(t, d.Session().Features().Debugger)

	require.NoError(t, d.Network().StartMonitoring(ctx))
	_, err = d.Scripts().AddInitializationScript(ctx, "x", "window.x = 1")
	require.NoError(t, err)
	require.NoError(t, d.Scripts().AddScriptCallbackBinding(ctx, "notify"))

	s, err := d.DebugSession(ctx)
	require.NoError(t, err)
	assert.NotZero(t, s.Subscriptions())

	require.NoError(t, d.Quit(ctx))

	assert.Equal(t, 1, debug.Count("Fetch.disable"))
	assert.Equal(t, 1, debug.Count("Page.removeScriptToEvaluateOnNewDocument"))
	assert.Equal(t, 1, debug.Count("Runtime.removeBinding"))
	assert.Zero(t, s.Subscriptions())
	assert.Equal(t, 1, remote.Count(command.Quit))

	select {
	case <-s.Done():
	default:
		t.Fatal("debug session still open after quit")
	}

	_, err = d.Execute(ctx, command.Navigate, map[string]any{"url": "http://example/test"})
	assert.True(t, remoteerr.Is(err, remoteerr.InvalidSessionID))

	require.NoError(t, d.Quit(ctx))
	assert.Equal(t, 1, remote.Count(command.Quit))
}

func TestDriverWithoutDebugEndpoint(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	ctx := context.Background()

	remote := remotetest.New(t, command.DialectLegacy)
	d, err := New(ctx, testOptions(remote), map[string]any{"browserName": "x"})
	require.NoError(t, err)
	assert.False(t, d.Session().Features().Debugger)

	err = d.Network().StartMonitoring(ctx)
	assert.True(t, remoteerr.Is(err, remoteerr.UnsupportedOperation))
	assert.ErrorIs(t, err, cdp.ErrNoEndpoint)

	_, err = d.Scripts().AddInitializationScript(ctx, "x", "1")
	assert.True(t, remoteerr.Is(err, remoteerr.UnsupportedOperation))

	resp, err := d.Execute(ctx, command.Navigate, map[string]any{"url": "http://example/test"})
	require.NoError(t, err)
	assert.Nil(t, resp.Value)

	_, err = d.Execute(ctx, command.Quit, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, remote.Count(command.Quit))
	assert.Equal(t, command.DialectLegacy, d.Session().Dialect())
}

func TestDriverDebugURLOverride(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	ctx := context.Background()

	debug := cdptest.New(t)
	remote := remotetest.New(t, command.DialectW3C)

	opts := testOptions(remote)
	opts.DebugURL = debug.BrowserURL()
	d, err := New(ctx, opts, nil)
	require.NoError(t, err)

	s, err := d.DebugSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, cdptest.TargetSession, s.TargetSession())

	require.NoError(t, d.Quit(ctx))
}

func TestDriverStartFailure(t *testing.T) {
	remote := remotetest.New(t, command.DialectW3C)
	remote.Handle(command.NewSession, func(remotetest.Request) remotetest.Reply {
		return remotetest.Fail("session not created", 33, "no matching capabilities")
	})

	_, err := New(context.Background(), testOptions(remote), nil)
	assert.True(t, remoteerr.Is(err, remoteerr.SessionNotCreated))
}

func TestRestoreSkipsSessionCreation(t *testing.T) {
	ctx := context.Background()
	remote := remotetest.New(t, command.DialectW3C)
	remote.SetSessionID("restored")

	d, err := Restore(testOptions(remote), "restored", command.DialectW3C, map[string]any{"browserName": "x"})
	require.NoError(t, err)

	_, err = d.Execute(ctx, command.Navigate, map[string]any{"url": "http://example/test"})
	require.NoError(t, err)

	assert.Zero(t, remote.Count(command.NewSession))
	req, ok := remote.Last(command.Navigate)
	require.True(t, ok)
	assert.Equal(t, "restored", req.Tokens["sessionId"])

	require.NoError(t, d.Detach(ctx))
	assert.Zero(t, remote.Count(command.Quit))
}

func TestQuitUnsubscribesBeforeClosing(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	ctx := context.Background()

	debug := cdptest.New(t)
	remote := remotetest.New(t, command.DialectW3C)
	d, err := New(ctx, testOptions(remote), map[string]any{"se:cdp": debug.PageURL()})
	require.NoError(t, err)

	d.Network().OnRequest(func(network.Request) {})
	require.NoError(t, d.Network().StartMonitoring(ctx))

	s, err := d.DebugSession(ctx)
	require.NoError(t, err)
	s.Subscribe("Log", "entryAdded", func(cdp.Event) {})
	assert.Equal(t, 3, s.Subscriptions())

	require.NoError(t, d.Quit(ctx))
	assert.Zero(t, s.Subscriptions())
}
