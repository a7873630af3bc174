package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/command"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/remoteerr"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/remotetest"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/transport"
)

var dialects = []command.Dialect{command.DialectLegacy, command.DialectW3C}

func newCoordinator(t *testing.T, d command.Dialect) (*Coordinator, *remotetest.Server) {
	t.Helper()
	remote := remotetest.New(t, d)
	tr, err := transport.New(remote.URL)
	require.NoError(t, err)
	return NewCoordinator(tr), remote
}

func startedCoordinator(t *testing.T, d command.Dialect) (*Coordinator, *remotetest.Server) {
	t.Helper()
	c, remote := newCoordinator(t, d)
	_, _, err := c.StartSession(context.Background(), map[string]any{"browserName": "x"})
	require.NoError(t, err)
	return c, remote
}

func TestEndToEndScenario(t *testing.T) {
	for _, d := range dialects {
		t.Run(d.String(), func(t *testing.T) {
			c, remote := newCoordinator(t, d)
			remote.Handle(command.FindElement, func(req remotetest.Request) remotetest.Reply {
				return remotetest.Fail("no such element", 7, "Unable to locate "+req.Body["value"].(string))
			})
			ctx := context.Background()

			id, caps, err := c.StartSession(ctx, map[string]any{"browserName": "x"})
			require.NoError(t, err)
			assert.Equal(t, "abc", id)
			assert.Equal(t, "x", caps["browserName"])
			assert.Equal(t, d, c.Dialect())

			resp, err := c.Execute(ctx, command.Navigate, map[string]any{"url": "http://example/test"})
			require.NoError(t, err)
			assert.Nil(t, resp.Value)

			_, err = c.Execute(ctx, command.FindElement, map[string]any{"using": "css selector", "value": "#missing"})
			assert.True(t, remoteerr.Is(err, remoteerr.NoSuchElement), "got %v", err)

			require.NoError(t, c.EndSession(ctx))
			assert.Equal(t, 1, remote.Count(command.Quit))

			before := len(remote.Requests())
			_, err = c.Execute(ctx, command.GetTitle, nil)
			assert.True(t, remoteerr.Is(err, remoteerr.InvalidSessionID))
			assert.Len(t, remote.Requests(), before)
		})
	}
}

func TestStartSessionSendsBothCapabilityForms(t *testing.T) {
	_, remote := startedCoordinator(t, command.DialectW3C)

	req, ok := remote.Last(command.NewSession)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"browserName": "x"}, req.Body["desiredCapabilities"])
	assert.Equal(t, map[string]any{"firstMatch": []any{map[string]any{"browserName": "x"}}}, req.Body["capabilities"])
}

func TestStartSessionTwice(t *testing.T) {
	c, _ := startedCoordinator(t, command.DialectLegacy)
	_, _, err := c.StartSession(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestStartSessionFailureLeavesCoordinatorIdle(t *testing.T) {
	c, remote := newCoordinator(t, command.DialectW3C)
	remote.Handle(command.NewSession, func(remotetest.Request) remotetest.Reply {
		return remotetest.Fail("session not created", 33, "no browser")
	})

	_, _, err := c.StartSession(context.Background(), nil)
	assert.True(t, remoteerr.Is(err, remoteerr.SessionNotCreated))
	assert.Equal(t, StatusIdle, c.Status())
}

func TestExecuteBeforeStart(t *testing.T) {
	c, remote := newCoordinator(t, command.DialectW3C)
	_, err := c.Execute(context.Background(), command.GetTitle, nil)
	assert.True(t, remoteerr.Is(err, remoteerr.NoSuchDriver))
	assert.Empty(t, remote.Requests())
}

func TestEndSessionTearsDownOnFailure(t *testing.T) {
	c, remote := startedCoordinator(t, command.DialectW3C)
	remote.Handle(command.Quit, func(remotetest.Request) remotetest.Reply {
		return remotetest.Fail("unknown error", 13, "boom")
	})

	err := c.EndSession(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StatusEnded, c.Status())

	assert.NoError(t, c.EndSession(context.Background()))
	assert.Equal(t, 1, remote.Count(command.Quit))
}

func TestExecuteQuitRoutesToEndSession(t *testing.T) {
	c, remote := startedCoordinator(t, command.DialectLegacy)

	_, err := c.Execute(context.Background(), command.Quit, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, c.Status())
	assert.Equal(t, 1, remote.Count(command.Quit))
}

func TestAttachSkipsNegotiation(t *testing.T) {
	remote := remotetest.New(t, command.DialectW3C)
	tr, err := transport.New(remote.URL)
	require.NoError(t, err)

	c := Attach(tr, "restored", command.DialectW3C, map[string]any{"browserName": "x"})
	_, err = c.Execute(context.Background(), command.GetTitle, nil)
	require.NoError(t, err)

	req, ok := remote.Last(command.GetTitle)
	require.True(t, ok)
	assert.Equal(t, "/session/restored/title", req.Path)
	assert.True(t, c.Features().JavaScript)
}

func TestFeaturesFromLegacyCapabilities(t *testing.T) {
	c, _ := newCoordinator(t, command.DialectLegacy)
	_, _, err := c.StartSession(context.Background(), map[string]any{
		"javascriptEnabled": true,
		"rotatable":         true,
		"goog:chromeOptions": map[string]any{
			"debuggerAddress": "localhost:9222",
		},
	})
	require.NoError(t, err)

	f := c.Features()
	assert.True(t, f.JavaScript)
	assert.True(t, f.Rotation)
	assert.False(t, f.Screenshots)
	assert.True(t, f.Debugger)
}
