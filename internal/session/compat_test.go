package session

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/command"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/remoteerr"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/remotetest"
)

func TestElementFromValue(t *testing.T) {
	el, ok := ElementFromValue(map[string]any{LegacyElementKey: "a"})
	assert.True(t, ok)
	assert.Equal(t, ElementReference("a"), el)

	el, ok = ElementFromValue(map[string]any{W3CElementKey: "b"})
	assert.True(t, ok)
	assert.Equal(t, ElementReference("b"), el)

	_, ok = ElementFromValue("a")
	assert.False(t, ok)
}

func TestFindElementResult(t *testing.T) {
	for _, d := range dialects {
		t.Run(d.String(), func(t *testing.T) {
			c, remote := startedCoordinator(t, d)
			remote.Handle(command.FindElement, func(req remotetest.Request) remotetest.Reply {
				if req.Body["value"] == "#here" {
					return remotetest.Reply{Value: remotetest.ElementValue(d, "el-1")}
				}
				return remotetest.Fail("no such element", 7, "missing")
			})
			ctx := context.Background()

			res, err := c.FindElement(ctx, "css selector", "#here")
			require.NoError(t, err)
			assert.Equal(t, FindResult{Element: "el-1", Found: true}, res)

			res, err = c.FindElement(ctx, "css selector", "#gone")
			require.NoError(t, err)
			assert.False(t, res.Found)
		})
	}
}

func TestFindElementTranslatesLocatorsForW3C(t *testing.T) {
	c, remote := startedCoordinator(t, command.DialectW3C)
	remote.Handle(command.FindElements, func(remotetest.Request) remotetest.Reply {
		return remotetest.Reply{Value: []any{
			remotetest.ElementValue(command.DialectW3C, "a"),
			remotetest.ElementValue(command.DialectW3C, "b"),
		}}
	})
	ctx := context.Background()

	els, err := c.FindElements(ctx, "id", `q"1`)
	require.NoError(t, err)
	assert.Equal(t, []ElementReference{"a", "b"}, els)

	req, _ := remote.Last(command.FindElements)
	assert.Equal(t, "css selector", req.Body["using"])
	assert.Equal(t, `*[id="q\"1"]`, req.Body["value"])

	_, err = c.FindElements(ctx, "class name", "a b")
	assert.True(t, remoteerr.Is(err, remoteerr.InvalidSelector))
}

func TestElementRect(t *testing.T) {
	t.Run("w3c uses one call", func(t *testing.T) {
		c, remote := startedCoordinator(t, command.DialectW3C)
		remote.Handle(command.GetElementRect, func(remotetest.Request) remotetest.Reply {
			return remotetest.Reply{Value: map[string]any{"x": 1, "y": 2.5, "width": 30, "height": 40}}
		})

		r, err := c.ElementRect(context.Background(), "el")
		require.NoError(t, err)
		assert.Equal(t, Rect{X: 1, Y: 2.5, Width: 30, Height: 40}, r)
		assert.Equal(t, 1, remote.Count(command.GetElementRect))
	})

	t.Run("legacy uses location and size", func(t *testing.T) {
		c, remote := startedCoordinator(t, command.DialectLegacy)
		remote.Handle(command.GetElementLocation, func(remotetest.Request) remotetest.Reply {
			return remotetest.Reply{Value: map[string]any{"x": 5, "y": 6}}
		})
		remote.Handle(command.GetElementSize, func(remotetest.Request) remotetest.Reply {
			return remotetest.Reply{Value: map[string]any{"width": 7, "height": 8}}
		})

		r, err := c.ElementRect(context.Background(), "el")
		require.NoError(t, err)
		assert.Equal(t, Rect{X: 5, Y: 6, Width: 7, Height: 8}, r)
	})
}

func TestSwitchToWindowBodies(t *testing.T) {
	c, remote := startedCoordinator(t, command.DialectLegacy)
	require.NoError(t, c.SwitchToWindow(context.Background(), "main"))
	req, _ := remote.Last(command.SwitchToWindow)
	assert.Equal(t, map[string]any{"name": "main"}, req.Body)

	c, remote = startedCoordinator(t, command.DialectW3C)
	require.NoError(t, c.SwitchToWindow(context.Background(), "h-1"))
	req, _ = remote.Last(command.SwitchToWindow)
	assert.Equal(t, map[string]any{"handle": "h-1"}, req.Body)
}

func TestSwitchToWindowByNameFallback(t *testing.T) {
	c, remote := startedCoordinator(t, command.DialectW3C)
	var mu sync.Mutex
	current := "h-1"
	focused := func() string {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	names := map[string]string{"h-1": "first", "h-2": "popup"}
	remote.Handle(command.SwitchToWindow, func(req remotetest.Request) remotetest.Reply {
		h, _ := req.Body["handle"].(string)
		if _, ok := names[h]; !ok {
			return remotetest.Fail("no such window", 23, h)
		}
		mu.Lock()
		current = h
		mu.Unlock()
		return remotetest.Reply{}
	})
	remote.Handle(command.GetWindowHandle, func(remotetest.Request) remotetest.Reply {
		return remotetest.Reply{Value: focused()}
	})
	remote.Handle(command.GetWindowHandles, func(remotetest.Request) remotetest.Reply {
		return remotetest.Reply{Value: []any{"h-1", "h-2"}}
	})
	remote.Handle(command.ExecuteScript, func(remotetest.Request) remotetest.Reply {
		return remotetest.Reply{Value: names[focused()]}
	})
	ctx := context.Background()

	require.NoError(t, c.SwitchToWindow(ctx, "popup"))
	assert.Equal(t, "h-2", focused())

	err := c.SwitchToWindow(ctx, "nowhere")
	assert.True(t, remoteerr.Is(err, remoteerr.NoSuchWindow))
	assert.Equal(t, "h-2", focused())
}

func TestGetAttributeW3C(t *testing.T) {
	c, remote := startedCoordinator(t, command.DialectW3C)
	attrs := map[string]any{"checked": "", "data-x": "raw", "class": "btn"}
	props := map[string]any{"className": "btn primary", "value": "typed"}
	remote.Handle(command.GetElementAttribute, func(req remotetest.Request) remotetest.Reply {
		return remotetest.Reply{Value: attrs[req.Tokens["name"]]}
	})
	remote.Handle(command.GetElementProperty, func(req remotetest.Request) remotetest.Reply {
		return remotetest.Reply{Value: props[req.Tokens["name"]]}
	})
	remote.Handle(command.ExecuteScript, func(req remotetest.Request) remotetest.Reply {
		return remotetest.Reply{Value: "color: red;"}
	})
	ctx := context.Background()

	tests := []struct {
		name  string
		want  string
		isSet bool
	}{
		{"style", "color: red;", true},
		{"checked", "true", true},
		{"disabled", "", false},
		{"class", "btn primary", true},
		{"value", "typed", true},
		{"data-x", "raw", true},
		{"data-none", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, set, err := c.GetAttribute(ctx, "el", tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.isSet, set)
		})
	}

	req, _ := remote.Last(command.ExecuteScript)
	assert.Equal(t, styleScript, req.Body["script"])
	assert.Equal(t, []any{ElementReference("el").Value()}, req.Body["args"])
}

func TestGetAttributeLegacySingleCall(t *testing.T) {
	c, remote := startedCoordinator(t, command.DialectLegacy)
	remote.Handle(command.GetElementAttribute, func(remotetest.Request) remotetest.Reply {
		return remotetest.Reply{Value: "v"}
	})

	got, set, err := c.GetAttribute(context.Background(), "el", "style")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.True(t, set)
	assert.Equal(t, 1, remote.Count(command.GetElementAttribute))
	assert.Zero(t, remote.Count(command.ExecuteScript))
}

func TestSameElement(t *testing.T) {
	ctx := context.Background()

	c, remote := startedCoordinator(t, command.DialectLegacy)
	remote.Handle(command.ElementEquals, func(req remotetest.Request) remotetest.Reply {
		return remotetest.Reply{Value: req.Tokens["other"] == "alias"}
	})

	same, err := c.SameElement(ctx, "a", "a")
	require.NoError(t, err)
	assert.True(t, same)
	assert.Zero(t, remote.Count(command.ElementEquals))

	same, err = c.SameElement(ctx, "a", "alias")
	require.NoError(t, err)
	assert.True(t, same)

	w3c, _ := startedCoordinator(t, command.DialectW3C)
	same, err = w3c.SameElement(ctx, "a", "b")
	require.NoError(t, err)
	assert.False(t, same)
}

func TestExecuteScriptDecodesElements(t *testing.T) {
	c, remote := startedCoordinator(t, command.DialectW3C)
	remote.Handle(command.ExecuteScript, func(remotetest.Request) remotetest.Reply {
		return remotetest.Reply{Value: []any{remotetest.ElementValue(command.DialectW3C, "x"), "text"}}
	})

	got, err := c.ExecuteScript(context.Background(), "return [arguments[0], 'text']", ElementReference("x"))
	require.NoError(t, err)
	assert.Equal(t, []any{ElementReference("x"), "text"}, got)
}

func TestScreenshotDecodesLazily(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n'}
	c, remote := startedCoordinator(t, command.DialectW3C)
	remote.Handle(command.Screenshot, func(remotetest.Request) remotetest.Reply {
		return remotetest.Reply{Value: base64.StdEncoding.EncodeToString(png)}
	})

	shot, err := c.Screenshot(context.Background())
	require.NoError(t, err)
	data, err := shot.Bytes()
	require.NoError(t, err)
	assert.Equal(t, png, data)

	bad := NewScreenshot("!!")
	_, err = bad.Bytes()
	assert.Error(t, err)
}
