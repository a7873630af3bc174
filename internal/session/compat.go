package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/command"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/remoteerr"
)

// Element identity keys of each dialect.
const (
	LegacyElementKey = "ELEMENT"
	W3CElementKey    = "element-6066-11e4-a52f-4d5f6e6e2f5c"
)

// ElementReference is an element id handed out by the remote end.
type ElementReference string

// ElementFromValue extracts a reference from an element object of either
// dialect.
func ElementFromValue(v any) (ElementReference, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	for _, key := range []string{W3CElementKey, LegacyElementKey} {
		if id, ok := m[key].(string); ok && id != "" {
			return ElementReference(id), true
		}
	}
	return "", false
}

// Value encodes the reference as a script argument understood by both
// dialects.
func (e ElementReference) Value() map[string]any {
	return map[string]any{
		LegacyElementKey: string(e),
		W3CElementKey:    string(e),
	}
}

// FindResult is the outcome of a single element lookup. Found is false,
// with a nil error, when the remote end reported no such element.
type FindResult struct {
	Element ElementReference
	Found   bool
}

// FindElement looks up one element. A missing element is an ordinary
// result so polling callers need no error handling for it.
func (c *Coordinator) FindElement(ctx context.Context, using, value string) (FindResult, error) {
	using, value, err := c.locator(using, value)
	if err != nil {
		return FindResult{}, err
	}

	resp, err := c.Execute(ctx, command.FindElement, map[string]any{"using": using, "value": value})
	if remoteerr.Is(err, remoteerr.NoSuchElement) {
		return FindResult{}, nil
	}
	if err != nil {
		return FindResult{}, err
	}

	el, ok := ElementFromValue(resp.Value)
	if !ok {
		return FindResult{}, remoteerr.New(remoteerr.UnhandledError, "findElement returned no element reference")
	}
	return FindResult{Element: el, Found: true}, nil
}

// FindElements looks up every matching element.
func (c *Coordinator) FindElements(ctx context.Context, using, value string) ([]ElementReference, error) {
	using, value, err := c.locator(using, value)
	if err != nil {
		return nil, err
	}

	resp, err := c.Execute(ctx, command.FindElements, map[string]any{"using": using, "value": value})
	if err != nil {
		return nil, err
	}

	items, _ := resp.Value.([]any)
	out := make([]ElementReference, 0, len(items))
	for _, item := range items {
		if el, ok := ElementFromValue(item); ok {
			out = append(out, el)
		}
	}
	return out, nil
}

// locator maps legacy-only strategies onto CSS for the standardized dialect.
func (c *Coordinator) locator(using, value string) (string, string, error) {
	if c.Dialect() != command.DialectW3C {
		return using, value, nil
	}
	switch using {
	case "id":
		return "css selector", `*[id="` + cssString(value) + `"]`, nil
	case "name":
		return "css selector", `*[name="` + cssString(value) + `"]`, nil
	case "tag name":
		return "css selector", value, nil
	case "class name":
		if strings.ContainsAny(value, " \t\n") {
			return "", "", remoteerr.New(remoteerr.InvalidSelector, "compound class names are not permitted: %q", value)
		}
		return "css selector", "." + value, nil
	}
	return using, value, nil
}

func cssString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// Rect is an element's position and size in CSS pixels.
type Rect struct {
	X, Y, Width, Height float64
}

// ElementRect returns the element's rect: one call in the standardized
// dialect, location plus size in the legacy one.
func (c *Coordinator) ElementRect(ctx context.Context, el ElementReference) (Rect, error) {
	if c.Dialect() == command.DialectW3C {
		resp, err := c.Execute(ctx, command.GetElementRect, map[string]any{"id": string(el)})
		if err != nil {
			return Rect{}, err
		}
		m := resp.Map()
		return Rect{X: number(m["x"]), Y: number(m["y"]), Width: number(m["width"]), Height: number(m["height"])}, nil
	}

	loc, err := c.Execute(ctx, command.GetElementLocation, map[string]any{"id": string(el)})
	if err != nil {
		return Rect{}, err
	}
	size, err := c.Execute(ctx, command.GetElementSize, map[string]any{"id": string(el)})
	if err != nil {
		return Rect{}, err
	}
	l, s := loc.Map(), size.Map()
	return Rect{X: number(l["x"]), Y: number(l["y"]), Width: number(s["width"]), Height: number(s["height"])}, nil
}

func number(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

const windowNameScript = "return window.name"

// SwitchToWindow focuses a window by handle or name. The standardized
// dialect only accepts handles, so a NoSuchWindow there falls back to
// searching the open windows for a matching window.name.
func (c *Coordinator) SwitchToWindow(ctx context.Context, nameOrHandle string) error {
	if c.Dialect() != command.DialectW3C {
		_, err := c.Execute(ctx, command.SwitchToWindow, map[string]any{"name": nameOrHandle})
		return err
	}

	_, err := c.Execute(ctx, command.SwitchToWindow, map[string]any{"handle": nameOrHandle})
	if !remoteerr.Is(err, remoteerr.NoSuchWindow) {
		return err
	}
	notFound := err

	current, err := c.Execute(ctx, command.GetWindowHandle, nil)
	if err != nil {
		return notFound
	}
	handles, err := c.Execute(ctx, command.GetWindowHandles, nil)
	if err != nil {
		return notFound
	}

	list, _ := handles.Value.([]any)
	for _, h := range list {
		handle, _ := h.(string)
		if _, err := c.Execute(ctx, command.SwitchToWindow, map[string]any{"handle": handle}); err != nil {
			continue
		}
		name, err := c.Execute(ctx, command.ExecuteScript, map[string]any{"script": windowNameScript, "args": []any{}})
		if err == nil && name.String() == nameOrHandle {
			return nil
		}
	}

	_, _ = c.Execute(ctx, command.SwitchToWindow, map[string]any{"handle": current.String()})
	return notFound
}

// booleanAttributes are reported as "true" when present and null otherwise.
var booleanAttributes = map[string]bool{
	"allowfullscreen": true, "allowpaymentrequest": true, "allowusermedia": true,
	"async": true, "autofocus": true, "autoplay": true, "checked": true,
	"compact": true, "complete": true, "controls": true, "declare": true,
	"default": true, "defaultchecked": true, "defaultselected": true, "defer": true,
	"disabled": true, "ended": true, "formnovalidate": true, "hidden": true,
	"indeterminate": true, "iscontenteditable": true, "ismap": true, "itemscope": true,
	"loop": true, "multiple": true, "muted": true, "nohref": true, "noresize": true,
	"noshade": true, "novalidate": true, "nowrap": true, "open": true, "paused": true,
	"playsinline": true, "pubdate": true, "readonly": true, "required": true,
	"reversed": true, "scoped": true, "seamless": true, "seeking": true,
	"selected": true, "truespeed": true, "typemustmatch": true, "willvalidate": true,
}

// propertyAliases maps attribute names onto the DOM property holding them.
var propertyAliases = map[string]string{
	"class":    "className",
	"readonly": "readOnly",
}

const styleScript = "return arguments[0].style.cssText"

// GetAttribute returns an attribute value and whether it is set. The legacy
// dialect resolves it remotely in one call. The standardized dialect applies
// these rules in order: style reads the CSS text through a script, boolean
// attributes report "true" when present, a scalar DOM property wins next,
// and the raw attribute is the last resort.
func (c *Coordinator) GetAttribute(ctx context.Context, el ElementReference, name string) (string, bool, error) {
	if c.Dialect() != command.DialectW3C {
		return c.rawAttribute(ctx, el, name)
	}

	lower := strings.ToLower(name)
	if lower == "style" {
		v, err := c.ExecuteScript(ctx, styleScript, el)
		if err != nil {
			return "", false, err
		}
		s, ok := scalar(v)
		return s, ok, nil
	}

	if booleanAttributes[lower] {
		_, set, err := c.rawAttribute(ctx, el, name)
		if err != nil || !set {
			return "", false, err
		}
		return "true", true, nil
	}

	prop := name
	if alias, ok := propertyAliases[lower]; ok {
		prop = alias
	}
	resp, err := c.Execute(ctx, command.GetElementProperty, map[string]any{"id": string(el), "name": prop})
	if err != nil {
		return "", false, err
	}
	if s, ok := scalar(resp.Value); ok {
		return s, true, nil
	}
	return c.rawAttribute(ctx, el, name)
}

func (c *Coordinator) rawAttribute(ctx context.Context, el ElementReference, name string) (string, bool, error) {
	resp, err := c.Execute(ctx, command.GetElementAttribute, map[string]any{"id": string(el), "name": name})
	if err != nil {
		return "", false, err
	}
	s, ok := scalar(resp.Value)
	return s, ok, nil
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	}
	return "", false
}

// SameElement reports whether two references denote the same element.
// Identical ids short-circuit; otherwise only the legacy remote end can
// confirm equality, and the standardized dialect treats distinct ids as
// distinct elements.
func (c *Coordinator) SameElement(ctx context.Context, a, b ElementReference) (bool, error) {
	if a == b {
		return true, nil
	}
	if c.Dialect() == command.DialectW3C {
		return false, nil
	}
	resp, err := c.Execute(ctx, command.ElementEquals, map[string]any{"id": string(a), "other": string(b)})
	if err != nil {
		return false, err
	}
	return resp.Bool(), nil
}

// ExecuteScript runs a synchronous script. Element references among args
// are encoded for both dialects and element objects in the result come back
// as ElementReference values.
func (c *Coordinator) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	encoded := make([]any, len(args))
	for i, a := range args {
		encoded[i] = encodeArg(a)
	}
	resp, err := c.Execute(ctx, command.ExecuteScript, map[string]any{"script": script, "args": encoded})
	if err != nil {
		return nil, err
	}
	return decodeResult(resp.Value), nil
}

func encodeArg(v any) any {
	switch x := v.(type) {
	case ElementReference:
		return x.Value()
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = encodeArg(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = encodeArg(item)
		}
		return out
	}
	return v
}

func decodeResult(v any) any {
	if el, ok := ElementFromValue(v); ok {
		return el
	}
	switch x := v.(type) {
	case []any:
		for i, item := range x {
			x[i] = decodeResult(item)
		}
	case map[string]any:
		for k, item := range x {
			x[k] = decodeResult(item)
		}
	}
	return v
}

// Screenshot is a base64 image as returned by the remote end. Decoding
// happens on first access and is byte-exact.
type Screenshot struct {
	encoded string

	once sync.Once
	data []byte
	err  error
}

// NewScreenshot wraps a base64 payload.
func NewScreenshot(encoded string) *Screenshot {
	return &Screenshot{encoded: encoded}
}

// Base64 returns the payload as received.
func (s *Screenshot) Base64() string {
	return s.encoded
}

// Bytes decodes the payload.
func (s *Screenshot) Bytes() ([]byte, error) {
	s.once.Do(func() {
		s.data, s.err = base64.StdEncoding.DecodeString(s.encoded)
		if s.err != nil {
			s.err = fmt.Errorf("failed to decode screenshot: %w", s.err)
		}
	})
	return s.data, s.err
}

// Screenshot captures the current viewport.
func (c *Coordinator) Screenshot(ctx context.Context) (*Screenshot, error) {
	resp, err := c.Execute(ctx, command.Screenshot, nil)
	if err != nil {
		return nil, err
	}
	// Some remote ends answer with the image itself instead of JSON.
	if raw, ok := resp.Value.([]byte); ok {
		s := NewScreenshot(base64.StdEncoding.EncodeToString(raw))
		s.once.Do(func() { s.data = raw })
		return s, nil
	}
	return NewScreenshot(resp.String()), nil
}
