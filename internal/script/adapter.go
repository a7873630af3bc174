// Package script manages scripts injected into every new document, named
// callback bindings, and the console and exception events of the page.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/cdp"
)

// ErrDuplicateBinding is returned when a binding name is already registered.
var ErrDuplicateBinding = errors.New("script callback binding already exists")

// Source yields the debug session the adapter works on.
type Source interface {
	Value(ctx context.Context) (*cdp.Session, error)
}

// InitializationScript runs in every new document before page scripts.
type InitializationScript struct {
	Name   string
	Source string
	// ID identifies the script on the debugging channel.
	ID string
}

// Adapter is the script engine of one driver.
type Adapter struct {
	source Source

	mu       sync.Mutex
	session  *cdp.Session
	subs     []cdp.Subscription
	scripts  map[string]*InitializationScript
	bindings map[string]bool

	handlersMu sync.RWMutex
	nextID     uint64
	console    map[uint64]func(ConsoleMessage)
	exceptions map[uint64]func(ScriptException)
	calls      map[uint64]func(BindingCall)
}

// NewAdapter returns an adapter that opens its debug session lazily.
func NewAdapter(source Source) *Adapter {
	return &Adapter{
		source:     source,
		scripts:    make(map[string]*InitializationScript),
		bindings:   make(map[string]bool),
		console:    make(map[uint64]func(ConsoleMessage)),
		exceptions: make(map[uint64]func(ScriptException)),
		calls:      make(map[uint64]func(BindingCall)),
	}
}

// StartEventMonitoring enables page and runtime reporting without
// registering a script.
func (a *Adapter) StartEventMonitoring(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.ensureLocked(ctx)
	return err
}

// ensureLocked enables the Page and Runtime domains and subscribes to their
// events once per session.
func (a *Adapter) ensureLocked(ctx context.Context) (*cdp.Session, error) {
	s, err := a.source.Value(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Enable(ctx, proto.PageEnable{}); err != nil {
		return nil, fmt.Errorf("failed to enable page domain: %w", err)
	}
	if err := s.Enable(ctx, proto.RuntimeEnable{}); err != nil {
		return nil, fmt.Errorf("failed to enable runtime domain: %w", err)
	}

	if a.session != s {
		a.session = s
		a.subs = []cdp.Subscription{
			s.Subscribe("Runtime", "consoleAPICalled", a.onConsole),
			s.Subscribe("Runtime", "exceptionThrown", a.onException),
			s.Subscribe("Runtime", "bindingCalled", a.onBindingCalled),
		}
	}
	return s, nil
}

// AddInitializationScript registers source under name. A name already
// registered returns the existing script without a remote call.
func (a *Adapter) AddInitializationScript(ctx context.Context, name, source string) (*InitializationScript, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.scripts[name]; ok {
		return existing, nil
	}

	s, err := a.ensureLocked(ctx)
	if err != nil {
		return nil, err
	}

	res, err := proto.PageAddScriptToEvaluateOnNewDocument{Source: source}.Call(s.Client(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to add initialization script %q: %w", name, err)
	}

	script := &InitializationScript{Name: name, Source: source, ID: string(res.Identifier)}
	a.scripts[name] = script
	slog.Debug("initialization script added", "name", name, "script_id", script.ID)
	return script, nil
}

// RemoveInitializationScript drops the script locally and on the channel.
// Unknown names are ignored.
func (a *Adapter) RemoveInitializationScript(ctx context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.removeScriptLocked(ctx, name)
}

func (a *Adapter) removeScriptLocked(ctx context.Context, name string) error {
	script, ok := a.scripts[name]
	if !ok {
		return nil
	}
	delete(a.scripts, name)

	if a.session == nil {
		return nil
	}
	err := proto.PageRemoveScriptToEvaluateOnNewDocument{
		Identifier: proto.PageScriptIdentifier(script.ID),
	}.Call(a.session.Client(ctx))
	if err != nil {
		return fmt.Errorf("failed to remove initialization script %q: %w", name, err)
	}
	return nil
}

// ClearInitializationScripts removes every script. It is safe to call with
// none registered.
func (a *Adapter) ClearInitializationScripts(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for _, name := range sortedKeys(a.scripts) {
		if err := a.removeScriptLocked(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InitializationScripts returns the registered scripts ordered by name.
func (a *Adapter) InitializationScripts() []*InitializationScript {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*InitializationScript, 0, len(a.scripts))
	for _, name := range sortedKeys(a.scripts) {
		out = append(out, a.scripts[name])
	}
	return out
}

// AddScriptCallbackBinding exposes a page function name whose calls arrive
// as BindingCall events.
func (a *Adapter) AddScriptCallbackBinding(ctx context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bindings[name] {
		return fmt.Errorf("%w: %s", ErrDuplicateBinding, name)
	}

	s, err := a.ensureLocked(ctx)
	if err != nil {
		return err
	}
	if err := (proto.RuntimeAddBinding{Name: name}).Call(s.Client(ctx)); err != nil {
		return fmt.Errorf("failed to add binding %q: %w", name, err)
	}
	a.bindings[name] = true
	return nil
}

// RemoveScriptCallbackBinding removes a binding. Unknown names are ignored.
func (a *Adapter) RemoveScriptCallbackBinding(ctx context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.removeBindingLocked(ctx, name)
}

func (a *Adapter) removeBindingLocked(ctx context.Context, name string) error {
	if !a.bindings[name] {
		return nil
	}
	delete(a.bindings, name)

	if a.session == nil {
		return nil
	}
	if err := (proto.RuntimeRemoveBinding{Name: name}).Call(a.session.Client(ctx)); err != nil {
		return fmt.Errorf("failed to remove binding %q: %w", name, err)
	}
	return nil
}

// ClearScriptCallbackBindings removes every binding. It is safe to call
// with none registered.
func (a *Adapter) ClearScriptCallbackBindings(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for _, name := range sortedKeys(a.bindings) {
		if err := a.removeBindingLocked(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ScriptCallbackBindings returns the registered binding names, sorted.
func (a *Adapter) ScriptCallbackBindings() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return sortedKeys(a.bindings)
}

// Reset clears scripts and bindings and drops the adapter's event
// subscriptions.
func (a *Adapter) Reset(ctx context.Context) error {
	errs := errors.Join(a.ClearInitializationScripts(ctx), a.ClearScriptCallbackBindings(ctx))

	a.mu.Lock()
	if a.session != nil {
		for _, sub := range a.subs {
			a.session.Unsubscribe(sub)
		}
	}
	a.session, a.subs = nil, nil
	a.mu.Unlock()
	return errs
}

// OnConsole registers fn for console messages. The returned func removes it.
func (a *Adapter) OnConsole(fn func(ConsoleMessage)) func() {
	return register(a, a.console, fn)
}

// OnException registers fn for uncaught exceptions.
func (a *Adapter) OnException(fn func(ScriptException)) func() {
	return register(a, a.exceptions, fn)
}

// OnBinding registers fn for binding calls.
func (a *Adapter) OnBinding(fn func(BindingCall)) func() {
	return register(a, a.calls, fn)
}

func register[T any](a *Adapter, m map[uint64]func(T), fn func(T)) func() {
	a.handlersMu.Lock()
	a.nextID++
	id := a.nextID
	m[id] = fn
	a.handlersMu.Unlock()

	return func() {
		a.handlersMu.Lock()
		delete(m, id)
		a.handlersMu.Unlock()
	}
}

func snapshot[T any](a *Adapter, m map[uint64]func(T)) []func(T) {
	a.handlersMu.RLock()
	defer a.handlersMu.RUnlock()

	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]func(T), 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func (a *Adapter) onConsole(ev cdp.Event) {
	var called consoleAPICalledEvent
	if err := ev.Decode(&called); err != nil {
		slog.Warn("dropping console event", "error", err)
		return
	}
	msg := ConsoleMessage{Level: called.Type, Timestamp: millis(called.Timestamp)}
	for _, arg := range called.Args {
		msg.Args = append(msg.Args, arg.value())
	}
	for _, fn := range snapshot(a, a.console) {
		fn(msg)
	}
}

func (a *Adapter) onException(ev cdp.Event) {
	var thrown exceptionThrownEvent
	if err := ev.Decode(&thrown); err != nil {
		slog.Warn("dropping exception event", "error", err)
		return
	}
	d := thrown.ExceptionDetails
	exc := ScriptException{
		Message:   d.Text,
		URL:       d.URL,
		Line:      d.LineNumber,
		Column:    d.ColumnNumber,
		Timestamp: millis(thrown.Timestamp),
	}
	if d.Exception != nil && d.Exception.Description != "" {
		exc.Message = strings.TrimSpace(d.Text + " " + d.Exception.Description)
	}
	for _, fn := range snapshot(a, a.exceptions) {
		fn(exc)
	}
}

func (a *Adapter) onBindingCalled(ev cdp.Event) {
	var called bindingCalledEvent
	if err := ev.Decode(&called); err != nil {
		slog.Warn("dropping binding event", "error", err)
		return
	}

	a.mu.Lock()
	known := a.bindings[called.Name]
	a.mu.Unlock()
	if !known {
		return
	}

	call := BindingCall{Name: called.Name, Payload: called.Payload, ExecutionContextID: called.ExecutionContextID}
	for _, fn := range snapshot(a, a.calls) {
		fn(call)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
