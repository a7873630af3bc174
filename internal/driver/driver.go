// Package driver composes one remote session with its debugging channel,
// network interception engine and script engine, and manages many of them.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/cdp"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/command"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/metrics"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/network"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/response"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/script"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/session"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/transport"
)

// Options configures how a driver reaches its remote end.
type Options struct {
	RemoteURL      string
	CommandTimeout time.Duration
	// DebugURL overrides the debugging endpoint advertised in capabilities.
	// Either a ws:// URL or a host:port serving /json/version.
	DebugURL   string
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

// Driver is one remote session and everything built on its debugging
// channel.
type Driver struct {
	opts    Options
	coord   *session.Coordinator
	debug   *cdp.Lazy
	network *network.Engine
	scripts *script.Adapter

	quitOnce sync.Once
	quitErr  error
	released atomic.Bool
}

// New creates a remote session with the requested capabilities.
func New(ctx context.Context, opts Options, caps map[string]any) (*Driver, error) {
	exec, err := newTransport(opts)
	if err != nil {
		return nil, err
	}

	d := assemble(opts, session.NewCoordinator(exec))
	if _, _, err := d.coord.StartSession(ctx, caps); err != nil {
		return nil, fmt.Errorf("failed to start session on %s: %w", opts.RemoteURL, err)
	}
	opts.Metrics.SessionOpened()
	return d, nil
}

// Restore re-attaches to a remote session created earlier, without a
// round trip to the remote end.
func Restore(opts Options, sessionID string, dialect command.Dialect, caps map[string]any) (*Driver, error) {
	exec, err := newTransport(opts)
	if err != nil {
		return nil, err
	}
	d := assemble(opts, session.Attach(exec, sessionID, dialect, caps))
	opts.Metrics.SessionOpened()
	return d, nil
}

func newTransport(opts Options) (*transport.Transport, error) {
	return transport.New(opts.RemoteURL,
		transport.WithHTTPClient(opts.HTTPClient),
		transport.WithTimeout(opts.CommandTimeout),
		transport.WithMetrics(opts.Metrics),
	)
}

func assemble(opts Options, coord *session.Coordinator) *Driver {
	d := &Driver{opts: opts, coord: coord}
	d.debug = cdp.NewLazy(d.dialDebug)
	d.network = network.NewEngine(d.debug, network.WithMetrics(opts.Metrics))
	d.scripts = script.NewAdapter(d.debug)
	return d
}

// dialDebug opens the debugging channel the first time a component needs it.
func (d *Driver) dialDebug(ctx context.Context) (*cdp.Session, error) {
	var endpoint cdp.Endpoint
	if d.opts.DebugURL != "" {
		endpoint = cdp.ParseEndpoint(d.opts.DebugURL)
	} else {
		var ok bool
		endpoint, ok = cdp.EndpointFromCapabilities(d.coord.Capabilities())
		if !ok {
			return nil, cdp.ErrNoEndpoint
		}
	}

	client := d.opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return cdp.Connect(ctx, endpoint, client,
		cdp.WithMetrics(d.opts.Metrics),
		cdp.WithCommandTimeout(d.opts.CommandTimeout),
	)
}

// Execute runs a named command. Quit tears down the whole driver.
func (d *Driver) Execute(ctx context.Context, name string, params map[string]any) (*response.Response, error) {
	if name == command.Quit {
		return nil, d.Quit(ctx)
	}
	return d.coord.Execute(ctx, name, params)
}

// Session returns the session coordinator.
func (d *Driver) Session() *session.Coordinator { return d.coord }

// Network returns the interception engine.
func (d *Driver) Network() *network.Engine { return d.network }

// Scripts returns the script engine.
func (d *Driver) Scripts() *script.Adapter { return d.scripts }

// DebugSession returns the debugging channel, opening it if needed.
func (d *Driver) DebugSession(ctx context.Context) (*cdp.Session, error) {
	return d.debug.Value(ctx)
}

// RemoteURL returns the remote end this driver talks to.
func (d *Driver) RemoteURL() string { return d.opts.RemoteURL }

// Quit stops interception, drops scripts and bindings, unsubscribes every
// debug listener, closes the debugging channel and then ends the remote
// session. Later calls return the first outcome.
func (d *Driver) Quit(ctx context.Context) error {
	d.quitOnce.Do(func() {
		errs := d.teardown(ctx)
		if err := d.coord.EndSession(ctx); err != nil {
			errs = append(errs, fmt.Errorf("end session: %w", err))
		}
		d.release()

		d.quitErr = errors.Join(errs...)
		if d.quitErr != nil {
			slog.Warn("driver quit with errors", "session_id", d.coord.SessionID(), "error", d.quitErr)
		}
	})
	return d.quitErr
}

// Detach tears down the debugging side but leaves the remote session
// running so it can be restored later.
func (d *Driver) Detach(ctx context.Context) error {
	err := errors.Join(d.teardown(ctx)...)
	d.release()
	return err
}

func (d *Driver) teardown(ctx context.Context) []error {
	var errs []error
	if err := d.network.StopMonitoring(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop monitoring: %w", err))
	}
	if err := d.scripts.Reset(ctx); err != nil {
		errs = append(errs, fmt.Errorf("reset scripts: %w", err))
	}
	if s, ok := d.debug.Loaded(); ok {
		s.UnsubscribeAll()
	}
	if err := d.debug.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close debug session: %w", err))
	}
	return errs
}

func (d *Driver) release() {
	if d.released.CompareAndSwap(false, true) {
		d.opts.Metrics.SessionClosed()
	}
}
