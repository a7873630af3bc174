package network

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/tidwall/gjson"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/cdp"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/metrics"
)

// Dispositions recorded per resolved event.
const (
	DispositionContinued     = "continued"
	DispositionTransformed   = "transformed"
	DispositionFulfilled     = "fulfilled"
	DispositionAuthProvided  = "auth_provided"
	DispositionAuthCancelled = "auth_cancelled"
	DispositionFailed        = "failed"
)

const (
	observerQueueSize  = 64
	dispositionTimeout = 10 * time.Second
)

// Source yields the debug session the engine works on. *cdp.Lazy
// implements it.
type Source interface {
	Value(ctx context.Context) (*cdp.Session, error)
}

// Engine intercepts requests, responses and authentication challenges
// and resolves each of them exactly once.
type Engine struct {
	source  Source
	metrics *metrics.Metrics

	mu                sync.Mutex
	requestHandlers   []*RequestHandler
	authHandlers      []*AuthenticationHandler
	responseHandlers  []*ResponseHandler
	requestObservers  []func(Request)
	responseObservers []func(InterceptedResponse)
	attemptedAuth     map[string]bool

	monitoring bool
	session    *cdp.Session
	subs       []cdp.Subscription
	inflight   sync.WaitGroup
	notify     chan func()
	notifyDone chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records every disposition.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine returns an engine that opens its debug session from source on
// StartMonitoring.
func NewEngine(source Source, opts ...Option) *Engine {
	e := &Engine{
		source:        source,
		attemptedAuth: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddRequestHandler appends h to the request chain. Handlers are evaluated
// in insertion order and the first match decides.
func (e *Engine) AddRequestHandler(h *RequestHandler) error {
	if h == nil || h.match == nil || (h.transform == nil) == (h.supply == nil) {
		return ErrInvalidHandler
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requestHandlers = append(e.requestHandlers, h)
	return nil
}

// AddAuthenticationHandler appends h to the authentication chain.
func (e *Engine) AddAuthenticationHandler(h *AuthenticationHandler) error {
	if h == nil || h.match == nil {
		return ErrInvalidHandler
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.authHandlers = append(e.authHandlers, h)
	return nil
}

// AddResponseHandler appends h to the response chain.
func (e *Engine) AddResponseHandler(h *ResponseHandler) error {
	if h == nil || h.match == nil || h.transform == nil {
		return ErrInvalidHandler
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responseHandlers = append(e.responseHandlers, h)
	return nil
}

// ClearRequestHandlers removes every request handler.
func (e *Engine) ClearRequestHandlers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requestHandlers = nil
}

// ClearAuthenticationHandlers removes every authentication handler.
func (e *Engine) ClearAuthenticationHandlers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.authHandlers = nil
}

// ClearResponseHandlers removes every response handler.
func (e *Engine) ClearResponseHandlers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responseHandlers = nil
}

// OnRequest registers an observer told about every intercepted request.
// Observers run on their own goroutine; notifications are dropped when
// they fall behind.
func (e *Engine) OnRequest(fn func(Request)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requestObservers = append(e.requestObservers, fn)
}

// OnResponse registers an observer told about every intercepted response.
func (e *Engine) OnResponse(fn func(InterceptedResponse)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responseObservers = append(e.responseObservers, fn)
}

// Monitoring reports whether interception is active.
func (e *Engine) Monitoring() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monitoring
}

// StartMonitoring subscribes to paused and auth-required events, enables
// the network and fetch domains and disables the browser cache so every
// request is observed.
func (e *Engine) StartMonitoring(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.monitoring {
		return nil
	}

	s, err := e.source.Value(ctx)
	if err != nil {
		return err
	}

	subs := []cdp.Subscription{
		s.Subscribe("Fetch", "requestPaused", e.onRequestPaused),
		s.Subscribe("Fetch", "authRequired", e.onAuthRequired),
	}

	err = s.Enable(ctx, proto.NetworkEnable{})
	if err == nil {
		err = proto.NetworkSetCacheDisabled{CacheDisabled: true}.Call(s.Client(ctx))
	}
	if err == nil {
		err = s.Enable(ctx, proto.FetchEnable{
			Patterns: []*proto.FetchRequestPattern{
				{URLPattern: "*", RequestStage: proto.FetchRequestStageRequest},
				{URLPattern: "*", RequestStage: proto.FetchRequestStageResponse},
			},
			HandleAuthRequests: true,
		})
	}
	if err != nil {
		for _, sub := range subs {
			s.Unsubscribe(sub)
		}
		return fmt.Errorf("failed to start network monitoring: %w", err)
	}

	e.session = s
	e.subs = subs
	e.notify = make(chan func(), observerQueueSize)
	e.notifyDone = make(chan struct{})
	go e.runObservers(e.notify, e.notifyDone)
	e.monitoring = true

	slog.Debug("network monitoring started")
	return nil
}

// StopMonitoring unsubscribes, waits for in-flight dispositions, disables
// interception and restores caching. Pending observer notifications are
// waited for only until ctx is done; a stuck observer is left behind. It is
// a no-op when monitoring never started.
func (e *Engine) StopMonitoring(ctx context.Context) error {
	e.mu.Lock()
	if !e.monitoring {
		e.mu.Unlock()
		return nil
	}
	e.monitoring = false
	s, subs := e.session, e.subs
	e.session, e.subs = nil, nil
	close(e.notify)
	notifyDone := e.notifyDone
	e.attemptedAuth = make(map[string]bool)
	e.mu.Unlock()

	for _, sub := range subs {
		s.Unsubscribe(sub)
	}
	e.inflight.Wait()
	select {
	case <-notifyDone:
	case <-ctx.Done():
		slog.Warn("network observers still running, not waiting for them", "error", ctx.Err())
	}

	var errs []error
	if err := s.Disable(ctx, proto.FetchDisable{}); err != nil {
		errs = append(errs, err)
	}
	if err := (proto.NetworkSetCacheDisabled{CacheDisabled: false}).Call(s.Client(ctx)); err != nil {
		errs = append(errs, err)
	}

	slog.Debug("network monitoring stopped")
	return errors.Join(errs...)
}

type headerEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type pausedRequest struct {
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers"`
	PostData string            `json:"postData"`
}

type requestPausedEvent struct {
	RequestID           string        `json:"requestId"`
	Request             pausedRequest `json:"request"`
	ResourceType        string        `json:"resourceType"`
	ResponseErrorReason string        `json:"responseErrorReason"`
	ResponseStatusCode  int           `json:"responseStatusCode"`
	ResponseStatusText  string        `json:"responseStatusText"`
	ResponseHeaders     []headerEntry `json:"responseHeaders"`
}

func (ev requestPausedEvent) responseStage() bool {
	return ev.ResponseStatusCode != 0 || ev.ResponseErrorReason != ""
}

func (ev requestPausedEvent) request() Request {
	return Request{
		ID:           ev.RequestID,
		URL:          ev.Request.URL,
		Method:       ev.Request.Method,
		Headers:      ev.Request.Headers,
		PostData:     ev.Request.PostData,
		ResourceType: ev.ResourceType,
	}
}

type authRequiredEvent struct {
	RequestID     string        `json:"requestId"`
	Request       pausedRequest `json:"request"`
	AuthChallenge struct {
		Source string `json:"source"`
		Origin string `json:"origin"`
		Scheme string `json:"scheme"`
		Realm  string `json:"realm"`
	} `json:"authChallenge"`
}

// onRequestPaused runs on the dispatch goroutine. It picks the handler and
// leaves the disposition command to a tracked goroutine so dispatch never
// waits on the channel.
func (e *Engine) onRequestPaused(ev cdp.Event) {
	var paused requestPausedEvent
	if err := ev.Decode(&paused); err != nil {
		e.continueUndecodable(ev, err)
		return
	}

	e.mu.Lock()
	if !e.monitoring {
		e.mu.Unlock()
		return
	}
	s := e.session
	e.inflight.Add(1)
	req := paused.request()

	if paused.responseStage() {
		delete(e.attemptedAuth, paused.RequestID)
		resp := InterceptedResponse{
			Request:      req,
			StatusCode:   paused.ResponseStatusCode,
			ReasonPhrase: paused.ResponseStatusText,
			Headers:      headerMap(paused.ResponseHeaders),
		}
		handlers := append([]*ResponseHandler(nil), e.responseHandlers...)
		e.notifyLocked(e.responseNotification(resp))
		e.mu.Unlock()

		h := firstResponseHandler(handlers, resp)
		go e.resolveResponse(s, resp, h)
		return
	}

	handlers := append([]*RequestHandler(nil), e.requestHandlers...)
	e.notifyLocked(e.requestNotification(req))
	e.mu.Unlock()

	h := firstRequestHandler(handlers, req)
	go e.resolveRequest(s, req, h)
}

// continueUndecodable lets a paused request whose payload could not be
// decoded through unmodified, so it is never left paused.
func (e *Engine) continueUndecodable(ev cdp.Event, cause error) {
	id := gjson.GetBytes(ev.Params, "requestId")
	if id.Type != gjson.String || id.String() == "" {
		slog.Warn("dropping undecodable paused request without id", "error", cause)
		return
	}

	e.mu.Lock()
	if !e.monitoring {
		e.mu.Unlock()
		return
	}
	s := e.session
	e.inflight.Add(1)
	e.mu.Unlock()

	slog.Warn("continuing undecodable paused request", "request_id", id.String(), "error", cause)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), dispositionTimeout)
		defer cancel()
		err := proto.FetchContinueRequest{RequestID: proto.FetchRequestID(id.String())}.Call(s.Client(ctx))
		e.record(DispositionContinued, "", err)
	}()
}

func firstRequestHandler(handlers []*RequestHandler, req Request) (found *RequestHandler) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("request matcher panicked", "url", req.URL, "panic", r)
			found = nil
		}
	}()
	for _, h := range handlers {
		if h.match(req) {
			return h
		}
	}
	return nil
}

func firstResponseHandler(handlers []*ResponseHandler, resp InterceptedResponse) (found *ResponseHandler) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("response matcher panicked", "url", resp.Request.URL, "panic", r)
			found = nil
		}
	}()
	for _, h := range handlers {
		if h.match(resp) {
			return h
		}
	}
	return nil
}

func (e *Engine) resolveRequest(s *cdp.Session, req Request, h *RequestHandler) {
	defer e.inflight.Done()
	ctx, cancel := context.WithTimeout(context.Background(), dispositionTimeout)
	defer cancel()
	client := s.Client(ctx)

	disposition := DispositionContinued
	var err error
	switch {
	case h == nil:
		err = proto.FetchContinueRequest{RequestID: proto.FetchRequestID(req.ID)}.Call(client)
	case h.transform != nil:
		disposition = DispositionTransformed
		var next Request
		next, err = safeCall(func() Request { return h.transform(req) })
		if err == nil {
			err = proto.FetchContinueRequest{
				RequestID: proto.FetchRequestID(req.ID),
				URL:       next.URL,
				Method:    next.Method,
				PostData:  []byte(next.PostData),
				Headers:   headerEntries(next.Headers),
			}.Call(client)
		}
	default:
		disposition = DispositionFulfilled
		var resp Response
		resp, err = safeCall(func() Response { return h.supply(req) })
		if err == nil {
			err = fulfill(client, req.ID, resp)
		}
	}
	e.record(disposition, req.URL, err)
}

func (e *Engine) resolveResponse(s *cdp.Session, resp InterceptedResponse, h *ResponseHandler) {
	defer e.inflight.Done()
	ctx, cancel := context.WithTimeout(context.Background(), dispositionTimeout)
	defer cancel()
	client := s.Client(ctx)
	id := proto.FetchRequestID(resp.Request.ID)

	if h == nil {
		err := proto.FetchContinueRequest{RequestID: id}.Call(client)
		e.record(DispositionContinued, resp.Request.URL, err)
		return
	}

	body, err := proto.FetchGetResponseBody{RequestID: id}.Call(client)
	if err == nil {
		resp.Body = []byte(body.Body)
		if body.Base64Encoded {
			resp.Body, err = base64.StdEncoding.DecodeString(body.Body)
		}
	}
	if err == nil {
		var out Response
		out, err = safeCall(func() Response { return h.transform(resp) })
		if err == nil {
			err = fulfill(client, resp.Request.ID, out)
			e.record(DispositionFulfilled, resp.Request.URL, err)
			return
		}
	}

	slog.Warn("response handler failed, continuing unmodified", "url", resp.Request.URL, "error", err)
	err = proto.FetchContinueRequest{RequestID: id}.Call(client)
	e.record(DispositionContinued, resp.Request.URL, err)
}

func fulfill(client proto.Client, id string, resp Response) error {
	code := resp.StatusCode
	if code == 0 {
		code = 200
	}
	return proto.FetchFulfillRequest{
		RequestID:       proto.FetchRequestID(id),
		ResponseCode:    code,
		ResponseHeaders: headerEntries(resp.Headers),
		Body:            resp.Body,
		ResponsePhrase:  resp.ReasonPhrase,
	}.Call(client)
}

// onAuthRequired answers with the first matching handler's credentials, or
// cancels. A request challenged again after credentials were supplied is
// cancelled so a wrong password cannot loop.
func (e *Engine) onAuthRequired(ev cdp.Event) {
	var challenge authRequiredEvent
	if err := ev.Decode(&challenge); err != nil {
		slog.Warn("dropping undecodable auth challenge", "error", err)
		return
	}

	e.mu.Lock()
	if !e.monitoring {
		e.mu.Unlock()
		return
	}
	s := e.session
	handlers := append([]*AuthenticationHandler(nil), e.authHandlers...)
	retried := e.attemptedAuth[challenge.RequestID]
	e.inflight.Add(1)
	e.mu.Unlock()

	var h *AuthenticationHandler
	if !retried {
		h = firstAuthHandler(handlers, challenge.Request.URL)
	}

	e.mu.Lock()
	if h != nil {
		e.attemptedAuth[challenge.RequestID] = true
	} else {
		delete(e.attemptedAuth, challenge.RequestID)
	}
	e.mu.Unlock()

	go e.resolveAuth(s, challenge, h)
}

func firstAuthHandler(handlers []*AuthenticationHandler, rawURL string) (found *AuthenticationHandler) {
	uri, err := url.Parse(rawURL)
	if err != nil {
		slog.Warn("cannot parse challenged URL", "url", rawURL, "error", err)
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("URI matcher panicked", "url", rawURL, "panic", r)
			found = nil
		}
	}()
	for _, h := range handlers {
		if h.match(uri) {
			return h
		}
	}
	return nil
}

func (e *Engine) resolveAuth(s *cdp.Session, challenge authRequiredEvent, h *AuthenticationHandler) {
	defer e.inflight.Done()
	ctx, cancel := context.WithTimeout(context.Background(), dispositionTimeout)
	defer cancel()

	answer := &proto.FetchAuthChallengeResponse{Response: proto.FetchAuthChallengeResponseResponseCancelAuth}
	disposition := DispositionAuthCancelled
	if h != nil {
		answer = &proto.FetchAuthChallengeResponse{
			Response: proto.FetchAuthChallengeResponseResponseProvideCredentials,
			Username: h.credentials.Username,
			Password: h.credentials.Password,
		}
		disposition = DispositionAuthProvided
	}

	err := proto.FetchContinueWithAuth{
		RequestID:             proto.FetchRequestID(challenge.RequestID),
		AuthChallengeResponse: answer,
	}.Call(s.Client(ctx))
	e.record(disposition, challenge.Request.URL, err)
}

func (e *Engine) record(disposition, url string, err error) {
	if err != nil {
		slog.Warn("interception disposition failed", "disposition", disposition, "url", url, "error", err)
		e.metrics.RecordDisposition(DispositionFailed)
		return
	}
	slog.Debug("interception resolved", "disposition", disposition, "url", url)
	e.metrics.RecordDisposition(disposition)
}

func (e *Engine) requestNotification(req Request) func() {
	observers := slices.Clone(e.requestObservers)
	if len(observers) == 0 {
		return nil
	}
	return func() {
		for _, fn := range observers {
			fn(req)
		}
	}
}

func (e *Engine) responseNotification(resp InterceptedResponse) func() {
	observers := slices.Clone(e.responseObservers)
	if len(observers) == 0 {
		return nil
	}
	return func() {
		for _, fn := range observers {
			fn(resp)
		}
	}
}

// notifyLocked queues fn without blocking the dispatch goroutine.
func (e *Engine) notifyLocked(fn func()) {
	if fn == nil {
		return
	}
	select {
	case e.notify <- fn:
	default:
		slog.Warn("network observer queue full, dropping notification")
	}
}

func (e *Engine) runObservers(notify <-chan func(), done chan<- struct{}) {
	defer close(done)
	for fn := range notify {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("network observer panicked", "panic", r)
				}
			}()
			fn()
		}()
	}
}

func safeCall[T any](fn func() T) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return fn(), nil
}

func headerMap(entries []headerEntry) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	m := make(map[string]string, len(entries))
	for _, h := range entries {
		m[h.Name] = h.Value
	}
	return m
}

func headerEntries(headers map[string]string) []*proto.FetchHeaderEntry {
	if len(headers) == 0 {
		return nil
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*proto.FetchHeaderEntry, 0, len(names))
	for _, name := range names {
		out = append(out, &proto.FetchHeaderEntry{Name: name, Value: headers[name]})
	}
	return out
}
