// Package network intercepts browser traffic over the debugging channel and
// resolves every paused request through ordered handler chains.
package network

import (
	"errors"
	"net/url"
)

// ErrInvalidHandler is returned when a handler is constructed without a
// matcher or without exactly one action.
var ErrInvalidHandler = errors.New("invalid network handler")

// Request is an intercepted outgoing request.
type Request struct {
	ID           string
	URL          string
	Method       string
	Headers      map[string]string
	PostData     string
	ResourceType string
}

// Response is a response supplied or rewritten by a handler.
type Response struct {
	StatusCode   int
	ReasonPhrase string
	Headers      map[string]string
	Body         []byte
}

// InterceptedResponse is a response paused before it reaches the page.
type InterceptedResponse struct {
	Request      Request
	StatusCode   int
	ReasonPhrase string
	Headers      map[string]string
	// Body is only loaded for a response a handler matched.
	Body []byte
}

// RequestHandler resolves matching requests either by transforming and
// continuing them or by answering them with a canned response.
type RequestHandler struct {
	match     func(Request) bool
	transform func(Request) Request
	supply    func(Request) Response
}

// NewRequestHandler validates that exactly one of transform and supply is
// set.
func NewRequestHandler(match func(Request) bool, transform func(Request) Request, supply func(Request) Response) (*RequestHandler, error) {
	if match == nil {
		return nil, errors.Join(ErrInvalidHandler, errors.New("matcher is required"))
	}
	if (transform == nil) == (supply == nil) {
		return nil, errors.Join(ErrInvalidHandler, errors.New("exactly one of transformer and response supplier must be set"))
	}
	return &RequestHandler{match: match, transform: transform, supply: supply}, nil
}

// Credentials answer an authentication challenge.
type Credentials struct {
	Username string
	Password string
}

// AuthenticationHandler answers challenges for matching URIs.
type AuthenticationHandler struct {
	match       func(*url.URL) bool
	credentials Credentials
}

// NewAuthenticationHandler returns a handler supplying creds to every
// challenge whose URI matches.
func NewAuthenticationHandler(match func(*url.URL) bool, creds Credentials) (*AuthenticationHandler, error) {
	if match == nil {
		return nil, errors.Join(ErrInvalidHandler, errors.New("URI matcher is required"))
	}
	return &AuthenticationHandler{match: match, credentials: creds}, nil
}

// ResponseHandler rewrites matching responses.
type ResponseHandler struct {
	match     func(InterceptedResponse) bool
	transform func(InterceptedResponse) Response
}

// NewResponseHandler returns a handler fulfilling matching responses with
// the result of transform.
func NewResponseHandler(match func(InterceptedResponse) bool, transform func(InterceptedResponse) Response) (*ResponseHandler, error) {
	if match == nil || transform == nil {
		return nil, errors.Join(ErrInvalidHandler, errors.New("matcher and transformer are required"))
	}
	return &ResponseHandler{match: match, transform: transform}, nil
}
