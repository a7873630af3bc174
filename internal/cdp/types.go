package cdp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// request is a command frame sent to the debugging endpoint
type request struct {
	ID        int64  `json:"id"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// message is any frame received from the endpoint. Responses carry an id,
// events carry a method and no id.
type message struct {
	ID        int64           `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ResponseError  `json:"error,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// ResponseError is the error object of a failed command response
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// CommandError is returned to the caller whose command the endpoint rejected.
type CommandError struct {
	Method string
	ResponseError
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s failed: %s (code %d)", e.Method, e.Message, e.Code)
	if e.Data != "" {
		msg += ": " + e.Data
	}
	return msg
}

// Event is an unsolicited frame from the endpoint, addressed by the exact
// (Domain, Name) pair of its method.
type Event struct {
	Domain    string
	Name      string
	SessionID string
	Params    json.RawMessage
}

// Method returns the wire method name, e.g. "Fetch.requestPaused".
func (e Event) Method() string {
	return e.Domain + "." + e.Name
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Params, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", e.Method(), err)
	}
	return nil
}

// splitMethod splits "Domain.name" at the first dot.
func splitMethod(method string) (string, string) {
	domain, name, ok := strings.Cut(method, ".")
	if !ok {
		return "", method
	}
	return domain, name
}
