// Package response decodes remote driver replies of either dialect into one
// canonical Response.
package response

// Shape records which envelope the remote end answered with.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeLegacy        // {sessionId, status, value}
	ShapeW3C           // {value: ...}
	ShapeImage         // raw image payload
)

func (s Shape) String() string {
	switch s {
	case ShapeLegacy:
		return "legacy"
	case ShapeW3C:
		return "w3c"
	case ShapeImage:
		return "image"
	}
	return "unknown"
}

const (
	// StatusSuccess is the legacy success code; every dialect uses it for success.
	StatusSuccess = 0
	// StatusUnknownError marks W3C-dialect errors, whose kind lives in Error.
	StatusUnknownError = 13
)

// Response is the dialect-neutral result of one remote command.
type Response struct {
	SessionID string
	Status    int
	// Error is the W3C error code string; empty for legacy replies.
	Error string
	// Value is the decoded payload on success, or the error descriptor map.
	Value any
	Shape Shape
}

// OK reports whether the response is a success.
func (r *Response) OK() bool {
	return r.Status == StatusSuccess && r.Error == ""
}

// Map returns Value as a JSON object, or nil.
func (r *Response) Map() map[string]any {
	m, _ := r.Value.(map[string]any)
	return m
}

// String returns Value as a string, or "".
func (r *Response) String() string {
	s, _ := r.Value.(string)
	return s
}

// Bool returns Value as a bool, or false.
func (r *Response) Bool() bool {
	b, _ := r.Value.(bool)
	return b
}
