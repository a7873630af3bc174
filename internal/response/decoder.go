package response

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrMalformed is returned when a body cannot be decoded as a reply envelope.
var ErrMalformed = errors.New("malformed response body")

// Decode turns a raw HTTP body into a Response. Image payloads are wrapped
// as-is; JSON bodies of both dialects normalize to the same shape.
func Decode(contentType string, body []byte) (*Response, error) {
	if isImage(contentType) {
		return &Response{Status: StatusSuccess, Value: body, Shape: ShapeImage}, nil
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return &Response{Status: StatusSuccess, Shape: ShapeUnknown}, nil
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level is not an object", ErrMalformed)
	}

	// The legacy envelope always carries a numeric status next to the value.
	if status := root.Get("status"); status.Exists() && status.Type == gjson.Number {
		return decodeLegacy(root)
	}
	return decodeW3C(root)
}

func decodeLegacy(root gjson.Result) (*Response, error) {
	value, err := decodeValue(root.Get("value"))
	if err != nil {
		return nil, err
	}
	return &Response{
		SessionID: root.Get("sessionId").String(),
		Status:    int(root.Get("status").Int()),
		Value:     value,
		Shape:     ShapeLegacy,
	}, nil
}

func decodeW3C(root gjson.Result) (*Response, error) {
	resp := &Response{
		SessionID: root.Get("sessionId").String(),
		Status:    StatusSuccess,
		Shape:     ShapeW3C,
	}

	inner := root.Get("value")
	if inner.IsObject() {
		if code := inner.Get("error"); code.Exists() {
			resp.Status = StatusUnknownError
			resp.Error = "unknown error"
			if code.Type == gjson.String && code.String() != "" {
				resp.Error = code.String()
			}
		} else if id := inner.Get("sessionId"); id.Exists() {
			// Session-creation reply: promote the id, unwrap the capabilities.
			resp.SessionID = id.String()
			if caps := inner.Get("capabilities"); caps.Exists() {
				inner = caps
			}
		}
	}

	value, err := decodeValue(inner)
	if err != nil {
		return nil, err
	}
	resp.Value = value
	return resp, nil
}

// decodeValue decodes a JSON fragment keeping integers integral and
// normalizing line endings in every string.
func decodeValue(r gjson.Result) (any, error) {
	if !r.Exists() || r.Type == gjson.Null {
		return nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(r.Raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return normalize(v), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case string:
		return NormalizeLineEndings(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = normalize(t[i])
		}
		return t
	case map[string]any:
		for k, item := range t {
			t[k] = normalize(item)
		}
		return t
	}
	return v
}

// NormalizeLineEndings collapses CRLF pairs into the canonical "\n".
func NormalizeLineEndings(s string) string {
	if !strings.Contains(s, "\r\n") {
		return s
	}
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func isImage(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	return strings.HasPrefix(strings.ToLower(mediaType), "image/")
}
