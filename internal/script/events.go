package script

import (
	"encoding/json"
	"strings"
	"time"
)

// ConsoleMessage is one console API call made by the page.
type ConsoleMessage struct {
	Level     string
	Args      []any
	Timestamp time.Time
}

// Text joins the printable form of every argument.
func (m ConsoleMessage) Text() string {
	parts := make([]string, 0, len(m.Args))
	for _, a := range m.Args {
		parts = append(parts, toString(a))
	}
	return strings.Join(parts, " ")
}

// ScriptException is an uncaught exception thrown by page script.
type ScriptException struct {
	Message   string
	URL       string
	Line      int
	Column    int
	Timestamp time.Time
}

// BindingCall is a page-side invocation of a registered callback binding.
type BindingCall struct {
	Name               string
	Payload            string
	ExecutionContextID int
}

type remoteObject struct {
	Type        string `json:"type"`
	Value       any    `json:"value"`
	Description string `json:"description"`
}

func (o remoteObject) value() any {
	if o.Value != nil {
		return o.Value
	}
	if o.Description != "" {
		return o.Description
	}
	return o.Type
}

type consoleAPICalledEvent struct {
	Type      string         `json:"type"`
	Args      []remoteObject `json:"args"`
	Timestamp float64        `json:"timestamp"`
}

type exceptionThrownEvent struct {
	Timestamp        float64 `json:"timestamp"`
	ExceptionDetails struct {
		Text         string        `json:"text"`
		LineNumber   int           `json:"lineNumber"`
		ColumnNumber int           `json:"columnNumber"`
		URL          string        `json:"url"`
		Exception    *remoteObject `json:"exception"`
	} `json:"exceptionDetails"`
}

type bindingCalledEvent struct {
	Name               string `json:"name"`
	Payload            string `json:"payload"`
	ExecutionContextID int    `json:"executionContextId"`
}

// millis converts a protocol timestamp in milliseconds since the epoch.
func millis(ms float64) time.Time {
	return time.UnixMilli(int64(ms))
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
