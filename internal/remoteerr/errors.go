// Package remoteerr defines the closed error taxonomy of the remote driver
// protocol and translates decoded error responses into it.
package remoteerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies one entry of the error taxonomy.
type Kind string

const (
	NoSuchElement           Kind = "NoSuchElement"
	NoSuchFrame             Kind = "NoSuchFrame"
	NoSuchWindow            Kind = "NoSuchWindow"
	NoAlertPresent          Kind = "NoAlertPresent"
	NoSuchCookie            Kind = "NoSuchCookie"
	StaleElementReference   Kind = "StaleElementReference"
	InvalidElementState     Kind = "InvalidElementState"
	ElementNotInteractable  Kind = "ElementNotInteractable"
	ElementClickIntercepted Kind = "ElementClickIntercepted"
	InvalidSelector         Kind = "InvalidSelector"
	InvalidArgument         Kind = "InvalidArgument"
	InvalidCookieDomain     Kind = "InvalidCookieDomain"
	UnableToSetCookie       Kind = "UnableToSetCookie"
	UnableToCaptureScreen   Kind = "UnableToCaptureScreen"
	MoveTargetOutOfBounds   Kind = "MoveTargetOutOfBounds"
	JavaScriptError         Kind = "JavaScriptError"
	InsecureCertificate     Kind = "InsecureCertificate"
	Timeout                 Kind = "Timeout"
	ScriptTimeout           Kind = "ScriptTimeout"
	UnexpectedAlertOpen     Kind = "UnexpectedAlertOpen"
	UnknownCommand          Kind = "UnknownCommand"
	UnsupportedOperation    Kind = "UnsupportedOperation"
	NoSuchDriver            Kind = "NoSuchDriver"
	InvalidSessionID        Kind = "InvalidSessionId"
	SessionNotCreated       Kind = "SessionNotCreated"
	UnhandledError          Kind = "UnhandledError"

	// ProtocolError is raised locally, before any network I/O.
	ProtocolError Kind = "ProtocolError"
	// TransportError is an HTTP-level failure with no decodable payload.
	TransportError Kind = "TransportError"
)

// Reason refines ProtocolError and TransportError.
type Reason string

const (
	ReasonUnknownCommand   Reason = "UnknownCommand"
	ReasonMissingParameter Reason = "MissingParameter"
	ReasonTimeout          Reason = "Timeout"
	ReasonUnreachable      Reason = "Unreachable"
	ReasonMalformed        Reason = "MalformedResponse"
)

// Error is the single typed error raised for every failed remote command.
type Error struct {
	Kind       Kind
	Reason     Reason
	Code       string // raw remote code: legacy numeric status or W3C error string
	Message    string
	Stacktrace string
	AlertText  string // only for UnexpectedAlertOpen
	Command    string
	Err        error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.Reason != "" {
		sb.WriteString("(" + string(e.Reason) + ")")
	}
	if e.Command != "" {
		sb.WriteString(" [" + e.Command + "]")
	}
	if e.Message != "" {
		sb.WriteString(": " + e.Message)
	}
	if e.AlertText != "" {
		sb.WriteString(fmt.Sprintf(" (alert text: %q)", e.AlertText))
	}
	if e.Err != nil {
		sb.WriteString(": " + e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind (and reason, when the target
// sets one), so errors.Is(err, &Error{Kind: NoSuchElement}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Protocol creates a locally detected ProtocolError.
func Protocol(reason Reason, command, format string, args ...any) *Error {
	return &Error{
		Kind:    ProtocolError,
		Reason:  reason,
		Command: command,
		Message: fmt.Sprintf(format, args...),
	}
}

// Transport wraps an HTTP-level failure.
func Transport(reason Reason, command string, err error) *Error {
	return &Error{Kind: TransportError, Reason: reason, Command: command, Err: err}
}

// KindOf returns the taxonomy kind of err, or "" when err is not a remote error.
func KindOf(err error) Kind {
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNotFound reports whether err means the referenced remote entity is absent.
func IsNotFound(err error) bool {
	switch KindOf(err) {
	case NoSuchElement, NoSuchFrame, NoSuchWindow, NoAlertPresent, NoSuchCookie:
		return true
	}
	return false
}

// IsSessionGone reports whether err means the remote session no longer exists.
func IsSessionGone(err error) bool {
	switch KindOf(err) {
	case NoSuchDriver, InvalidSessionID:
		return true
	}
	return false
}
