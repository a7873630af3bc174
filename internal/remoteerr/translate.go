package remoteerr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/response"
)

// legacyKinds maps JSON wire protocol status codes.
var legacyKinds = map[int]Kind{
	6:  NoSuchDriver,
	7:  NoSuchElement,
	8:  NoSuchFrame,
	9:  UnknownCommand,
	10: StaleElementReference,
	11: ElementNotInteractable, // element not visible
	12: InvalidElementState,
	13: UnhandledError,
	15: InvalidElementState, // element not selectable
	17: JavaScriptError,
	19: InvalidSelector, // xpath lookup error
	21: Timeout,
	23: NoSuchWindow,
	24: InvalidCookieDomain,
	25: UnableToSetCookie,
	26: UnexpectedAlertOpen,
	27: NoAlertPresent,
	28: ScriptTimeout,
	29: InvalidArgument, // invalid element coordinates
	32: InvalidSelector,
	33: SessionNotCreated,
	34: MoveTargetOutOfBounds,
	51: InvalidSelector, // invalid xpath selector
	52: InvalidSelector, // invalid xpath selector return type
	60: ElementNotInteractable,
	61: InvalidArgument,
	62: NoSuchCookie,
	63: UnableToCaptureScreen,
	64: ElementClickIntercepted,
}

// specKinds maps standardized error code strings.
var specKinds = map[string]Kind{
	"element click intercepted":   ElementClickIntercepted,
	"element not interactable":    ElementNotInteractable,
	"element not selectable":      InvalidElementState,
	"element not visible":         ElementNotInteractable,
	"insecure certificate":        InsecureCertificate,
	"invalid argument":            InvalidArgument,
	"invalid cookie domain":       InvalidCookieDomain,
	"invalid coordinates":         InvalidArgument,
	"invalid element coordinates": InvalidArgument,
	"invalid element state":       InvalidElementState,
	"invalid selector":            InvalidSelector,
	"invalid session id":          InvalidSessionID,
	"javascript error":            JavaScriptError,
	"move target out of bounds":   MoveTargetOutOfBounds,
	"no such alert":               NoAlertPresent,
	"no such cookie":              NoSuchCookie,
	"no such element":             NoSuchElement,
	"no such frame":               NoSuchFrame,
	"no such shadow root":         NoSuchElement,
	"no such window":              NoSuchWindow,
	"detached shadow root":        StaleElementReference,
	"script timeout":              ScriptTimeout,
	"session not created":         SessionNotCreated,
	"stale element reference":     StaleElementReference,
	"timeout":                     Timeout,
	"unable to capture screen":    UnableToCaptureScreen,
	"unable to set cookie":        UnableToSetCookie,
	"unexpected alert open":       UnexpectedAlertOpen,
	"unknown command":             UnknownCommand,
	"unknown error":               UnhandledError,
	"unknown method":              UnknownCommand,
	"unsupported operation":       UnsupportedOperation,
}

// LegacyKind looks up a legacy numeric status code.
func LegacyKind(status int) Kind {
	if kind, ok := legacyKinds[status]; ok {
		return kind
	}
	return UnhandledError
}

// SpecKind looks up a standardized error code string.
func SpecKind(code string) Kind {
	if kind, ok := specKinds[strings.ToLower(strings.TrimSpace(code))]; ok {
		return kind
	}
	return UnsupportedOperation
}

// Translate maps a non-success response to its typed error. It returns nil
// for successful responses and never panics on malformed descriptors.
func Translate(resp *response.Response) error {
	if resp == nil {
		return &Error{Kind: UnhandledError, Message: "empty response"}
	}
	if resp.OK() {
		return nil
	}

	e := &Error{}
	if resp.Error != "" {
		e.Kind = SpecKind(resp.Error)
		e.Code = resp.Error
	} else {
		e.Kind = LegacyKind(resp.Status)
		e.Code = strconv.Itoa(resp.Status)
	}

	descriptor, ok := resp.Value.(map[string]any)
	if !ok {
		if resp.Value != nil {
			e.Message = fmt.Sprint(resp.Value)
		}
		return e
	}

	e.Message, _ = descriptor["message"].(string)
	e.Stacktrace = stacktrace(descriptor)
	if e.Kind == UnexpectedAlertOpen {
		e.AlertText = alertText(descriptor)
	}
	return e
}

func stacktrace(descriptor map[string]any) string {
	if s, ok := descriptor["stacktrace"].(string); ok {
		return s
	}

	// Legacy remote ends send a list of frame objects.
	frames, ok := descriptor["stackTrace"].([]any)
	if !ok {
		return ""
	}
	lines := make([]string, 0, len(frames))
	for _, f := range frames {
		frame, ok := f.(map[string]any)
		if !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("at %v.%v (%v:%v)",
			frame["className"], frame["methodName"], frame["fileName"], frame["lineNumber"]))
	}
	return strings.Join(lines, "\n")
}

func alertText(descriptor map[string]any) string {
	if data, ok := descriptor["data"].(map[string]any); ok {
		if text, ok := data["text"].(string); ok {
			return text
		}
	}
	if alert, ok := descriptor["alert"].(map[string]any); ok {
		if text, ok := alert["text"].(string); ok {
			return text
		}
	}
	return ""
}
