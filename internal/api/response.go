package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/driver"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/pool"
	"github.com/dhruvsoni1802/browser-remote-driver/internal/remoteerr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

// writeFailure maps a manager or remote error onto a status and code.
func writeFailure(w http.ResponseWriter, err error, fallback string) {
	status, code := http.StatusInternalServerError, fallback
	switch {
	case errors.Is(err, driver.ErrSessionNotFound):
		status, code = http.StatusNotFound, ErrCodeSessionNotFound
	case errors.Is(err, driver.ErrSessionNameConflict):
		status, code = http.StatusConflict, ErrCodeSessionNameConflict
	case errors.Is(err, driver.ErrSessionLimitReached):
		status, code = http.StatusTooManyRequests, ErrCodeSessionLimit
	case errors.Is(err, pool.ErrNoHealthyEndpoints):
		status, code = http.StatusServiceUnavailable, ErrCodeNoEndpoint
	case errors.Is(err, driver.ErrUnknownEndpoint):
		status, code = http.StatusBadRequest, ErrCodeInvalidRequest
	default:
		status = kindStatus(remoteerr.KindOf(err), status)
		if remoteerr.Is(err, remoteerr.UnsupportedOperation) || remoteerr.Is(err, remoteerr.UnknownCommand) {
			code = ErrCodeUnsupported
		}
	}

	detail := ErrorDetail{Code: code, Message: err.Error()}
	if kind := remoteerr.KindOf(err); kind != "" {
		detail.Kind = string(kind)
	}
	writeJSON(w, status, ErrorResponse{Error: detail})
}

func kindStatus(kind remoteerr.Kind, fallback int) int {
	switch kind {
	case remoteerr.ProtocolError, remoteerr.InvalidArgument, remoteerr.InvalidSelector, remoteerr.InvalidCookieDomain:
		return http.StatusBadRequest
	case remoteerr.NoSuchElement, remoteerr.NoSuchFrame, remoteerr.NoSuchWindow, remoteerr.NoAlertPresent, remoteerr.NoSuchCookie:
		return http.StatusNotFound
	case remoteerr.InvalidSessionID, remoteerr.NoSuchDriver:
		return http.StatusGone
	case remoteerr.UnsupportedOperation, remoteerr.UnknownCommand:
		return http.StatusNotImplemented
	case remoteerr.StaleElementReference, remoteerr.InvalidElementState, remoteerr.ElementNotInteractable,
		remoteerr.ElementClickIntercepted, remoteerr.UnexpectedAlertOpen:
		return http.StatusConflict
	case remoteerr.Timeout, remoteerr.ScriptTimeout:
		return http.StatusGatewayTimeout
	case remoteerr.SessionNotCreated, remoteerr.TransportError:
		return http.StatusBadGateway
	case "":
		return fallback
	}
	return http.StatusInternalServerError
}
