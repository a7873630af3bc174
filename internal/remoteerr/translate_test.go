package remoteerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvsoni1802/browser-remote-driver/internal/response"
)

func TestTranslateSuccessIsNil(t *testing.T) {
	assert.NoError(t, Translate(&response.Response{Status: response.StatusSuccess}))
}

func TestTranslateNoSuchElementBothDialects(t *testing.T) {
	legacy := Translate(&response.Response{Status: 7, Value: map[string]any{"message": "a"}})
	spec := Translate(&response.Response{
		Status: response.StatusUnknownError,
		Error:  "no such element",
		Value:  map[string]any{"message": "b"},
	})

	assert.Equal(t, NoSuchElement, KindOf(legacy))
	assert.Equal(t, NoSuchElement, KindOf(spec))
	assert.True(t, IsNotFound(legacy))
}

func TestTranslateUnknownCodes(t *testing.T) {
	err := Translate(&response.Response{Status: response.StatusUnknownError, Error: "brand new error"})
	assert.Equal(t, UnsupportedOperation, KindOf(err))

	err = Translate(&response.Response{Status: 999})
	assert.Equal(t, UnhandledError, KindOf(err))
}

func TestTranslateTable(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   Kind
	}{
		{status: 6, want: NoSuchDriver},
		{status: 8, want: NoSuchFrame},
		{status: 10, want: StaleElementReference},
		{status: 11, want: ElementNotInteractable},
		{status: 12, want: InvalidElementState},
		{status: 21, want: Timeout},
		{status: 23, want: NoSuchWindow},
		{status: 26, want: UnexpectedAlertOpen},
		{status: 27, want: NoAlertPresent},
		{status: 28, want: ScriptTimeout},
		{status: 32, want: InvalidSelector},
		{code: "invalid session id", want: InvalidSessionID},
		{code: "stale element reference", want: StaleElementReference},
		{code: "no such alert", want: NoAlertPresent},
		{code: "element not interactable", want: ElementNotInteractable},
		{code: "unknown command", want: UnknownCommand},
		{code: "script timeout", want: ScriptTimeout},
		{code: "unknown error", want: UnhandledError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%s", tt.status, tt.code), func(t *testing.T) {
			resp := &response.Response{Status: tt.status, Error: tt.code}
			if tt.code != "" {
				resp.Status = response.StatusUnknownError
			}
			assert.Equal(t, tt.want, KindOf(Translate(resp)))
		})
	}
}

func TestTranslateAlertText(t *testing.T) {
	err := Translate(&response.Response{
		Status: response.StatusUnknownError,
		Error:  "unexpected alert open",
		Value: map[string]any{
			"message": "alert is open",
			"data":    map[string]any{"text": "Are you sure?"},
		},
	})

	var remoteErr *Error
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "Are you sure?", remoteErr.AlertText)
	assert.Equal(t, "alert is open", remoteErr.Message)

	legacy := Translate(&response.Response{
		Status: 26,
		Value:  map[string]any{"alert": map[string]any{"text": "legacy"}},
	})
	require.ErrorAs(t, legacy, &remoteErr)
	assert.Equal(t, "legacy", remoteErr.AlertText)
}

func TestTranslateMalformedDescriptor(t *testing.T) {
	err := Translate(&response.Response{Status: 13, Value: []any{"weird"}})

	var remoteErr *Error
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, UnhandledError, remoteErr.Kind)
	assert.Equal(t, "[weird]", remoteErr.Message)

	err = Translate(&response.Response{Status: 7, Value: map[string]any{"message": 42}})
	assert.Equal(t, NoSuchElement, KindOf(err))
}

func TestTranslateLegacyStackTrace(t *testing.T) {
	err := Translate(&response.Response{Status: 13, Value: map[string]any{
		"message": "boom",
		"stackTrace": []any{
			map[string]any{"className": "A", "methodName": "b", "fileName": "A.java", "lineNumber": int64(3)},
		},
	}})

	var remoteErr *Error
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "at A.b (A.java:3)", remoteErr.Stacktrace)
}

func TestErrorIsMatchesKindAndReason(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Transport(ReasonTimeout, "navigate", errors.New("deadline")))

	assert.ErrorIs(t, err, &Error{Kind: TransportError})
	assert.ErrorIs(t, err, &Error{Kind: TransportError, Reason: ReasonTimeout})
	assert.NotErrorIs(t, err, &Error{Kind: TransportError, Reason: ReasonUnreachable})
	assert.Equal(t, TransportError, KindOf(err))
	assert.Contains(t, err.Error(), "deadline")
}

func TestIsSessionGone(t *testing.T) {
	assert.True(t, IsSessionGone(New(InvalidSessionID, "gone")))
	assert.True(t, IsSessionGone(New(NoSuchDriver, "gone")))
	assert.False(t, IsSessionGone(New(NoSuchElement, "x")))
	assert.False(t, IsSessionGone(nil))
}
