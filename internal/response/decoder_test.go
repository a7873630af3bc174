package response

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLegacySuccess(t *testing.T) {
	resp, err := Decode("application/json", []byte(`{"sessionId":"abc","status":0,"value":"hello"}`))
	require.NoError(t, err)

	assert.Equal(t, "abc", resp.SessionID)
	assert.True(t, resp.OK())
	assert.Equal(t, "hello", resp.Value)
	assert.Equal(t, ShapeLegacy, resp.Shape)
}

func TestDecodeLegacyError(t *testing.T) {
	resp, err := Decode("application/json; charset=utf-8",
		[]byte(`{"sessionId":"abc","status":7,"value":{"message":"no element"}}`))
	require.NoError(t, err)

	assert.False(t, resp.OK())
	assert.Equal(t, 7, resp.Status)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "no element", resp.Map()["message"])
}

func TestDecodeW3CSuccess(t *testing.T) {
	resp, err := Decode("application/json", []byte(`{"value":{"a":1,"b":1.5,"c":[true,null]}}`))
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, ShapeW3C, resp.Shape)
	assert.Equal(t, map[string]any{"a": int64(1), "b": 1.5, "c": []any{true, nil}}, resp.Value)
}

func TestDecodeW3CError(t *testing.T) {
	body := `{"value":{"error":"no such element","message":"gone","stacktrace":"x"}}`
	resp, err := Decode("application/json", []byte(body))
	require.NoError(t, err)

	assert.False(t, resp.OK())
	assert.Equal(t, "no such element", resp.Error)
	assert.Equal(t, StatusUnknownError, resp.Status)
	assert.Equal(t, "gone", resp.Map()["message"])
}

func TestDecodeW3CNewSessionPromotesSessionID(t *testing.T) {
	body := `{"value":{"sessionId":"abc","capabilities":{"browserName":"x","acceptInsecureCerts":false}}}`
	resp, err := Decode("application/json", []byte(body))
	require.NoError(t, err)

	assert.Equal(t, "abc", resp.SessionID)
	assert.Equal(t, map[string]any{"browserName": "x", "acceptInsecureCerts": false}, resp.Value)
	assert.Equal(t, ShapeW3C, resp.Shape)
}

// Both envelopes describe the same successful session creation.
func TestDecodeNormalizesBothDialects(t *testing.T) {
	legacy, err := Decode("application/json", []byte(`{"sessionId":"abc","status":0,"value":{"browserName":"x"}}`))
	require.NoError(t, err)
	w3c, err := Decode("application/json", []byte(`{"value":{"sessionId":"abc","capabilities":{"browserName":"x"}}}`))
	require.NoError(t, err)

	assert.Equal(t, legacy.SessionID, w3c.SessionID)
	assert.Equal(t, legacy.Value, w3c.Value)
	assert.Equal(t, legacy.OK(), w3c.OK())
	assert.NotEqual(t, legacy.Shape, w3c.Shape)
}

func TestDecodeNormalizesLineEndings(t *testing.T) {
	resp, err := Decode("application/json", []byte(`{"value":{"text":"a\r\nb\r\nc","list":["x\r\ny"]}}`))
	require.NoError(t, err)

	m := resp.Map()
	assert.Equal(t, "a\nb\nc", m["text"])
	assert.Equal(t, []any{"x\ny"}, m["list"])
}

func TestDecodeImage(t *testing.T) {
	body := []byte{0x89, 'P', 'N', 'G'}
	resp, err := Decode("image/png", body)
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, ShapeImage, resp.Shape)
	assert.Equal(t, body, resp.Value)
}

func TestDecodeEmptyBody(t *testing.T) {
	resp, err := Decode("", nil)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Nil(t, resp.Value)
}

func TestDecodeNullValue(t *testing.T) {
	resp, err := Decode("application/json", []byte(`{"value":null}`))
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Nil(t, resp.Value)
}

func TestDecodeMalformed(t *testing.T) {
	for _, body := range []string{`{"value":`, `[1,2]`, `<html></html>`} {
		_, err := Decode("application/json", []byte(body))
		assert.ErrorIs(t, err, ErrMalformed, body)
	}
}

func TestDecodeW3CErrorWithoutStringCode(t *testing.T) {
	for _, code := range []string{`42`, `true`, `""`, `null`, `{"x":1}`} {
		resp, err := Decode("application/json", []byte(`{"value":{"error":`+code+`,"message":"m"}}`))
		require.NoError(t, err, code)

		assert.False(t, resp.OK(), code)
		assert.Equal(t, "unknown error", resp.Error, code)
	}
}
