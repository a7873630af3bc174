package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNoEndpoint is returned when the remote end advertises no debugging
// endpoint.
var ErrNoEndpoint = errors.New("remote end advertises no debugging endpoint")

// Endpoint locates a debugging endpoint. Either WebSocketURL is known up
// front or Address names a host:port that serves /json/version.
type Endpoint struct {
	WebSocketURL string
	Address      string
}

// debuggerOptions lists vendor capability blocks carrying debuggerAddress.
var debuggerOptions = []string{"goog:chromeOptions", "ms:edgeOptions"}

// EndpointFromCapabilities reads the debugging endpoint out of negotiated
// capabilities.
func EndpointFromCapabilities(caps map[string]any) (Endpoint, bool) {
	if ws, ok := caps["se:cdp"].(string); ok && ws != "" {
		return Endpoint{WebSocketURL: ws}, true
	}
	for _, key := range debuggerOptions {
		opts, ok := caps[key].(map[string]any)
		if !ok {
			continue
		}
		if addr, ok := opts["debuggerAddress"].(string); ok && addr != "" {
			return Endpoint{Address: addr}, true
		}
	}
	return Endpoint{}, false
}

// ParseEndpoint interprets a configured override: a ws:// URL is used as
// is, anything else is treated as host:port.
func ParseEndpoint(raw string) Endpoint {
	if strings.HasPrefix(raw, "ws://") || strings.HasPrefix(raw, "wss://") {
		return Endpoint{WebSocketURL: raw}
	}
	raw = strings.TrimPrefix(raw, "http://")
	return Endpoint{Address: strings.TrimSuffix(raw, "/")}
}

// Resolve returns the WebSocket URL of the endpoint, querying /json/version
// when only an address is known.
func (e Endpoint) Resolve(ctx context.Context, client *http.Client) (string, error) {
	if e.WebSocketURL != "" {
		return e.WebSocketURL, nil
	}
	if e.Address == "" {
		return "", ErrNoEndpoint
	}
	return GetWebSocketURL(ctx, client, e.Address)
}

// GetWebSocketURL discovers the browser-level WebSocket URL of the
// endpoint at address (host:port).
func GetWebSocketURL(ctx context.Context, client *http.Client, address string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if strings.HasPrefix(address, ":") {
		address = "localhost" + address
	}

	url := fmt.Sprintf("http://%s/json/version", address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid debugger address %q: %w", address, err)
	}

	response, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to connect to debug port: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", response.StatusCode)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var versionInfo struct {
		Browser              string `json:"Browser"`
		ProtocolVersion      string `json:"Protocol-Version"`
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.Unmarshal(body, &versionInfo); err != nil {
		return "", fmt.Errorf("failed to parse JSON response: %w", err)
	}

	if versionInfo.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("no browser WebSocket URL found")
	}
	return versionInfo.WebSocketDebuggerURL, nil
}
