package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// versionInfo is the body of a DevTools /json/version response.
type versionInfo struct {
	Browser              string `json:"Browser"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// EndpointResolver discovers DevTools websocket URLs from a browser's HTTP
// debugging port.
type EndpointResolver struct {
	client *resty.Client
}

// NewEndpointResolver creates a resolver whose requests time out after timeout.
func NewEndpointResolver(timeout time.Duration) *EndpointResolver {
	client := resty.New()
	client.SetTimeout(timeout)
	client.SetHeader("accept", "application/json")
	return &EndpointResolver{client: client}
}

// WebSocketURL returns the browser-level websocket URL for endpoint. A ws://
// or wss:// endpoint is returned unchanged.
func (r *EndpointResolver) WebSocketURL(ctx context.Context, endpoint string) (string, error) {
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		return endpoint, nil
	}

	info, err := r.version(ctx, endpoint)
	if err != nil {
		return "", err
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("no webSocketDebuggerUrl at %s", versionURL(endpoint))
	}
	return info.WebSocketDebuggerURL, nil
}

// Ready reports whether the DevTools endpoint answers.
func (r *EndpointResolver) Ready(ctx context.Context, endpoint string) bool {
	_, err := r.version(ctx, endpoint)
	return err == nil
}

func (r *EndpointResolver) version(ctx context.Context, endpoint string) (versionInfo, error) {
	var info versionInfo

	url := versionURL(endpoint)
	res, err := r.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return info, fmt.Errorf("failed to query %s: %w", url, err)
	}
	if res.IsError() {
		return info, fmt.Errorf("failed to query %s: status %d", url, res.StatusCode())
	}
	if err := json.Unmarshal(res.Body(), &info); err != nil {
		return info, fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return info, nil
}

func versionURL(endpoint string) string {
	base := strings.TrimRight(endpoint, "/")
	if strings.HasSuffix(base, "/json/version") {
		return base
	}
	return base + "/json/version"
}
