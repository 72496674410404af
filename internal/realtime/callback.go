package realtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/sitemap-frontier/internal/broadcast"
)

const defaultCallbackTimeout = 10 * time.Second

// CallbackPoster delivers events through a connection-management endpoint
// that accepts POST {endpoint}/@connections/{id}. A 410 response marks the
// connection gone.
type CallbackPoster struct {
	endpoint string
	client   *http.Client
}

// NewCallbackPoster builds a poster for endpoint. wss:// endpoints are mapped
// to https://. A nil client gets a 10s timeout.
func NewCallbackPoster(endpoint string, client *http.Client) (*CallbackPoster, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	switch {
	case strings.HasPrefix(endpoint, "wss://"):
		endpoint = "https://" + strings.TrimPrefix(endpoint, "wss://")
	case strings.HasPrefix(endpoint, "ws://"):
		endpoint = "http://" + strings.TrimPrefix(endpoint, "ws://")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid realtime endpoint %q", endpoint)
	}
	if client == nil {
		client = &http.Client{Timeout: defaultCallbackTimeout}
	}
	return &CallbackPoster{endpoint: endpoint, client: client}, nil
}

// Post sends data to one connection.
func (p *CallbackPoster) Post(ctx context.Context, connectionID string, data []byte) error {
	target := p.endpoint + "/@connections/" + url.PathEscape(connectionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to connection %s: %w", connectionID, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusGone:
		return fmt.Errorf("connection %s: %w", connectionID, broadcast.ErrGone)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		return fmt.Errorf("post to connection %s: unexpected status %d", connectionID, resp.StatusCode)
	}
}
