package agent

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bytemomo/bastion/internal/canonical"
)

// HTTP paths served by agents.
const (
	HandshakePath = "/v1/agent/handshake"
	ExecutePath   = "/v1/agent/modules/execute"
	HealthPath    = "/v1/agent/health"
)

const maxResponseBytes = 4 << 20

type httpTransport struct {
	base   string
	client *http.Client
	auth   bearer
}

func newHTTPTransport(base string, tc *tls.Config, timeout time.Duration, auth bearer) *httpTransport {
	return &httpTransport{
		base: strings.TrimRight(base, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{TLSClientConfig: tc, Proxy: http.ProxyFromEnvironment},
		},
		auth: auth,
	}
}

func (t *httpTransport) handshake(ctx context.Context, req map[string]any) (map[string]any, error) {
	return t.post(ctx, HandshakePath, req)
}

func (t *httpTransport) execute(ctx context.Context, req map[string]any) (map[string]any, error) {
	return t.post(ctx, ExecutePath, req)
}

func (t *httpTransport) close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *httpTransport) post(ctx context.Context, path string, body map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrTransport, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	token, err := t.auth.token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s returned %d", ErrTransport, http.MethodPost, path, resp.StatusCode)
	}

	var decoded any
	if err := canonical.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedResponse, err)
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: response must be a JSON object", ErrMalformedResponse)
	}
	return obj, nil
}
