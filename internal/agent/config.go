package agent

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// URL schemes understood by the client.
const (
	SchemeMock  = "mock"
	SchemeHTTPS = "https"
	SchemeHTTP  = "http"
	SchemeGRPCS = "grpcs"
	SchemeGRPC  = "grpc"
)

// DefaultTimeout bounds each remote request.
const DefaultTimeout = 10 * time.Second

// Config describes how to reach a remote agent.
type Config struct {
	BaseURL string
	Enabled bool

	// Client certificate and key must be set together.
	CertPath   string
	KeyPath    string
	CAPath     string
	ServerName string

	Timeout            time.Duration
	AgentID            string
	ExpectedPolicyHash string
	AllowInsecure      bool

	// TokenSecret enables HS256 bearer tokens on every request.
	TokenSecret string

	// Only used by the mock:// transport.
	MockCapabilities []string
	MockPolicyHash   string
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c Config) scheme() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// checkTransport enforces the encrypted-transport and paired-certificate rules.
func (c Config) checkTransport() error {
	switch c.scheme() {
	case SchemeHTTP, SchemeGRPC:
		if !c.AllowInsecure {
			return fmt.Errorf("%w: %s; use https:// or grpcs://, or allow insecure transport", ErrInsecureTransport, c.BaseURL)
		}
	}
	if (c.CertPath == "") != (c.KeyPath == "") {
		return fmt.Errorf("%w: both cert and key are required for TLS client auth", ErrInvalidTLSConfig)
	}
	return nil
}
