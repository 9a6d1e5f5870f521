package agent

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"bytemomo/bastion/internal/domain"
)

// DefaultSubject identifies the orchestrator when no agent id is configured.
const DefaultSubject = "orchestrator"

// Client speaks the agent protocol. A client is single-use: one successful
// handshake, then any number of executions within the granted capabilities.
type Client struct {
	cfg Config
	log *logrus.Entry
	now func() time.Time

	tr      transport
	session *domain.HandshakeResult
}

// Option customises a Client.
type Option func(*Client)

// WithLogger sets the entry used for protocol logging.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithClock overrides the clock used for mock timestamps. Bearer tokens
// always use the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns an unconnected client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg: cfg,
		log: logrus.NewEntry(logrus.StandardLogger()),
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Session returns the handshake result and whether a handshake succeeded.
func (c *Client) Session() (domain.HandshakeResult, bool) {
	if c.session == nil {
		return domain.HandshakeResult{}, false
	}
	return *c.session, true
}

// Handshake opens the session. It validates transport settings, the shape of
// the response and, when configured, the agent's policy hash.
func (c *Client) Handshake(ctx context.Context, req HandshakeRequest) (domain.HandshakeResult, error) {
	if !c.cfg.Enabled {
		return domain.HandshakeResult{}, ErrAgentDisabled
	}
	if c.session != nil {
		return domain.HandshakeResult{}, fmt.Errorf("%w: already handshaken", ErrInvalidHandshake)
	}
	if err := c.cfg.checkTransport(); err != nil {
		return domain.HandshakeResult{}, err
	}

	if req.AgentID == "" {
		req.AgentID = c.cfg.AgentID
	}
	if req.AgentID == "" && c.cfg.scheme() != SchemeMock {
		req.AgentID = DefaultSubject
	}
	if req.Version == "" {
		req.Version = ProtocolVersion
	}
	if req.ExpectedPolicyHash == "" {
		req.ExpectedPolicyHash = c.cfg.ExpectedPolicyHash
	}
	if req.Capabilities == nil {
		req.Capabilities = []string{}
	}

	tr, err := c.dial(req.AgentID)
	if err != nil {
		return domain.HandshakeResult{}, err
	}

	body, err := toMap(req)
	if err != nil {
		_ = tr.close()
		return domain.HandshakeResult{}, fmt.Errorf("%w: encode handshake: %v", ErrTransport, err)
	}
	resp, err := tr.handshake(ctx, body)
	if err != nil {
		_ = tr.close()
		return domain.HandshakeResult{}, err
	}

	result, err := parseHandshake(resp, req.Capabilities)
	if err != nil {
		_ = tr.close()
		return domain.HandshakeResult{}, err
	}

	if want := req.ExpectedPolicyHash; want != "" && result.PolicyHash != want {
		_ = tr.close()
		return domain.HandshakeResult{}, fmt.Errorf("%w: expected %s, agent reported %q", ErrPolicyHashMismatch, want, result.PolicyHash)
	}

	c.tr = tr
	c.session = &result
	c.log.WithFields(logrus.Fields{
		"agent_id":     result.AgentID,
		"capabilities": len(result.Capabilities),
	}).Info("Agent handshake completed")
	return result, nil
}

// ExecuteModule dispatches one module to the agent.
func (c *Client) ExecuteModule(ctx context.Context, req ExecuteRequest) (domain.ModuleResult, error) {
	if !c.cfg.Enabled {
		return domain.ModuleResult{}, ErrAgentDisabled
	}
	if c.session == nil {
		return domain.ModuleResult{}, ErrHandshakeRequired
	}
	if !c.session.Grants(req.Module) {
		return domain.ModuleResult{}, fmt.Errorf("%w: %s", ErrCapabilityMissing, req.Module)
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}
	if req.Expectations == nil {
		req.Expectations = map[string]any{}
	}
	if req.Scope.Allowlist == nil {
		req.Scope.Allowlist = []string{}
	}

	body, err := toMap(req)
	if err != nil {
		return domain.ModuleResult{}, fmt.Errorf("%w: encode execute: %v", ErrTransport, err)
	}
	resp, err := c.tr.execute(ctx, body)
	if err != nil {
		return domain.ModuleResult{}, err
	}
	return parseResult(resp)
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.tr == nil {
		return nil
	}
	return c.tr.close()
}

func (c *Client) dial(agentID string) (transport, error) {
	auth := bearer{secret: c.cfg.TokenSecret, subject: agentID}

	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base url %q: %v", ErrTransport, c.cfg.BaseURL, err)
	}

	switch c.cfg.scheme() {
	case SchemeMock:
		return &mockTransport{
			capabilities: c.cfg.MockCapabilities,
			policyHash:   c.cfg.MockPolicyHash,
			now:          c.now,
		}, nil
	case SchemeHTTPS, SchemeHTTP:
		tc, err := c.tlsConfig()
		if err != nil {
			return nil, err
		}
		return newHTTPTransport(c.cfg.BaseURL, tc, c.cfg.timeout(), auth), nil
	case SchemeGRPCS, SchemeGRPC:
		tc, err := c.tlsConfig()
		if err != nil {
			return nil, err
		}
		return newGRPCTransport(u.Host, tc, c.cfg.scheme() == SchemeGRPC, c.cfg.timeout(), auth)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme in %q", ErrTransport, c.cfg.BaseURL)
	}
}

func (c *Client) tlsConfig() (*tls.Config, error) {
	return BuildTLSConfig(c.cfg)
}
