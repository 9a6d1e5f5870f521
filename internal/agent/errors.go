package agent

import "errors"

// Protocol failures. Every error returned by Client wraps exactly one of these.
var (
	ErrAgentDisabled      = errors.New("agent client disabled")
	ErrInsecureTransport  = errors.New("insecure agent transport")
	ErrInvalidTLSConfig   = errors.New("invalid agent TLS configuration")
	ErrInvalidHandshake   = errors.New("invalid agent handshake")
	ErrPolicyHashMismatch = errors.New("agent policy hash mismatch")
	ErrHandshakeRequired  = errors.New("agent handshake required before execution")
	ErrCapabilityMissing  = errors.New("agent missing capability for module")
	ErrTransport          = errors.New("agent request failed")
	ErrMalformedResponse  = errors.New("agent returned malformed response")
)
