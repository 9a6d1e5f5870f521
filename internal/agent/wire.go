package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"bytemomo/bastion/internal/canonical"
	"bytemomo/bastion/internal/domain"
)

// ProtocolVersion is sent with every handshake.
const ProtocolVersion = "v1"

// HandshakeRequest opens a session with an agent.
type HandshakeRequest struct {
	AgentID            string   `json:"agent_id"`
	Capabilities       []string `json:"capabilities"`
	Version            string   `json:"version"`
	ExpectedPolicyHash string   `json:"expected_policy_hash,omitempty"`
}

// Scope bounds what an agent may touch for one execution.
type Scope struct {
	Allowlist []string  `json:"allowlist"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the scope lapsed before now. An expiry at or
// before the deterministic epoch means the scope carries no deadline.
func (s Scope) Expired(now time.Time) bool {
	if !s.ExpiresAt.After(domain.Epoch) {
		return false
	}
	return s.ExpiresAt.Before(now)
}

// ExecuteRequest dispatches one module to the agent.
type ExecuteRequest struct {
	RunID        string         `json:"run_id"`
	ModuleID     string         `json:"module_id"`
	Module       string         `json:"module"`
	TargetID     string         `json:"target_id"`
	Params       map[string]any `json:"params"`
	Expectations map[string]any `json:"expectations"`
	Scope        Scope          `json:"scope"`
}

// toMap converts a request DTO to a generic JSON object.
func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseHandshake checks the shape of a handshake response. Capabilities must
// be non-empty strings covering everything that was requested.
func parseHandshake(resp map[string]any, requested []string) (domain.HandshakeResult, error) {
	agentID, ok := resp["agent_id"].(string)
	if !ok || agentID == "" {
		return domain.HandshakeResult{}, fmt.Errorf("%w: agent_id must be a non-empty string", ErrInvalidHandshake)
	}

	rawCaps, ok := resp["capabilities"].([]any)
	if !ok {
		return domain.HandshakeResult{}, fmt.Errorf("%w: capabilities must be a list", ErrInvalidHandshake)
	}
	if len(rawCaps) == 0 {
		return domain.HandshakeResult{}, fmt.Errorf("%w: missing capabilities", ErrInvalidHandshake)
	}
	caps := make([]string, 0, len(rawCaps))
	for i, c := range rawCaps {
		s, ok := c.(string)
		if !ok || s == "" {
			return domain.HandshakeResult{}, fmt.Errorf("%w: capabilities[%d] must be a non-empty string", ErrInvalidHandshake, i)
		}
		caps = append(caps, s)
	}

	out := domain.HandshakeResult{AgentID: agentID, Capabilities: caps}
	var missing []string
	for _, r := range requested {
		if !out.Grants(r) {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return domain.HandshakeResult{}, fmt.Errorf("%w: agent missing requested capabilities %v", ErrInvalidHandshake, missing)
	}

	switch ph := resp["policy_hash"].(type) {
	case nil:
	case string:
		out.PolicyHash = ph
	default:
		return domain.HandshakeResult{}, fmt.Errorf("%w: policy_hash must be a string", ErrInvalidHandshake)
	}
	return out, nil
}

var requiredResultFields = []string{"module_id", "status", "started_at", "finished_at"}

// parseResult decodes a module result returned by an agent.
func parseResult(resp map[string]any) (domain.ModuleResult, error) {
	for _, f := range requiredResultFields {
		if _, ok := resp[f]; !ok {
			return domain.ModuleResult{}, fmt.Errorf("%w: missing field %s", ErrMalformedResponse, f)
		}
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return domain.ModuleResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	var out domain.ModuleResult
	if err := canonical.Unmarshal(raw, &out); err != nil {
		return domain.ModuleResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Evidence == nil {
		out.Evidence = map[string]any{}
	}
	return out, nil
}
