package agent

import (
	"context"
	"time"
)

// mockTransport answers in-process. It grants the requested capabilities
// unless the config lists its own, and passes every module.
type mockTransport struct {
	capabilities []string
	policyHash   string
	now          func() time.Time
}

func (m *mockTransport) handshake(_ context.Context, req map[string]any) (map[string]any, error) {
	agentID, _ := req["agent_id"].(string)
	if agentID == "" {
		agentID = "mock-agent"
	}

	var caps []any
	if len(m.capabilities) > 0 {
		for _, c := range m.capabilities {
			caps = append(caps, c)
		}
	} else if requested, ok := req["capabilities"].([]any); ok {
		caps = requested
	}
	if caps == nil {
		caps = []any{}
	}

	resp := map[string]any{"agent_id": agentID, "capabilities": caps}
	if m.policyHash != "" {
		resp["policy_hash"] = m.policyHash
	}
	return resp, nil
}

func (m *mockTransport) execute(_ context.Context, req map[string]any) (map[string]any, error) {
	at := m.now().UTC().Format(time.RFC3339Nano)
	if scope, ok := req["scope"].(map[string]any); ok {
		if exp, ok := scope["expires_at"].(string); ok && exp != "" {
			if _, err := time.Parse(time.RFC3339Nano, exp); err == nil && exp != zeroTime {
				at = exp
			}
		}
	}
	return map[string]any{
		"module_id":   req["module_id"],
		"status":      "pass",
		"started_at":  at,
		"finished_at": at,
		"evidence":    map[string]any{"mock": true},
		"notes":       "mock agent result",
	}, nil
}

func (m *mockTransport) close() error { return nil }

var zeroTime = time.Time{}.Format(time.RFC3339Nano)
