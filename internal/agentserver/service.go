// Package agentserver is the reference remote agent. It serves the agent
// protocol over HTTPS (chi + huma) and gRPC and executes modules from the
// local native registry.
package agentserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"bytemomo/bastion/internal/agent"
	"bytemomo/bastion/internal/domain"
	"bytemomo/bastion/internal/native"
)

// DefaultAgentID is reported when Service.AgentID is empty.
const DefaultAgentID = "bastion-agent"

// ErrUnsupportedVersion rejects handshakes for other protocol versions.
var ErrUnsupportedVersion = errors.New("unsupported protocol version")

// HandshakeResponse grants a session to the orchestrator.
type HandshakeResponse struct {
	AgentID      string   `json:"agent_id"`
	Capabilities []string `json:"capabilities"`
	Version      string   `json:"version"`
	PolicyHash   string   `json:"policy_hash,omitempty"`
}

// Service holds the transport-independent agent behaviour.
type Service struct {
	Registry   *native.Registry
	AgentID    string
	PolicyHash string
	Log        *log.Entry
	Now        func() time.Time
}

func (s *Service) registry() *native.Registry {
	if s.Registry != nil {
		return s.Registry
	}
	return native.Default()
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) log() *log.Entry {
	if s.Log != nil {
		return s.Log
	}
	return log.WithField("component", "agentserver")
}

// Handshake advertises every registered module as a capability.
func (s *Service) Handshake(_ context.Context, req agent.HandshakeRequest) (HandshakeResponse, error) {
	if req.Version != "" && req.Version != agent.ProtocolVersion {
		return HandshakeResponse{}, fmt.Errorf("%w: %s", ErrUnsupportedVersion, req.Version)
	}
	id := s.AgentID
	if id == "" {
		id = DefaultAgentID
	}
	resp := HandshakeResponse{
		AgentID:      id,
		Capabilities: s.registry().List(),
		Version:      agent.ProtocolVersion,
		PolicyHash:   s.PolicyHash,
	}
	s.log().WithFields(log.Fields{
		"peer":         req.AgentID,
		"capabilities": len(resp.Capabilities),
	}).Info("Handshake accepted")
	return resp, nil
}

// Execute runs one module. Failures are reported as error results, never as
// transport errors.
func (s *Service) Execute(ctx context.Context, req agent.ExecuteRequest) domain.ModuleResult {
	now := s.now()
	entry := s.log().WithFields(log.Fields{
		"run_id":    req.RunID,
		"module_id": req.ModuleID,
		"module":    req.Module,
	})

	if req.Scope.Expired(now) {
		entry.Warn("Scope expired")
		return domain.NewResult(req.ModuleID, domain.StatusError, now,
			map[string]any{"error": "scope expired"}, "")
	}

	mod, err := s.registry().Lookup(req.Module)
	if err != nil {
		entry.Warn("Unknown module")
		return domain.NewResult(req.ModuleID, domain.StatusError, now,
			map[string]any{"error": "unknown module", "module": req.Module}, "")
	}

	res := s.run(ctx, mod, native.ModuleContext{
		ModuleID:     req.ModuleID,
		TargetID:     req.TargetID,
		Params:       req.Params,
		Expectations: req.Expectations,
		Allowlist:    req.Scope.Allowlist,
		Clock:        s.now,
	})
	res.ModuleID = req.ModuleID
	if res.Evidence == nil {
		res.Evidence = map[string]any{}
	}
	entry.WithField("status", res.Status).Info("Module execution complete")
	return res
}

func (s *Service) run(ctx context.Context, mod native.Module, mc native.ModuleContext) (res domain.ModuleResult) {
	defer func() {
		if r := recover(); r != nil {
			s.log().WithFields(log.Fields{"module_id": mc.ModuleID, "panic": r}).Error("Module panicked")
			res = domain.NewResult(mc.ModuleID, domain.StatusError, s.now(),
				map[string]any{"error": "module exception", "message": fmt.Sprint(r)}, "")
		}
	}()
	return mod.Execute(ctx, mc)
}
