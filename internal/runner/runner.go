// Package runner executes campaigns and assembles evidence packs.
package runner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"bytemomo/bastion/internal/agent"
	"bytemomo/bastion/internal/canonical"
	"bytemomo/bastion/internal/domain"
	"bytemomo/bastion/internal/evidence"
	"bytemomo/bastion/internal/native"
	"bytemomo/bastion/internal/policy"
)

// Epoch is the fixed clock of deterministic runs.
var Epoch = domain.Epoch

// DeterministicPrefix marks run ids derived from campaign content.
const DeterministicPrefix = "det-"

// DefaultScopeTTL is how long an agent may act on a dispatched scope.
const DefaultScopeTTL = 15 * time.Minute

// Runner executes one campaign at a time, sequentially in declaration order.
// A zero Runner runs locally against the default module registry.
type Runner struct {
	Log      *log.Entry
	Registry *native.Registry

	// Agent, when set, delegates every module to a remote agent.
	Agent  *agent.Config
	Policy *domain.PolicySpec

	Deterministic bool
	Now           func() time.Time
	NewID         func() string
	ScopeTTL      time.Duration

	// SignKey, when set, signs the pack before it is archived and returned.
	SignKey []byte

	// Store archives the finished pack. Failures are logged only.
	Store domain.EvidenceRepo
}

// DeterministicRunID derives a run id from the canonical form of c.
func DeterministicRunID(c domain.CampaignSpec) (string, error) {
	payload, err := canonical.Marshal(c.Normalized())
	if err != nil {
		return "", fmt.Errorf("derive run id: %w", err)
	}
	sum := sha256.Sum256(payload)
	return DeterministicPrefix + hex.EncodeToString(sum[:])[:16], nil
}

// Score returns passed/total, 0 for an empty run, and the outcome counts.
func Score(results []domain.ModuleResult) (float64, domain.Summary) {
	s := domain.Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case domain.StatusPass:
			s.Passed++
		case domain.StatusFail:
			s.Failed++
		case domain.StatusError:
			s.Errored++
		case domain.StatusSkipped:
			s.Skipped++
		}
	}
	if s.Total == 0 {
		return 0, s
	}
	return float64(s.Passed) / float64(s.Total), s
}

func (r Runner) logger() *log.Entry {
	if r.Log != nil {
		return r.Log
	}
	return log.NewEntry(log.StandardLogger())
}

func (r Runner) registry() *native.Registry {
	if r.Registry != nil {
		return r.Registry
	}
	return native.Default()
}

func (r Runner) now() time.Time {
	if r.Deterministic {
		return Epoch
	}
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r Runner) runID(c domain.CampaignSpec) (string, error) {
	if r.Deterministic {
		return DeterministicRunID(c)
	}
	if r.NewID != nil {
		return r.NewID(), nil
	}
	return uuid.NewString(), nil
}

func (r Runner) scopeExpiry() time.Time {
	if r.Deterministic {
		return Epoch
	}
	ttl := r.ScopeTTL
	if ttl <= 0 {
		ttl = DefaultScopeTTL
	}
	return r.now().Add(ttl)
}

// run is the state of one Execute call.
type run struct {
	Runner
	campaign domain.CampaignSpec
	id       string
	log      *log.Entry
	client   *agent.Client
	session  domain.HandshakeResult
	results  []domain.ModuleResult
}

// Execute runs every module of c and returns the evidence pack. Per-module
// failures become error results; only an underivable run id is returned as
// an error.
func (r Runner) Execute(ctx context.Context, c domain.CampaignSpec) (domain.EvidencePack, error) {
	c = c.Normalized()
	id, err := r.runID(c)
	if err != nil {
		return domain.EvidencePack{}, err
	}

	state := &run{
		Runner:   r,
		campaign: c,
		id:       id,
		log:      r.logger().WithFields(log.Fields{"campaign": c.Name, "run_id": id}),
		results:  make([]domain.ModuleResult, 0, len(c.Modules)),
	}
	startedAt := r.now()

	state.log.WithFields(log.Fields{
		"modules":       len(c.Modules),
		"targets":       len(c.Targets),
		"deterministic": r.Deterministic,
		"agent":         r.Agent != nil,
	}).Info("Starting campaign execution")

	if r.Agent != nil {
		state.client = agent.New(*r.Agent, agent.WithLogger(state.log), agent.WithClock(r.now))
		defer state.client.Close()

		if err := state.handshake(ctx); err != nil {
			state.log.WithError(err).Warn("Agent handshake failed, marking every module as error")
			for _, m := range c.Modules {
				state.fail(m, map[string]any{"error": "agent handshake failed", "message": err.Error()}, "")
			}
			return state.finish(startedAt), nil
		}
	}

	targets := c.TargetIndex()
	for _, m := range c.Modules {
		state.step(ctx, m, targets)
	}
	return state.finish(startedAt), nil
}

func (s *run) handshake(ctx context.Context) error {
	res, err := s.client.Handshake(ctx, agent.HandshakeRequest{
		AgentID:      s.Agent.AgentID,
		Capabilities: s.campaign.ModuleNames(),
		Version:      s.campaign.Version,
	})
	if err != nil {
		return err
	}
	s.session = res
	return nil
}

func (s *run) step(ctx context.Context, m domain.ModuleSpec, targets map[string]domain.Target) {
	l := s.log.WithFields(log.Fields{"module_id": m.ID, "module": m.Module, "target_id": m.TargetID})

	if _, ok := targets[m.TargetID]; !ok {
		l.Warn("Unknown target")
		s.fail(m, map[string]any{"error": "unknown target"}, "Unknown target: "+m.TargetID)
		return
	}

	mod, err := s.registry().Lookup(m.Module)
	if err != nil {
		l.WithError(err).Warn("Unknown module")
		s.fail(m, map[string]any{"error": "unknown module"}, err.Error())
		return
	}

	allowlist := policy.EffectiveAllowlist(m, s.Policy)

	var res domain.ModuleResult
	if s.client != nil {
		if !s.session.Grants(m.Module) {
			l.Warn("Module not supported by agent")
			s.fail(m, map[string]any{"error": "module not supported by agent"}, "missing capability: "+m.Module)
			return
		}
		res, err = s.client.ExecuteModule(ctx, agent.ExecuteRequest{
			RunID:        s.id,
			ModuleID:     m.ID,
			Module:       m.Module,
			TargetID:     m.TargetID,
			Params:       m.Params,
			Expectations: m.Expectations,
			Scope:        agent.Scope{Allowlist: allowlist, ExpiresAt: s.scopeExpiry()},
		})
		if err != nil {
			l.WithError(err).Warn("Agent execution failed")
			s.fail(m, map[string]any{"error": "agent failure", "message": err.Error()}, "")
			return
		}
	} else {
		res = s.dispatch(ctx, mod, native.ModuleContext{
			ModuleID:     m.ID,
			TargetID:     m.TargetID,
			Params:       m.Params,
			Expectations: m.Expectations,
			Allowlist:    allowlist,
			Clock:        s.now,
		})
	}

	res.ModuleID = m.ID
	if !res.Status.Valid() {
		l.WithField("status", string(res.Status)).Error("Module returned invalid status")
		s.fail(m, map[string]any{
			"error":   "module exception",
			"message": fmt.Sprintf("invalid status %q", string(res.Status)),
		}, "")
		return
	}
	if s.Deterministic {
		res = res.WithTimestamps(Epoch)
	}
	l.WithField("status", res.Status).Info("Module execution complete")
	s.results = append(s.results, res)
}

// dispatch runs a local module, converting a panic into an error result.
func (s *run) dispatch(ctx context.Context, mod native.Module, mc native.ModuleContext) (res domain.ModuleResult) {
	defer func() {
		if p := recover(); p != nil {
			s.log.WithFields(log.Fields{"module_id": mc.ModuleID, "panic": p}).Error("Module panicked")
			res = domain.NewResult(mc.ModuleID, domain.StatusError, s.now(),
				map[string]any{"error": "module exception", "message": fmt.Sprint(p)}, "")
		}
	}()
	return mod.Execute(ctx, mc)
}

func (s *run) fail(m domain.ModuleSpec, evidence map[string]any, notes string) {
	s.results = append(s.results, domain.NewResult(m.ID, domain.StatusError, s.now(), evidence, notes))
}

func (s *run) finish(startedAt time.Time) domain.EvidencePack {
	score, summary := Score(s.results)
	pack := domain.EvidencePack{
		SchemaVersion: domain.SchemaV1,
		CampaignName:  s.campaign.Name,
		RunID:         s.id,
		StartedAt:     startedAt,
		FinishedAt:    s.now(),
		Results:       s.results,
		Score:         score,
		Summary:       summary,
	}

	s.log.WithFields(log.Fields{
		"score":   score,
		"passed":  summary.Passed,
		"failed":  summary.Failed,
		"errored": summary.Errored,
	}).Info("Campaign execution finished")

	if len(s.SignKey) > 0 {
		signed, err := evidence.Sign(pack, s.SignKey)
		if err != nil {
			s.log.WithError(err).Error("Failed to sign evidence")
		} else {
			pack = signed
		}
	}
	if s.Store != nil {
		if err := s.Store.Save(pack); err != nil {
			s.log.WithError(err).Error("Failed to archive evidence")
		}
	}
	return pack
}
