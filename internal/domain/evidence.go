package domain

import (
	"slices"
	"time"
)

// Epoch is the fixed clock of deterministic runs.
var Epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

// Summary holds the four-way outcome counts of a run.
type Summary struct {
	Total   int `json:"total" minimum:"0"`
	Passed  int `json:"passed" minimum:"0"`
	Failed  int `json:"failed" minimum:"0"`
	Errored int `json:"errored" minimum:"0"`
	Skipped int `json:"skipped" minimum:"0"`
}

// EvidencePack is the artifact capturing every module outcome of one run.
//
// Results keep campaign declaration order; evidence references index into it.
type EvidencePack struct {
	SchemaVersion string         `json:"schema_version" required:"false" default:"v1"`
	CampaignName  string         `json:"campaign_name"`
	RunID         string         `json:"run_id"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	Results       []ModuleResult `json:"results"`
	Score         float64        `json:"score" minimum:"0" maximum:"1"`
	Summary       Summary        `json:"summary"`
	SignatureAlg  string         `json:"signature_alg,omitempty"`
	Signature     string         `json:"signature,omitempty"`
}

// Signed reports whether the pack carries both signature fields.
func (p EvidencePack) Signed() bool {
	return p.SignatureAlg != "" && p.Signature != ""
}

// Clone returns a copy that shares no slices with p.
func (p EvidencePack) Clone() EvidencePack {
	out := p
	out.Results = slices.Clone(p.Results)
	return out
}

// WithSignature returns a copy of p carrying the given signature.
func (p EvidencePack) WithSignature(alg, signature string) EvidencePack {
	out := p.Clone()
	out.SignatureAlg = alg
	out.Signature = signature
	return out
}

// HandshakeResult is the session granted by a remote agent.
type HandshakeResult struct {
	AgentID      string   `json:"agent_id"`
	Capabilities []string `json:"capabilities"`
	PolicyHash   string   `json:"policy_hash,omitempty"`
}

// Grants reports whether the session includes the named module capability.
func (h HandshakeResult) Grants(module string) bool {
	return slices.Contains(h.Capabilities, module)
}
