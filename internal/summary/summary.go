// Package summary derives, validates and compares the flattened summary form
// of evidence packs used for golden-file regression checks.
package summary

import (
	"fmt"
	"time"

	"bytemomo/bastion/internal/domain"
)

// Result is one module outcome in a summary.
type Result struct {
	ModuleID    string        `json:"module_id"`
	Status      domain.Status `json:"status" enum:"pass,fail,skipped,error"`
	Notes       *string       `json:"notes" required:"false" nullable:"true"`
	DurationMS  int64         `json:"duration_ms" minimum:"0"`
	EvidenceRef string        `json:"evidence_ref"`
}

// Summary is the diff-friendly projection of an evidence pack.
type Summary struct {
	OK           bool           `json:"ok"`
	CampaignName string         `json:"campaign_name"`
	RunID        string         `json:"run_id"`
	StartedAt    string         `json:"started_at"`
	FinishedAt   string         `json:"finished_at"`
	Score        float64        `json:"score"`
	Summary      domain.Summary `json:"summary"`
	Results      []Result       `json:"results"`
}

// EvidenceRef points at the evidence of the i-th result of a pack.
func EvidenceRef(i int) string {
	return fmt.Sprintf("$.results[%d].evidence", i)
}

// FromEvidence projects pack into a Summary. A run is ok when nothing failed
// or errored.
func FromEvidence(pack domain.EvidencePack) Summary {
	out := Summary{
		OK:           pack.Summary.Failed == 0 && pack.Summary.Errored == 0,
		CampaignName: pack.CampaignName,
		RunID:        pack.RunID,
		StartedAt:    pack.StartedAt.UTC().Format(time.RFC3339Nano),
		FinishedAt:   pack.FinishedAt.UTC().Format(time.RFC3339Nano),
		Score:        pack.Score,
		Summary:      pack.Summary,
		Results:      make([]Result, 0, len(pack.Results)),
	}
	for i, r := range pack.Results {
		res := Result{
			ModuleID:    r.ModuleID,
			Status:      r.Status,
			DurationMS:  r.Duration().Milliseconds(),
			EvidenceRef: EvidenceRef(i),
		}
		if r.Notes != "" {
			notes := r.Notes
			res.Notes = &notes
		}
		out.Results = append(out.Results, res)
	}
	return out
}
