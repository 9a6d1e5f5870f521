package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Status is the terminal outcome of one module dispatch.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Statuses lists every valid status in report order.
var Statuses = []Status{StatusPass, StatusFail, StatusSkipped, StatusError}

// Valid reports whether s is one of the closed set of statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPass, StatusFail, StatusSkipped, StatusError:
		return true
	default:
		return false
	}
}

// ParseStatus converts a raw string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("invalid status %q: must be pass/fail/skipped/error", raw)
	}
	return s, nil
}

// UnmarshalJSON rejects statuses outside the closed set.
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("status must be a string: %w", err)
	}
	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ModuleResult is the outcome of one module dispatch.
type ModuleResult struct {
	ModuleID   string         `json:"module_id"`
	Status     Status         `json:"status" enum:"pass,fail,skipped,error"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Evidence   map[string]any `json:"evidence" required:"false"`
	Notes      string         `json:"notes,omitempty"`
}

// NewResult builds a result whose start and finish are both at.
func NewResult(moduleID string, status Status, at time.Time, evidence map[string]any, notes string) ModuleResult {
	if evidence == nil {
		evidence = map[string]any{}
	}
	return ModuleResult{
		ModuleID:   moduleID,
		Status:     status,
		StartedAt:  at,
		FinishedAt: at,
		Evidence:   evidence,
		Notes:      notes,
	}
}

// WithTimestamps returns a copy of r with both timestamps set to at.
func (r ModuleResult) WithTimestamps(at time.Time) ModuleResult {
	out := r
	out.Evidence = maps.Clone(r.Evidence)
	out.StartedAt = at
	out.FinishedAt = at
	return out
}

// Duration is the elapsed time between start and finish, never negative.
func (r ModuleResult) Duration() time.Duration {
	d := r.FinishedAt.Sub(r.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}
