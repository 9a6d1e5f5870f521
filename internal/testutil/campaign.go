package testutil

import "bytemomo/bastion/internal/domain"

// SampleCampaign is the two-module campaign used across tests: noop passes
// and echo_expectation fails because params.value differs from the expectation.
func SampleCampaign() domain.CampaignSpec {
	return domain.CampaignSpec{
		Version: domain.SchemaV1,
		Name:    "sample",
		Targets: []domain.Target{{ID: "local-host", Name: "Local host"}},
		Modules: []domain.ModuleSpec{
			{
				ID:             "noop-1",
				Module:         "noop",
				TargetID:       "local-host",
				ScopeAllowlist: []string{"local"},
			},
			{
				ID:             "echo-1",
				Module:         "echo_expectation",
				TargetID:       "local-host",
				ScopeAllowlist: []string{"local"},
				Expectations:   map[string]any{"expected_value": "ok"},
				Params:         map[string]any{"value": "nope"},
			},
		},
	}
}
