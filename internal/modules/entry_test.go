package modules

import (
	"context"
	"testing"
	"time"

	"bytemomo/bastion/internal/domain"
	"bytemomo/bastion/internal/native"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Unix(0, 0).UTC()

func dispatch(t *testing.T, name string, mc native.ModuleContext) domain.ModuleResult {
	t.Helper()
	Init()
	mod, err := native.Lookup(name)
	require.NoError(t, err)
	mc.Clock = func() time.Time { return epoch }
	return mod.Execute(context.Background(), mc)
}

func TestInit_RegistersBuiltins(t *testing.T) {
	Init()
	assert.Subset(t, native.List(), []string{"echo_expectation", "noop"})
}

func TestNoop(t *testing.T) {
	res := dispatch(t, "noop", native.ModuleContext{ModuleID: "noop-1", Allowlist: []string{"local"}})

	assert.Equal(t, domain.StatusPass, res.Status)
	assert.Equal(t, "noop-1", res.ModuleID)
	assert.Equal(t, map[string]any{"message": "noop completed"}, res.Evidence)
	assert.Equal(t, epoch, res.StartedAt)
}

func TestEchoExpectation(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		observed any
		want     domain.Status
	}{
		{name: "equal strings", expected: "ok", observed: "ok", want: domain.StatusPass},
		{name: "different strings", expected: "ok", observed: "nope", want: domain.StatusFail},
		{name: "both missing", expected: nil, observed: nil, want: domain.StatusPass},
		{name: "nested equal", expected: map[string]any{"a": 1}, observed: map[string]any{"a": 1}, want: domain.StatusPass},
		{name: "type mismatch", expected: 1, observed: "1", want: domain.StatusFail},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mc := native.ModuleContext{
				ModuleID:     "echo-1",
				Allowlist:    []string{"local"},
				Expectations: map[string]any{},
				Params:       map[string]any{},
			}
			if tc.expected != nil {
				mc.Expectations["expected_value"] = tc.expected
			}
			if tc.observed != nil {
				mc.Params["value"] = tc.observed
			}

			res := dispatch(t, "echo_expectation", mc)

			assert.Equal(t, tc.want, res.Status)
			assert.Equal(t, tc.expected, res.Evidence["expected"])
			assert.Equal(t, tc.observed, res.Evidence["observed"])
		})
	}
}

func TestBuiltins_RejectEmptyAllowlist(t *testing.T) {
	for _, name := range []string{"noop", "echo_expectation"} {
		t.Run(name, func(t *testing.T) {
			res := dispatch(t, name, native.ModuleContext{ModuleID: "m"})

			assert.Equal(t, domain.StatusError, res.Status)
			assert.Equal(t, map[string]any{"error": "empty allowlist"}, res.Evidence)
			assert.Equal(t, "scope_allowlist must not be empty", res.Notes)
		})
	}
}
