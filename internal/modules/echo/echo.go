package echo

import (
	"context"
	"reflect"

	"bytemomo/bastion/internal/domain"
	"bytemomo/bastion/internal/native"
)

// Name is the registry key of the echo expectation module.
const Name = "echo_expectation"

func Init() {
	native.Register(Name, native.Descriptor{
		Module: native.ModuleFunc(run),
		Description: `Reference module: compares params.value against expectations.expected_value.
Passes on equality, fails otherwise, and records both values as evidence.`,
	})
}

func run(ctx context.Context, mc native.ModuleContext) domain.ModuleResult {
	if res, ok := native.CheckScope(mc); !ok {
		return res
	}
	started := mc.Now()
	expected := mc.Expectations["expected_value"]
	observed := mc.Params["value"]

	status := domain.StatusFail
	if reflect.DeepEqual(expected, observed) {
		status = domain.StatusPass
	}
	return domain.ModuleResult{
		ModuleID:   mc.ModuleID,
		Status:     status,
		StartedAt:  started,
		FinishedAt: mc.Now(),
		Evidence:   map[string]any{"expected": expected, "observed": observed},
	}
}
