package noop

import (
	"context"

	"bytemomo/bastion/internal/domain"
	"bytemomo/bastion/internal/native"
)

// Name is the registry key of the noop module.
const Name = "noop"

func Init() {
	native.Register(Name, native.Descriptor{
		Module:      native.ModuleFunc(run),
		Description: "Reference module: passes whenever it is given a non-empty scope allowlist.",
	})
}

func run(ctx context.Context, mc native.ModuleContext) domain.ModuleResult {
	if res, ok := native.CheckScope(mc); !ok {
		return res
	}
	started := mc.Now()
	return domain.ModuleResult{
		ModuleID:   mc.ModuleID,
		Status:     domain.StatusPass,
		StartedAt:  started,
		FinishedAt: mc.Now(),
		Evidence:   map[string]any{"message": "noop completed"},
	}
}
