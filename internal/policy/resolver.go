// Package policy resolves the effective scope allowlist of a module instance
// and fingerprints policy documents.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"bytemomo/bastion/internal/canonical"
	"bytemomo/bastion/internal/domain"
)

// HashPrefix tags policy digests with their algorithm.
const HashPrefix = "sha256:"

// EffectiveAllowlist returns the first non-empty allowlist in precedence
// order: module rule, target rule, global policy allowlist, then the
// campaign-declared scope_allowlist. A nil policy skips straight to the last.
func EffectiveAllowlist(spec domain.ModuleSpec, p *domain.PolicySpec) []string {
	if p == nil {
		return spec.ScopeAllowlist
	}
	if rule, ok := p.Modules[spec.ID]; ok && len(rule.Allowlist) > 0 {
		return rule.Allowlist
	}
	if rule, ok := p.Targets[spec.TargetID]; ok && len(rule.Allowlist) > 0 {
		return rule.Allowlist
	}
	if len(p.Allowlist) > 0 {
		return p.Allowlist
	}
	return spec.ScopeAllowlist
}

// Resolver binds EffectiveAllowlist to one policy.
func Resolver(p *domain.PolicySpec) func(domain.ModuleSpec) []string {
	return func(spec domain.ModuleSpec) []string {
		return EffectiveAllowlist(spec, p)
	}
}

// Hash returns a digest of the canonical JSON form of p. Omitted and empty
// collections hash the same.
func Hash(p domain.PolicySpec) (string, error) {
	payload, err := canonical.Marshal(p.Normalized())
	if err != nil {
		return "", fmt.Errorf("hash policy: %w", err)
	}
	sum := sha256.Sum256(payload)
	return HashPrefix + hex.EncodeToString(sum[:]), nil
}
