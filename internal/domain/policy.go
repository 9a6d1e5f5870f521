package domain

import "fmt"

// SupportedPolicyVersions lists the policy versions accepted at load time.
var SupportedPolicyVersions = map[string]struct{}{SchemaV1: {}}

// PolicyRule is an allowlist override for one target or module instance.
type PolicyRule struct {
	Allowlist []string `yaml:"allowlist,omitempty" json:"allowlist" required:"false"`
}

// PolicySpec overrides the campaign-declared scope allowlists.
//
// Resolution is most-specific first: module rule, target rule, global
// allowlist, and finally the module's own scope_allowlist.
type PolicySpec struct {
	Version   string                `yaml:"version,omitempty" json:"version" required:"false" default:"v1"`
	Allowlist []string              `yaml:"allowlist,omitempty" json:"allowlist" required:"false"`
	Targets   map[string]PolicyRule `yaml:"targets,omitempty" json:"targets" required:"false"`
	Modules   map[string]PolicyRule `yaml:"modules,omitempty" json:"modules" required:"false"`
}

// Normalized returns a copy with the default version and empty collections filled in.
func (p PolicySpec) Normalized() PolicySpec {
	out := PolicySpec{
		Version:   p.Version,
		Allowlist: p.Allowlist,
		Targets:   make(map[string]PolicyRule, len(p.Targets)),
		Modules:   make(map[string]PolicyRule, len(p.Modules)),
	}
	if out.Version == "" {
		out.Version = SchemaV1
	}
	if out.Allowlist == nil {
		out.Allowlist = []string{}
	}
	for k, r := range p.Targets {
		if r.Allowlist == nil {
			r.Allowlist = []string{}
		}
		out.Targets[k] = r
	}
	for k, r := range p.Modules {
		if r.Allowlist == nil {
			r.Allowlist = []string{}
		}
		out.Modules[k] = r
	}
	return out
}

// Validate checks the policy version.
func (p PolicySpec) Validate() error {
	version := p.Version
	if version == "" {
		version = SchemaV1
	}
	if _, ok := SupportedPolicyVersions[version]; !ok {
		return fmt.Errorf("%w: policy version %q", ErrUnsupportedVersion, version)
	}
	return nil
}
