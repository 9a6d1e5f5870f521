package domain

import (
	"fmt"
	"sort"
)

// SchemaV1 is the only campaign, policy and evidence schema version understood today.
const SchemaV1 = "v1"

// SupportedCampaignVersions lists the campaign versions accepted at load time.
var SupportedCampaignVersions = map[string]struct{}{SchemaV1: {}}

// Target is the system under test a module instance is scoped to.
type Target struct {
	ID   string   `yaml:"id" json:"id"`
	Name string   `yaml:"name" json:"name"`
	Tags []string `yaml:"tags,omitempty" json:"tags" required:"false"`
}

// ModuleSpec is one module instance declared by a campaign.
type ModuleSpec struct {
	ID             string         `yaml:"id" json:"id"`
	Module         string         `yaml:"module" json:"module"`
	TargetID       string         `yaml:"target_id" json:"target_id"`
	Expectations   map[string]any `yaml:"expectations,omitempty" json:"expectations" required:"false"`
	Params         map[string]any `yaml:"params,omitempty" json:"params" required:"false"`
	ScopeAllowlist []string       `yaml:"scope_allowlist,omitempty" json:"scope_allowlist" required:"false"`
}

// CampaignSpec is a named set of targets and module instances executed as one run.
type CampaignSpec struct {
	Version string       `yaml:"version,omitempty" json:"version" required:"false" default:"v1"`
	Name    string       `yaml:"name" json:"name"`
	Targets []Target     `yaml:"targets" json:"targets"`
	Modules []ModuleSpec `yaml:"modules" json:"modules"`
}

// Normalized returns a copy with defaults applied and nil collections replaced
// by empty ones, so that omitted and explicitly empty fields hash identically.
func (c CampaignSpec) Normalized() CampaignSpec {
	out := CampaignSpec{
		Version: c.Version,
		Name:    c.Name,
		Targets: make([]Target, 0, len(c.Targets)),
		Modules: make([]ModuleSpec, 0, len(c.Modules)),
	}
	if out.Version == "" {
		out.Version = SchemaV1
	}
	for _, t := range c.Targets {
		if t.Tags == nil {
			t.Tags = []string{}
		}
		out.Targets = append(out.Targets, t)
	}
	for _, m := range c.Modules {
		if m.Expectations == nil {
			m.Expectations = map[string]any{}
		}
		if m.Params == nil {
			m.Params = map[string]any{}
		}
		if m.ScopeAllowlist == nil {
			m.ScopeAllowlist = []string{}
		}
		out.Modules = append(out.Modules, m)
	}
	return out
}

// Validate checks the invariants enforced at load time.
func (c CampaignSpec) Validate() error {
	version := c.Version
	if version == "" {
		version = SchemaV1
	}
	if _, ok := SupportedCampaignVersions[version]; !ok {
		return fmt.Errorf("%w: campaign version %q", ErrUnsupportedVersion, version)
	}
	if c.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	seen := make(map[string]struct{}, len(c.Targets))
	for i, t := range c.Targets {
		if t.ID == "" {
			return fmt.Errorf("targets[%d]: id is required", i)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("targets[%d]: duplicate target id %q", i, t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	for i, m := range c.Modules {
		if m.ID == "" {
			return fmt.Errorf("modules[%d]: id is required", i)
		}
		if m.Module == "" {
			return fmt.Errorf("modules[%d]: module is required", i)
		}
	}
	return nil
}

// TargetIndex maps target ids to targets.
func (c CampaignSpec) TargetIndex() map[string]Target {
	idx := make(map[string]Target, len(c.Targets))
	for _, t := range c.Targets {
		idx[t.ID] = t
	}
	return idx
}

// ModuleNames returns the sorted, deduplicated registry keys referenced by the campaign.
func (c CampaignSpec) ModuleNames() []string {
	set := make(map[string]struct{}, len(c.Modules))
	for _, m := range c.Modules {
		set[m.Module] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
