package domain

import "fmt"

// Finding codes reported by ValidateCampaign.
const (
	CodeUnsupportedVersion = "unsupported_version"
	CodeDuplicateTarget    = "duplicate_target"
	CodeDuplicateModule    = "duplicate_module"
	CodeUnknownTarget      = "unknown_target"
	CodeUnknownModule      = "unknown_module"
	CodeEmptyAllowlist     = "empty_allowlist"
)

// Finding is one defect found while linting a campaign.
type Finding struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// ValidateCampaign lints a loaded campaign and returns every defect found.
// known reports whether a module name is registered; allowlist resolves the
// effective allowlist of a module instance.
func ValidateCampaign(c CampaignSpec, known func(string) bool, allowlist func(ModuleSpec) []string) []Finding {
	findings := []Finding{}

	version := c.Version
	if version == "" {
		version = SchemaV1
	}
	if _, ok := SupportedCampaignVersions[version]; !ok {
		findings = append(findings, Finding{
			Code:    CodeUnsupportedVersion,
			Message: fmt.Sprintf("unsupported campaign version: %s", version),
			Path:    "$.version",
		})
	}

	targets := make(map[string]struct{}, len(c.Targets))
	for i, t := range c.Targets {
		if _, dup := targets[t.ID]; dup {
			findings = append(findings, Finding{
				Code:    CodeDuplicateTarget,
				Message: fmt.Sprintf("duplicate target id: %s", t.ID),
				Path:    fmt.Sprintf("$.targets[%d].id", i),
			})
		}
		targets[t.ID] = struct{}{}
	}

	modules := make(map[string]struct{}, len(c.Modules))
	for i, m := range c.Modules {
		path := fmt.Sprintf("$.modules[%d]", i)
		if _, dup := modules[m.ID]; dup {
			findings = append(findings, Finding{
				Code:    CodeDuplicateModule,
				Message: fmt.Sprintf("duplicate module id: %s", m.ID),
				Path:    path + ".id",
			})
		}
		modules[m.ID] = struct{}{}

		if known != nil && !known(m.Module) {
			findings = append(findings, Finding{
				Code:    CodeUnknownModule,
				Message: fmt.Sprintf("unknown module: %s", m.Module),
				Path:    path + ".module",
			})
		}
		if _, ok := targets[m.TargetID]; !ok {
			findings = append(findings, Finding{
				Code:    CodeUnknownTarget,
				Message: fmt.Sprintf("unknown target: %s", m.TargetID),
				Path:    path + ".target_id",
			})
		}
		effective := m.ScopeAllowlist
		if allowlist != nil {
			effective = allowlist(m)
		}
		if len(effective) == 0 {
			findings = append(findings, Finding{
				Code:    CodeEmptyAllowlist,
				Message: fmt.Sprintf("module %s has an empty effective allowlist", m.ID),
				Path:    path + ".scope_allowlist",
			})
		}
	}
	return findings
}
