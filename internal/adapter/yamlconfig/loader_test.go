package yamlconfig

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bytemomo/bastion/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const campaignYAML = `
version: v1
name: "test-campaign"
targets:
  - id: "local-host"
    name: "Local Host"
    tags: ["dev"]
modules:
  - id: "noop-1"
    module: "noop"
    target_id: "local-host"
    scope_allowlist: ["local"]
    expectations: {}
    params: {}
  - id: "echo-1"
    module: "echo_expectation"
    target_id: "local-host"
    scope_allowlist: ["local"]
    expectations:
      expected_value: "ok"
    params:
      value: 3
`

func TestLoadCampaign(t *testing.T) {
	c, err := LoadCampaign(writeFile(t, "campaign.yaml", campaignYAML))
	require.NoError(t, err)

	assert.Equal(t, "test-campaign", c.Name)
	require.Len(t, c.Targets, 1)
	assert.Equal(t, []string{"dev"}, c.Targets[0].Tags)
	require.Len(t, c.Modules, 2)
	assert.Equal(t, "ok", c.Modules[1].Expectations["expected_value"])
	assert.Equal(t, 3, c.Modules[1].Params["value"])
}

func TestLoadCampaign_DefaultsVersionAndAcceptsJSON(t *testing.T) {
	path := writeFile(t, "campaign.json", `{"name":"j","targets":[],"modules":[]}`)
	c, err := LoadCampaign(path)
	require.NoError(t, err)
	assert.Equal(t, domain.SchemaV1, c.Version)
}

func TestLoadCampaign_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		reason  string
	}{
		{"invalid yaml", "this is: [not valid: yaml", ReasonInvalidSyntax},
		{"empty", "", ReasonNotObject},
		{"list", "- a\n- b\n", ReasonNotObject},
		{"unknown field", "name: x\ntargets: []\nmodules: []\nbogus: 1\n", ReasonInvalidSpec},
		{"missing name", "targets: []\nmodules: []\n", ReasonInvalidSpec},
		{"unsupported version", "version: v9\nname: x\ntargets: []\nmodules: []\n", ReasonUnsupported},
		{
			"duplicate target",
			"name: x\ntargets:\n  - {id: a, name: A}\n  - {id: a, name: B}\nmodules: []\n",
			ReasonInvalidSpec,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCampaign(writeFile(t, "campaign.yaml", tt.content))
			var le *domain.LoadError
			require.True(t, errors.As(err, &le), "got %v", err)
			assert.Equal(t, "campaign "+tt.reason, le.Reason)
		})
	}

	_, err := LoadCampaign(filepath.Join(t.TempDir(), "missing.yaml"))
	var le *domain.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "campaign "+ReasonNotFound, le.Reason)

	_, err = LoadCampaign(writeFile(t, "c.yaml", "version: v2\nname: x\ntargets: []\nmodules: []\n"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedVersion)
}

func TestLoadPolicy(t *testing.T) {
	p, err := LoadPolicy(writeFile(t, "policy.yaml", `
allowlist: ["global"]
targets:
  local-host:
    allowlist: ["target"]
modules:
  noop-1:
    allowlist: ["module"]
`))
	require.NoError(t, err)
	assert.Equal(t, domain.SchemaV1, p.Version)
	assert.Equal(t, []string{"global"}, p.Allowlist)
	assert.Equal(t, []string{"target"}, p.Targets["local-host"].Allowlist)
	assert.Equal(t, []string{"module"}, p.Modules["noop-1"].Allowlist)

	_, err = LoadPolicy(writeFile(t, "policy.yaml", "version: v3\n"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedVersion)

	_, err = LoadPolicy(writeFile(t, "policy.yaml", "this is: [not valid: yaml"))
	var le *domain.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "policy "+ReasonInvalidSyntax, le.Reason)
}

func TestLoadPayload(t *testing.T) {
	v, err := LoadPayload(writeFile(t, "s.json", `{"total": 1, "score": 1.0}`))
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, json.Number("1"), m["total"])
	assert.Equal(t, json.Number("1.0"), m["score"])

	v, err = LoadPayload(writeFile(t, "s.yml", "total: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"total": 1}, v)

	_, err = LoadPayload(writeFile(t, "s.json", "{not json"))
	var le *domain.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "invalid JSON", le.Reason)

	_, err = LoadPayload(writeFile(t, "s.txt", "{}"))
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "payload "+ReasonFileType, le.Reason)
}

func TestLoadModuleSpecAndResult(t *testing.T) {
	spec, err := LoadModuleSpec(writeFile(t, "module_spec.yaml", `
id: "echo-1"
module: "echo_expectation"
target_id: "local-host"
scope_allowlist:
  - "local"
expectations:
  expected_value: "ok"
params:
  value: "ok"
`))
	require.NoError(t, err)
	assert.Equal(t, "echo-1", spec.ID)
	assert.Equal(t, []string{"local"}, spec.ScopeAllowlist)

	res, err := LoadModuleResult(writeFile(t, "module_result.json", `{
  "module_id": "echo-1",
  "status": "pass",
  "started_at": "1970-01-01T00:00:00+00:00",
  "finished_at": "1970-01-01T00:00:00+00:00",
  "evidence": {"expected": "ok", "observed": "ok"},
  "notes": null
}`))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPass, res.Status)
	assert.Equal(t, "", res.Notes)

	tests := []struct {
		name    string
		file    string
		content string
		result  bool
	}{
		{"spec missing target", "s.yaml", "id: a\nmodule: noop\n", false},
		{"spec unknown field", "s.yaml", "id: a\nmodule: noop\ntarget_id: t\nextra: 1\n", false},
		{"spec not object", "s.json", `["a"]`, false},
		{"result bad status", "r.json", `{"module_id":"a","status":"maybe","started_at":"1970-01-01T00:00:00Z","finished_at":"1970-01-01T00:00:00Z"}`, true},
		{"result missing timestamps", "r.json", `{"module_id":"a","status":"pass"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			var err error
			if tt.result {
				_, err = LoadModuleResult(path)
			} else {
				_, err = LoadModuleSpec(path)
			}
			var le *domain.LoadError
			require.ErrorAs(t, err, &le)
		})
	}
}
