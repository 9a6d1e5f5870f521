package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bytemomo/bastion/internal/adapter/jsonreport"
	"bytemomo/bastion/internal/evidence"
	"bytemomo/bastion/internal/modules"
	"bytemomo/bastion/internal/testutil"
)

func init() {
	modules.Init()
}

// execute runs the CLI in-process and returns stdout and the exit code.
func execute(t *testing.T, args ...string) (string, int) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--log-level", "error"))
	code := exitCode(&errOut, root.Execute())
	return out.String(), code
}

func decodeOut(t *testing.T, out string) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload), out)
	return payload
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const failingCampaign = `
version: v1
name: "test-campaign"
targets:
  - id: "local-host"
    name: "Local Host"
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
      value: "nope"
`

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "campaign.yaml")

	out, code := execute(t, "init", path)
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "Wrote example campaign")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleCampaign, string(b))

	_, code = execute(t, "init", path)
	assert.Equal(t, exitMalformed, code)
}

func TestRunAndReport(t *testing.T) {
	dir := t.TempDir()
	campaign := writeFixture(t, dir, "campaign.yaml", failingCampaign)
	evidencePath := filepath.Join(dir, "out", "evidence.json")

	out, code := execute(t, "run", campaign, "--out", evidencePath, "--deterministic")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "Wrote evidence pack to")

	pack, err := jsonreport.ReadEvidence(evidencePath)
	require.NoError(t, err)
	assert.Equal(t, "test-campaign", pack.CampaignName)
	assert.Equal(t, 0.5, pack.Score)
	assert.False(t, pack.Signed())

	t.Run("text", func(t *testing.T) {
		out, code := execute(t, "report", evidencePath)
		assert.Equal(t, exitOK, code)
		assert.Contains(t, out, "Campaign: test-campaign")
		assert.Contains(t, out, "Modules")
		assert.Contains(t, out, "noop-1")
		assert.Contains(t, out, "echo-1")
	})

	t.Run("json with exit-nonzero", func(t *testing.T) {
		out, code := execute(t, "report", evidencePath, "--json", "--exit-nonzero")
		assert.Equal(t, exitFailed, code)
		payload := decodeOut(t, out)
		assert.Equal(t, false, payload["ok"])
		assert.Equal(t, float64(1), payload["summary"].(map[string]any)["failed"])
	})
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	campaign := writeFixture(t, dir, "campaign.yaml", failingCampaign)
	evidencePath := filepath.Join(dir, "evidence.json")

	tests := []struct {
		name string
		args []string
	}{
		{"missing campaign", []string{"run", filepath.Join(dir, "nope.yaml"), "--out", evidencePath}},
		{"bad campaign", []string{"run", writeFixture(t, dir, "bad.yaml", "::"), "--out", evidencePath}},
		{"missing out", []string{"run", campaign}},
		{"agent without url", []string{"run", campaign, "--out", evidencePath, "--agent-enabled"}},
		{"bad policy", []string{"run", campaign, "--out", evidencePath, "--policy", writeFixture(t, dir, "p.yaml", "version: v9\n")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, code := execute(t, tt.args...)
			assert.Equal(t, exitMalformed, code)
		})
	}
}

func TestRun_MockAgent(t *testing.T) {
	dir := t.TempDir()
	campaign := writeFixture(t, dir, "campaign.yaml", failingCampaign)
	evidencePath := filepath.Join(dir, "evidence.json")

	_, code := execute(t, "run", campaign, "--out", evidencePath, "--deterministic",
		"--agent-enabled", "--agent-url", "mock://local")
	require.Equal(t, exitOK, code)

	pack, err := jsonreport.ReadEvidence(evidencePath)
	require.NoError(t, err)
	require.Len(t, pack.Results, 2)
	assert.Equal(t, true, pack.Results[1].Evidence["mock"])
	assert.Equal(t, 1.0, pack.Score)
}

func TestSignAndVerify_LargeIntegerEvidence(t *testing.T) {
	dir := t.TempDir()
	campaign := writeFixture(t, dir, "campaign.yaml", strings.NewReplacer(
		`expected_value: "ok"`, "expected_value: 9007199254740993",
		`value: "nope"`, "value: 9007199254740993",
	).Replace(failingCampaign))
	evidencePath := filepath.Join(dir, "evidence.json")

	_, code := execute(t, "run", campaign, "--out", evidencePath, "--deterministic", "--sign-key", "secret")
	require.Equal(t, exitOK, code)

	raw, err := os.ReadFile(evidencePath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"observed": 9007199254740993`)

	_, code = execute(t, "verify", evidencePath, "--sign-key", "secret")
	assert.Equal(t, exitOK, code)

	resigned := filepath.Join(dir, "resigned.json")
	_, code = execute(t, "sign", evidencePath, "--sign-key", "secret", "--out", resigned)
	require.Equal(t, exitOK, code)
	raw, err = os.ReadFile(resigned)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"observed": 9007199254740993`)

	_, code = execute(t, "verify", resigned, "--sign-key", "secret")
	assert.Equal(t, exitOK, code)
}

func TestSignAndVerify(t *testing.T) {
	dir := t.TempDir()
	campaign := writeFixture(t, dir, "campaign.yaml", sampleCampaign)
	signedPath := filepath.Join(dir, "signed.json")
	unsignedPath := filepath.Join(dir, "unsigned.json")

	_, code := execute(t, "run", campaign, "--out", signedPath, "--deterministic", "--sign-key", "secret")
	require.Equal(t, exitOK, code)
	_, code = execute(t, "run", campaign, "--out", unsignedPath, "--deterministic")
	require.Equal(t, exitOK, code)

	tests := []struct {
		name   string
		path   string
		key    string
		code   int
		reason string
	}{
		{"valid", signedPath, "secret", exitOK, ""},
		{"wrong key", signedPath, "other", exitFailed, "invalid_signature"},
		{"unsigned", unsignedPath, "secret", exitFailed, "missing_signature"},
		{"invalid json", writeFixture(t, dir, "broken.json", "{not json"), "secret", exitMalformed, "invalid_json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, code := execute(t, "verify", tt.path, "--sign-key", tt.key, "--json")
			assert.Equal(t, tt.code, code)
			payload := decodeOut(t, out)
			if tt.reason == "" {
				assert.Equal(t, map[string]any{"ok": true}, payload)
				return
			}
			assert.Equal(t, map[string]any{"ok": false, "reason": tt.reason}, payload)
		})
	}

	t.Run("text", func(t *testing.T) {
		out, code := execute(t, "verify", signedPath, "--sign-key", "secret")
		assert.Equal(t, exitOK, code)
		assert.Contains(t, out, "evidence signature ok")
	})

	t.Run("sign command", func(t *testing.T) {
		out := filepath.Join(dir, "resigned.json")
		_, code := execute(t, "sign", unsignedPath, "--sign-key", "k2", "--out", out)
		require.Equal(t, exitOK, code)
		pack, err := jsonreport.ReadEvidence(out)
		require.NoError(t, err)
		assert.True(t, evidence.Verify(pack, []byte("k2")))
	})
}

func TestRun_SignKeyFromEnv(t *testing.T) {
	t.Setenv("BASTION_SIGN_KEY", "from-env")
	dir := t.TempDir()
	campaign := writeFixture(t, dir, "campaign.yaml", sampleCampaign)
	path := filepath.Join(dir, "evidence.json")

	_, code := execute(t, "run", campaign, "--out", path)
	require.Equal(t, exitOK, code)

	pack, err := jsonreport.ReadEvidence(path)
	require.NoError(t, err)
	assert.True(t, evidence.Verify(pack, []byte("from-env")))
}

func TestRun_ArchiveAndHistory(t *testing.T) {
	dir := t.TempDir()
	campaign := writeFixture(t, dir, "campaign.yaml", sampleCampaign)
	archive := filepath.Join(dir, "runs.db")
	runsDir := filepath.Join(dir, "runs-json")

	_, code := execute(t, "run", campaign, "--out", filepath.Join(dir, "e.json"), "--deterministic",
		"--sign-key", "secret", "--archive", archive, "--runs-dir", runsDir)
	require.Equal(t, exitOK, code)

	out, code := execute(t, "history", "--archive", archive, "--json")
	require.Equal(t, exitOK, code)
	var runs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "basic-campaign", runs[0]["campaign_name"])
	assert.Equal(t, true, runs[0]["signed"])

	runID := runs[0]["run_id"].(string)
	_, err := os.Stat(filepath.Join(runsDir, "runs", runID+".json"))
	assert.NoError(t, err)

	out, code = execute(t, "history", "--archive", archive, "--run", runID)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "Campaign: basic-campaign")
}

func TestValidateCampaign(t *testing.T) {
	dir := t.TempDir()
	good := writeFixture(t, dir, "good.yaml", `
version: v1
name: "test-campaign"
targets:
  - id: "local-host"
    name: "Local Host"
modules:
  - id: "noop-1"
    module: "noop"
    target_id: "local-host"
    scope_allowlist: ["local"]
`)
	bad := writeFixture(t, dir, "bad.yaml", `
version: v1
name: "test-campaign"
targets:
  - id: "local-host"
    name: "Local Host"
modules:
  - id: "bad-1"
    module: "does_not_exist"
    target_id: "nope"
    scope_allowlist: []
`)
	brokenPolicy := writeFixture(t, dir, "policy.yaml", "this is: [not valid: yaml")

	t.Run("ok", func(t *testing.T) {
		out, code := execute(t, "validate-campaign", good, "--json")
		assert.Equal(t, exitOK, code)
		assert.Equal(t, map[string]any{"errors": []any{}, "ok": true}, decodeOut(t, out))
	})

	t.Run("reports every finding", func(t *testing.T) {
		out, code := execute(t, "validate-campaign", bad, "--json")
		assert.Equal(t, exitFailed, code)
		payload := decodeOut(t, out)
		assert.Equal(t, false, payload["ok"])
		codes := map[string]bool{}
		for _, e := range payload["errors"].([]any) {
			codes[e.(map[string]any)["code"].(string)] = true
		}
		assert.Equal(t, map[string]bool{"unknown_module": true, "unknown_target": true, "empty_allowlist": true}, codes)
	})

	t.Run("invalid policy", func(t *testing.T) {
		out, code := execute(t, "validate-campaign", good, "--policy", brokenPolicy, "--json")
		assert.Equal(t, exitMalformed, code)
		assert.Equal(t, map[string]any{"ok": false, "reason": "invalid_policy"}, decodeOut(t, out))
	})

	t.Run("policy fills the allowlist", func(t *testing.T) {
		p := writeFixture(t, dir, "allow.yaml", "version: v1\nallowlist: [\"lab\"]\n")
		out, code := execute(t, "validate-campaign", bad, "--policy", p, "--json")
		assert.Equal(t, exitFailed, code)
		assert.NotContains(t, out, "empty_allowlist")
	})
}

const summaryTemplate = `{
  "ok": true,
  "campaign_name": "test",
  "run_id": %q,
  "started_at": "1970-01-01T00:00:00+00:00",
  "finished_at": "1970-01-01T00:00:00+00:00",
  "score": %s,
  "summary": {"total": 1, "passed": 1, "failed": 0, "errored": 0, "skipped": 0},
  "results": [
    {"module_id": "noop-1", "status": "pass", "notes": null, "duration_ms": 0, "evidence_ref": "$.results[0].evidence"}
  ]
}`

func writeSummary(t *testing.T, dir, name, runID, score string) string {
	return writeFixture(t, dir, name, fmt.Sprintf(summaryTemplate, runID, score))
}

func TestValidateSummary(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
		code int
		want map[string]any
	}{
		{"ok", writeSummary(t, dir, "ok.json", "run-1", "1.0"), exitOK, map[string]any{"errors": []any{}, "ok": true}},
		{"invalid json", writeFixture(t, dir, "bad.json", "{not json"), exitMalformed, map[string]any{"ok": false, "reason": "invalid_json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, code := execute(t, "validate-summary", tt.path, "--json")
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.want, decodeOut(t, out))
		})
	}

	t.Run("missing fields", func(t *testing.T) {
		out, code := execute(t, "validate-summary", writeFixture(t, dir, "min.json", `{"ok": true}`), "--json")
		assert.Equal(t, exitFailed, code)
		payload := decodeOut(t, out)
		assert.Equal(t, false, payload["ok"])
		assert.Contains(t, payload["errors"], "missing field: campaign_name")
	})
}

func TestDiffSummary(t *testing.T) {
	dir := t.TempDir()
	golden := writeSummary(t, dir, "golden.json", "run-1", "1.0")
	same := writeSummary(t, dir, "same.json", "run-1", "1.0")
	otherRun := writeSummary(t, dir, "other-run.json", "run-2", "1.0")
	drifted := writeSummary(t, dir, "drifted.json", "run-2", "0.5")

	tests := []struct {
		name  string
		args  []string
		code  int
		clean bool
	}{
		{"match", []string{golden, same}, exitOK, true},
		{"drift", []string{golden, drifted}, exitFailed, false},
		{"ignore field", []string{golden, otherRun, "--ignore-field", "run_id"}, exitOK, true},
		{"ignore path", []string{golden, otherRun, "--ignore-path", "$.run_id"}, exitOK, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"diff-summary"}, tt.args...)
			out, code := execute(t, append(args, "--json")...)
			assert.Equal(t, tt.code, code)
			payload := decodeOut(t, out)
			assert.Equal(t, tt.clean, payload["ok"])
			if tt.clean {
				assert.Equal(t, []any{}, payload["diffs"])
			} else {
				assert.NotEmpty(t, payload["diffs"])
			}
		})
	}
}

func TestPolicyHash(t *testing.T) {
	dir := t.TempDir()
	a := writeFixture(t, dir, "a.yaml", "version: v1\nallowlist: [\"local\"]\n")
	b := writeFixture(t, dir, "b.yaml", "version: v1\nallowlist: [\"prod\"]\n")

	outA, code := execute(t, "policy-hash", a, "--json")
	require.Equal(t, exitOK, code)
	outA2, _ := execute(t, "policy-hash", a, "--json")
	outB, _ := execute(t, "policy-hash", b, "--json")

	hashA := decodeOut(t, outA)["policy_hash"]
	assert.Equal(t, hashA, decodeOut(t, outA2)["policy_hash"])
	assert.NotEqual(t, hashA, decodeOut(t, outB)["policy_hash"])

	out, code := execute(t, "policy-hash", writeFixture(t, dir, "bad.yaml", "[1, 2]"), "--json")
	assert.Equal(t, exitMalformed, code)
	assert.Equal(t, map[string]any{"ok": false, "reason": "invalid_policy"}, decodeOut(t, out))
}

func TestValidateModule(t *testing.T) {
	dir := t.TempDir()
	spec := writeFixture(t, dir, "spec.yaml", "id: noop-1\nmodule: noop\ntarget_id: local-host\n")
	result := writeFixture(t, dir, "result.json",
		`{"module_id":"noop-1","status":"pass","started_at":"1970-01-01T00:00:00Z","finished_at":"1970-01-01T00:00:00Z","evidence":{}}`)

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"spec only", []string{"--spec", spec}, exitOK},
		{"spec and result", []string{"--spec", spec, "--result", result}, exitOK},
		{"missing spec file", []string{"--spec", filepath.Join(dir, "nope.yaml")}, exitMalformed},
		{"bad status", []string{"--spec", spec, "--result", writeFixture(t, dir, "bad.json",
			`{"module_id":"x","status":"maybe","started_at":"1970-01-01T00:00:00Z","finished_at":"1970-01-01T00:00:00Z"}`)}, exitMalformed},
		{"unsupported file type", []string{"--spec", writeFixture(t, dir, "spec.txt", "id: x")}, exitMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, code := execute(t, append([]string{"validate-module"}, tt.args...)...)
			assert.Equal(t, tt.code, code)
			if tt.code == exitOK {
				assert.Contains(t, out, "module spec ok")
			}
		})
	}
}

func TestModulesAndSchemas(t *testing.T) {
	out, code := execute(t, "modules")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "echo_expectation\nnoop\n", out)

	dir := t.TempDir()
	out, code = execute(t, "export-schemas", "--out", dir)
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "wrote schemas to")
	for _, name := range []string{"campaign.schema.json", "evidence.schema.json", "policy.schema.json", "summary.schema.json"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
}

func TestAgentServe_RequiresTLS(t *testing.T) {
	_, code := execute(t, "agent", "serve", "--addr", "127.0.0.1:0")
	assert.Equal(t, exitMalformed, code)
}

func TestAgentServe_GRPCListenFailureLeavesNothingServing(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	httpAddr := testutil.ClosedAddr(t)

	_, code := execute(t, "agent", "serve", "--allow-insecure",
		"--addr", httpAddr, "--grpc-addr", busy.Addr().String())
	assert.Equal(t, exitFailed, code)

	ln, err := net.Listen("tcp", httpAddr)
	require.NoError(t, err, "HTTP listener left running")
	ln.Close()
}
