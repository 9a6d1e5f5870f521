package summary

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff_Identical(t *testing.T) {
	g := validSummary(t)
	diffs, err := Diff(g, validSummary(t), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(m map[string]any)
		ignoreFields []string
		ignorePaths  []string
		want         []string
	}{
		{
			name:   "scalar drift",
			mutate: func(m map[string]any) { m["run_id"] = "run-2"; m["score"] = json.Number("1") },
			want: []string{
				`$.run_id differs (golden "run-1" vs candidate "run-2")`,
				`$.score differs (golden 0.5 vs candidate 1)`,
			},
		},
		{
			name:         "ignored field",
			mutate:       func(m map[string]any) { m["run_id"] = "run-2" },
			ignoreFields: []string{"run_id"},
		},
		{
			name:   "missing and extra keys",
			mutate: func(m map[string]any) { delete(m, "ok"); m["extra"] = true },
			want:   []string{"$.ok missing in candidate", "$.extra extra in candidate"},
		},
		{
			name: "array length",
			mutate: func(m map[string]any) {
				m["results"] = m["results"].([]any)[:1]
			},
			want: []string{"$.results length differs (golden 2 vs candidate 1)"},
		},
		{
			name: "wildcard index path",
			mutate: func(m map[string]any) {
				for _, r := range m["results"].([]any) {
					r.(map[string]any)["duration_ms"] = json.Number("99")
				}
			},
			ignorePaths: []string{"results[*].duration_ms"},
		},
		{
			name: "index path only matches full path",
			mutate: func(m map[string]any) {
				m["results"].([]any)[0].(map[string]any)["status"] = "error"
				m["results"].([]any)[1].(map[string]any)["status"] = "error"
			},
			ignorePaths: []string{"$.results[0].status"},
			want:        []string{`$.results[1].status differs (golden "fail" vs candidate "error")`},
		},
		{
			name:        "star glob",
			mutate:      func(m map[string]any) { m["started_at"] = "x"; m["finished_at"] = "y" },
			ignorePaths: []string{"*_at"},
		},
		{
			name:        "question mark matches one character",
			mutate:      func(m map[string]any) { m["run_id"] = "run-9" },
			ignorePaths: []string{".run_i?"},
		},
		{
			name:        "question mark does not match two characters",
			mutate:      func(m map[string]any) { m["run_id"] = "run-9" },
			ignorePaths: []string{".run_?"},
			want:        []string{`$.run_id differs (golden "run-1" vs candidate "run-9")`},
		},
		{
			name:   "type change",
			mutate: func(m map[string]any) { m["summary"] = "none" },
			want: []string{
				`$.summary differs (golden {"errored":0,"failed":1,"passed":1,"skipped":0,"total":2} vs candidate "none")`,
			},
		},
		{
			name:   "null notes",
			mutate: func(m map[string]any) { m["results"].([]any)[0].(map[string]any)["notes"] = nil },
			want:   []string{`$.results[0].notes differs (golden "fine" vs candidate null)`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validSummary(t)
			tt.mutate(c)
			diffs, err := Diff(validSummary(t), c, tt.ignoreFields, tt.ignorePaths)
			require.NoError(t, err)
			assert.Equal(t, tt.want, diffs)
		})
	}
}

func TestDiff_NumbersCompareByValue(t *testing.T) {
	diffs, err := Diff(map[string]any{"score": json.Number("1")}, map[string]any{"score": 1.0}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestDiff_NotObjects(t *testing.T) {
	diffs, err := Diff([]any{}, map[string]any{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"golden summary must be a JSON object"}, diffs)

	diffs, err = Diff(map[string]any{}, "x", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"candidate summary must be a JSON object"}, diffs)
}

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		match   bool
	}{
		{"run_id", "$.run_id", true},
		{".run_id", "$.run_id", true},
		{"$.run_id", "$.run_id", true},
		{"run_id", "$.results[0].run_id", false},
		{"*.run_id", "$.results[0].run_id", true},
		{"results[*].notes", "$.results[12].notes", true},
		{"results[*].notes", "$.results[x].notes", false},
		{"results[0].notes", "$.results[0].notes", true},
		{"results[0].notes", "$.results[1].notes", false},
		{"summary.*", "$.summary.total", true},
		{"a+b", "$.a+b", true},
		{"a+b", "$.aab", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			re, err := CompilePattern(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.match, re.MatchString(tt.path))
		})
	}
}
