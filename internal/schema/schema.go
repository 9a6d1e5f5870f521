// Package schema exports JSON Schemas for the documents bastion reads and writes.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/danielgtaylor/huma/v2"

	"bytemomo/bastion/internal/domain"
	"bytemomo/bastion/internal/summary"
)

// Draft is the JSON Schema dialect of exported documents.
const Draft = "https://json-schema.org/draft/2020-12/schema"

const defsPrefix = "#/$defs/"

// Document describes one exported schema file.
type Document struct {
	File  string
	Title string
	Type  reflect.Type
}

// Documents lists every exported schema.
var Documents = []Document{
	{File: "campaign.schema.json", Title: "CampaignSpec", Type: reflect.TypeOf(domain.CampaignSpec{})},
	{File: "evidence.schema.json", Title: "EvidencePack", Type: reflect.TypeOf(domain.EvidencePack{})},
	{File: "policy.schema.json", Title: "PolicySpec", Type: reflect.TypeOf(domain.PolicySpec{})},
	{File: "summary.schema.json", Title: "EvidenceSummary", Type: reflect.TypeOf(summary.Summary{})},
}

// Type names that would otherwise collide across packages.
var names = map[reflect.Type]string{
	reflect.TypeOf(domain.Summary{}):  "SummaryCounts",
	reflect.TypeOf(summary.Summary{}): "EvidenceSummary",
	reflect.TypeOf(summary.Result{}):  "SummaryResult",
}

func namer(t reflect.Type, hint string) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if n, ok := names[t]; ok {
		return n
	}
	return huma.DefaultSchemaNamer(t, hint)
}

// Build returns the standalone JSON Schema of d as a generic object.
func Build(d Document) (map[string]any, error) {
	registry := huma.NewMapRegistry(defsPrefix, namer)
	root := registry.Schema(d.Type, false, d.Title)

	out, err := toMap(root)
	if err != nil {
		return nil, err
	}

	defs := map[string]any{}
	top := namer(d.Type, d.Title)
	for name, s := range registry.Map() {
		if name == top {
			continue
		}
		m, err := toMap(s)
		if err != nil {
			return nil, err
		}
		defs[name] = m
	}

	out["$schema"] = Draft
	out["title"] = d.Title
	if len(defs) > 0 {
		out["$defs"] = defs
	}
	return out, nil
}

func toMap(s *huma.Schema) (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return out, nil
}

// Export writes every schema into dir with sorted keys and two-space indent.
func Export(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	written := make([]string, 0, len(Documents))
	for _, d := range Documents {
		doc, err := Build(d)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.File, err)
		}
		raw, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.File, err)
		}
		path := filepath.Join(dir, d.File)
		if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
			return nil, err
		}
		written = append(written, path)
	}
	return written, nil
}
