// Package yamlconfig loads campaign, policy and module documents. YAML and
// JSON are both accepted since every JSON document is valid YAML.
package yamlconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"bytemomo/bastion/internal/domain"
)

// Load failure reasons.
const (
	ReasonNotFound      = "file not found"
	ReasonUnreadable    = "file unreadable"
	ReasonInvalidSyntax = "invalid YAML"
	ReasonInvalidJSON   = "invalid JSON"
	ReasonNotObject     = "document must be a YAML object"
	ReasonInvalidSpec   = "invalid document structure"
	ReasonUnsupported   = "unsupported version"
	ReasonFileType      = "unsupported file type"
)

func loadErr(kind, path, reason string, err error) error {
	return &domain.LoadError{Path: path, Reason: kind + " " + reason, Err: err}
}

// readObject reads path and checks it holds a single YAML mapping.
func readObject(kind, path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, loadErr(kind, path, ReasonNotFound, nil)
		}
		return nil, loadErr(kind, path, ReasonUnreadable, err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return nil, loadErr(kind, path, ReasonInvalidSyntax, err)
	}
	if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return nil, loadErr(kind, path, ReasonNotObject, nil)
	}
	return b, nil
}

func decodeStrict(b []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadCampaign reads and validates a campaign file.
func LoadCampaign(path string) (domain.CampaignSpec, error) {
	b, err := readObject("campaign", path)
	if err != nil {
		return domain.CampaignSpec{}, err
	}

	var c domain.CampaignSpec
	if err := decodeStrict(b, &c); err != nil {
		return domain.CampaignSpec{}, loadErr("campaign", path, ReasonInvalidSpec, err)
	}
	if c.Version == "" {
		c.Version = domain.SchemaV1
	}
	if err := c.Validate(); err != nil {
		reason := ReasonInvalidSpec
		if errors.Is(err, domain.ErrUnsupportedVersion) {
			reason = ReasonUnsupported
		}
		return domain.CampaignSpec{}, loadErr("campaign", path, reason, err)
	}
	return c, nil
}

// LoadPolicy reads and validates a policy file.
func LoadPolicy(path string) (domain.PolicySpec, error) {
	b, err := readObject("policy", path)
	if err != nil {
		return domain.PolicySpec{}, err
	}

	var p domain.PolicySpec
	if err := decodeStrict(b, &p); err != nil {
		return domain.PolicySpec{}, loadErr("policy", path, ReasonInvalidSpec, err)
	}
	if p.Version == "" {
		p.Version = domain.SchemaV1
	}
	if err := p.Validate(); err != nil {
		return domain.PolicySpec{}, loadErr("policy", path, ReasonUnsupported, err)
	}
	return p, nil
}

// LoadPayload decodes a .json, .yaml or .yml file into generic values.
// JSON numbers are kept as json.Number so integers stay distinguishable.
func LoadPayload(path string) (any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, loadErr("payload", path, ReasonNotFound, nil)
		}
		return nil, loadErr("payload", path, ReasonUnreadable, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		var out any
		if err := dec.Decode(&out); err != nil {
			return nil, &domain.LoadError{Path: path, Reason: ReasonInvalidJSON, Err: err}
		}
		if dec.More() {
			return nil, &domain.LoadError{Path: path, Reason: ReasonInvalidJSON, Err: fmt.Errorf("trailing data")}
		}
		return out, nil
	case ".yaml", ".yml":
		var out any
		if err := yaml.Unmarshal(b, &out); err != nil {
			return nil, loadErr("payload", path, ReasonInvalidSyntax, err)
		}
		return out, nil
	default:
		return nil, loadErr("payload", path, ReasonFileType, nil)
	}
}

// decodeTyped converts a generic object into out, rejecting unknown fields
// and any missing required field.
func decodeTyped(kind, path string, payload any, required []string, out any) error {
	obj, ok := payload.(map[string]any)
	if !ok {
		return loadErr(kind, path, ReasonNotObject, nil)
	}
	for _, f := range required {
		if _, ok := obj[f]; !ok {
			return loadErr(kind, path, ReasonInvalidSpec, fmt.Errorf("missing field: %s", f))
		}
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return loadErr(kind, path, ReasonInvalidSpec, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return loadErr(kind, path, ReasonInvalidSpec, err)
	}
	return nil
}

// LoadModuleSpec reads a single module instance declaration.
func LoadModuleSpec(path string) (domain.ModuleSpec, error) {
	payload, err := LoadPayload(path)
	if err != nil {
		return domain.ModuleSpec{}, err
	}
	var spec domain.ModuleSpec
	if err := decodeTyped("module spec", path, payload, []string{"id", "module", "target_id"}, &spec); err != nil {
		return domain.ModuleSpec{}, err
	}
	return spec, nil
}

// LoadModuleResult reads a single module result.
func LoadModuleResult(path string) (domain.ModuleResult, error) {
	payload, err := LoadPayload(path)
	if err != nil {
		return domain.ModuleResult{}, err
	}
	var res domain.ModuleResult
	required := []string{"module_id", "status", "started_at", "finished_at"}
	if err := decodeTyped("module result", path, payload, required, &res); err != nil {
		return domain.ModuleResult{}, err
	}
	return res, nil
}
