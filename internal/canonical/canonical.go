// Package canonical produces the stable JSON encoding used for hashing and
// signing: object keys sorted, compact separators, UTF-8 without HTML escaping.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Marshal returns the canonical JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	return encode(generic)
}

// Map returns the JSON object view of v, for callers that need to drop keys
// before hashing.
func Map(v any) (map[string]any, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	m, ok := generic.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("canonical: value is %T, not a JSON object", generic)
	}
	return m, nil
}

// Unmarshal decodes data into v keeping numbers as json.Number, so integers
// beyond float64 precision survive a read and re-sign.
func Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// toGeneric round-trips v through JSON so struct field order no longer
// matters; encoding/json sorts map keys on the way back out.
func toGeneric(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	var out any
	if err := Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}
	return out, nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical: encode: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
