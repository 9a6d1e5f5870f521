// Package jsonreport reads and writes evidence packs as indented JSON files.
package jsonreport

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"bytemomo/bastion/internal/canonical"
	"bytemomo/bastion/internal/domain"
)

// ReasonInvalidJSON is the LoadError reason for unparseable evidence.
const ReasonInvalidJSON = "invalid JSON"

// Writer archives every pack under OutDir/runs/<run_id>.json.
type Writer struct {
	OutDir string // e.g., ./output
}

func New(out string) *Writer { return &Writer{OutDir: out} }

// Save implements domain.EvidenceRepo.
func (w *Writer) Save(pack domain.EvidencePack) error {
	name := filepath.Base(pack.RunID) + ".json"
	return WriteJSON(filepath.Join(w.OutDir, "runs", name), pack)
}

// WriteJSON writes v to path with two-space indentation, creating parent
// directories as needed.
func WriteJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// ReadEvidence loads an evidence pack. Unparseable files yield a
// *domain.LoadError with reason "invalid JSON".
func ReadEvidence(path string) (domain.EvidencePack, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		reason := "evidence file unreadable"
		if errors.Is(err, os.ErrNotExist) {
			reason = "evidence file not found"
		}
		return domain.EvidencePack{}, &domain.LoadError{Path: path, Reason: reason, Err: err}
	}

	var pack domain.EvidencePack
	if err := canonical.Unmarshal(b, &pack); err != nil {
		return domain.EvidencePack{}, &domain.LoadError{Path: path, Reason: ReasonInvalidJSON, Err: err}
	}
	if pack.SchemaVersion == "" {
		pack.SchemaVersion = domain.SchemaV1
	}
	if pack.Results == nil {
		pack.Results = []domain.ModuleResult{}
	}
	return pack, nil
}
