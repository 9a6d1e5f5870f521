package domain

// EvidenceRepo archives finished evidence packs.
type EvidenceRepo interface {
	// Save stores a pack under its run id.
	Save(pack EvidencePack) error
}
