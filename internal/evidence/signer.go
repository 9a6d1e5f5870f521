// Package evidence signs and verifies evidence packs with a shared key.
package evidence

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"bytemomo/bastion/internal/canonical"
	"bytemomo/bastion/internal/domain"
)

// Algorithm is the only signature algorithm produced and accepted.
const Algorithm = "hmac-sha256"

// ErrEmptyKey is returned when signing with an empty key.
var ErrEmptyKey = errors.New("signing key must not be empty")

// payload is the canonical JSON of pack without its signature fields.
func payload(pack domain.EvidencePack) ([]byte, error) {
	m, err := canonical.Map(pack)
	if err != nil {
		return nil, err
	}
	delete(m, "signature")
	delete(m, "signature_alg")
	return canonical.Marshal(m)
}

func digest(pack domain.EvidencePack, key []byte) (string, error) {
	body, err := payload(pack)
	if err != nil {
		return "", fmt.Errorf("canonicalize evidence: %w", err)
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Sign returns a signed copy of pack. Re-signing with the same key yields the
// same signature; pack itself is never modified.
func Sign(pack domain.EvidencePack, key []byte) (domain.EvidencePack, error) {
	if len(key) == 0 {
		return domain.EvidencePack{}, ErrEmptyKey
	}
	sig, err := digest(pack, key)
	if err != nil {
		return domain.EvidencePack{}, err
	}
	return pack.WithSignature(Algorithm, sig), nil
}

// Verify reports whether pack carries a valid signature for key.
func Verify(pack domain.EvidencePack, key []byte) bool {
	if pack.SignatureAlg != Algorithm || pack.Signature == "" || len(key) == 0 {
		return false
	}
	want, err := digest(pack, key)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(pack.Signature))
}
