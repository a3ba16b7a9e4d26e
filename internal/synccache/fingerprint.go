// Package synccache tracks which definition files were last applied
// successfully, by content fingerprint, and persists that mapping between runs.
package synccache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Fingerprint is the lowercase hex SHA-256 digest of a file's raw bytes.
// It is used for change detection only, never for identity.
type Fingerprint string

// Compute returns the fingerprint of raw.
func Compute(raw []byte) Fingerprint {
	sum := sha256.Sum256(raw)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// FileFingerprint streams the file at path through the digest.
func FileFingerprint(path string) (Fingerprint, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from the configured definitions root
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}

// Short returns the first 12 characters, for log lines.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}
