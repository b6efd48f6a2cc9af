// Package checksum computes the content fingerprints that give documents
// their identity. Identical bytes always produce the same fingerprint, so
// re-submitting a file resolves to the already-registered document.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// Compute hashes the full contents of r with SHA-256.
func Compute(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeBytes hashes an in-memory payload.
func ComputeBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ComputeFile hashes a file on disk without loading it fully into memory.
func ComputeFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return Compute(f)
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldChecksum, newChecksum string) bool {
	return oldChecksum != newChecksum
}
