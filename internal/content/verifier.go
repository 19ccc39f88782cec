// Package content computes content digests and verifies bytes on disk.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	ferrors "filesafe/internal/errors"
)

// DigestSize is the length of a hex encoded digest.
const DigestSize = sha256.Size * 2

// Digest returns the lowercase hex SHA-256 of content.
func Digest(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func IsValidDigest(digest string) bool {
	if len(digest) != DigestSize {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}

// Verifier re-reads files after a write and compares digests.
type Verifier struct {
	readFile func(string) ([]byte, error)
}

func NewVerifier() *Verifier {
	return &Verifier{readFile: os.ReadFile}
}

// VerifyWrite fails with an integrity error unless path holds exactly expected.
func (v *Verifier) VerifyWrite(path string, expected []byte) error {
	return v.VerifyDigest(path, Digest(expected))
}

// VerifyDigest fails with an integrity error unless path hashes to digest.
func (v *Verifier) VerifyDigest(path, digest string) error {
	actual, err := v.readFile(path)
	if err != nil {
		return ferrors.IO("verify", path, err)
	}
	if got := Digest(actual); got != digest {
		return ferrors.Integrity(path, digest, got)
	}
	return nil
}
