// Package integrity provides the digest algorithms used to seal audit entries.
package integrity

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names accepted by New
const (
	AlgorithmSHA256 = "sha256"
	AlgorithmBlake3 = "blake3"
	AlgorithmLegacy = "legacy"
)

// GenesisHash is the previous chain hash of the first entry in a chain
const GenesisHash = "GENESIS"

// Digester computes a printable digest of a byte payload
type Digester interface {
	Name() string
	Digest(data []byte) string
	// Cryptographic reports whether the digest resists deliberate forgery
	Cryptographic() bool
}

// New returns the digester registered under name. An empty name selects sha256.
func New(name string) (Digester, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", AlgorithmSHA256:
		return SHA256Digester{}, nil
	case AlgorithmBlake3:
		return Blake3Digester{}, nil
	case AlgorithmLegacy:
		return LegacyDigester{}, nil
	default:
		return nil, fmt.Errorf("unknown digest algorithm %q", name)
	}
}

// ChainInput builds the payload a chain hash is computed over
func ChainInput(previousHash, integrityHash, entryID string) []byte {
	return []byte(previousHash + ":" + integrityHash + ":" + entryID)
}

// SHA256Digester returns "sha256:<hex>"
type SHA256Digester struct{}

func (SHA256Digester) Name() string        { return AlgorithmSHA256 }
func (SHA256Digester) Cryptographic() bool { return true }

func (SHA256Digester) Digest(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// Blake3Digester returns "blake3:<hex>"
type Blake3Digester struct{}

func (Blake3Digester) Name() string        { return AlgorithmBlake3 }
func (Blake3Digester) Cryptographic() bool { return true }

func (Blake3Digester) Digest(data []byte) string {
	h := blake3.Sum256(data)
	return "blake3:" + hex.EncodeToString(h[:])
}

// LegacyDigester is base64 of the payload truncated to 16 characters.
// It only detects accidental edits near the start of the payload and must not be
// relied on against deliberate tampering.
type LegacyDigester struct{}

func (LegacyDigester) Name() string        { return AlgorithmLegacy }
func (LegacyDigester) Cryptographic() bool { return false }

func (LegacyDigester) Digest(data []byte) string {
	s := base64.StdEncoding.EncodeToString(data)
	if len(s) > 16 {
		s = s[:16]
	}
	return s
}
