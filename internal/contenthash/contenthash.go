// Package contenthash computes the lowercase hex digests that key stage metadata.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a supported digest.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// HexLength is the length of every digest this package emits.
const HexLength = 64

// ParseAlgorithm resolves a configured algorithm name.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(name))) {
	case SHA256, "":
		return SHA256, nil
	case BLAKE3:
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", name)
	}
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case BLAKE3:
		return blake3.New()
	default:
		return sha256.New()
	}
}

// Hasher digests artifacts with a fixed algorithm.
type Hasher struct {
	alg Algorithm
}

// New returns a Hasher for alg.
func New(alg Algorithm) Hasher {
	if alg == "" {
		alg = SHA256
	}
	return Hasher{alg: alg}
}

// Algorithm reports the digest in use.
func (h Hasher) Algorithm() Algorithm {
	return h.alg
}

// Reader digests everything readable from r.
func (h Hasher) Reader(r io.Reader) (string, error) {
	d := h.alg.newHash()
	if _, err := io.Copy(d, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

// File digests the file at path.
func (h Hasher) File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	sum, err := h.Reader(f)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return sum, nil
}

// Valid reports whether key looks like a digest emitted by this package.
func Valid(key string) bool {
	if len(key) != HexLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
