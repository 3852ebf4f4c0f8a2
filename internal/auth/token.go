// Package auth generates participant credential tokens and verifies them by
// salted hash lookup (spec.md §6): "the server hashes (salted) and looks up
// the participant."
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// tokenBytes is the entropy of a generated token before base64 encoding.
const tokenBytes = 32

// GenerateToken returns a URL-safe random credential token. The plaintext is
// returned to the caller exactly once, at registration time; only its hash
// is persisted.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hasher computes a salted, keyed hash of a plaintext token for storage and
// lookup, replacing the reference implementation's bare salted SHA-256 with
// a keyed BLAKE2b-256 MAC.
type Hasher struct {
	salt []byte
}

// NewHasher builds a Hasher keyed by salt, the per-install credential salt
// from configuration.
func NewHasher(salt string) *Hasher {
	return &Hasher{salt: []byte(salt)}
}

// Hash returns the keyed hash of token, suitable for storage in
// participants.token_hash and for equality lookup.
func (h *Hasher) Hash(token string) ([]byte, error) {
	mac, err := blake2b.New256(h.salt)
	if err != nil {
		return nil, fmt.Errorf("init blake2b: %w", err)
	}
	if _, err := mac.Write([]byte(token)); err != nil {
		return nil, fmt.Errorf("hash token: %w", err)
	}
	return mac.Sum(nil), nil
}
