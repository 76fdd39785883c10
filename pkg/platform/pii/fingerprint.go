// Package pii derives stable, non-reversible tokens for personal data so that
// logs and events can correlate contacts without carrying raw emails or phone
// numbers.
package pii

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// tokenBytes is the truncated digest length; 8 bytes is 16 hex chars.
const tokenBytes = 8

// Fingerprinter produces keyed BLAKE2b tokens.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter returns a Fingerprinter keyed with key. Keys longer than
// 64 bytes are hashed down first, as BLAKE2b accepts at most 64 key bytes.
func NewFingerprinter(key string) *Fingerprinter {
	k := []byte(key)
	if len(k) > blake2b.Size {
		sum := blake2b.Sum512(k)
		k = sum[:]
	}
	return &Fingerprinter{key: k}
}

// Token returns the fingerprint of value, or "" for nil/empty input.
func (f *Fingerprinter) Token(value *string) string {
	if f == nil || value == nil || *value == "" {
		return ""
	}
	h, err := blake2b.New256(f.key)
	if err != nil {
		return ""
	}
	h.Write([]byte(*value))
	return hex.EncodeToString(h.Sum(nil)[:tokenBytes])
}
