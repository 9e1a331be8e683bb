package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// Hasher produces stable hex digests for identity and grouping keys.
type Hasher struct{}

// DefaultHasher returns the SHA-256 hasher.
func DefaultHasher() *Hasher {
	return &Hasher{}
}

// Hash digests raw bytes.
func (h *Hasher) Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashString digests a string.
func (h *Hasher) HashString(s string) string {
	return h.Hash([]byte(s))
}

// HashJSON digests the canonical (sorted-key) JSON encoding of v.
func (h *Hasher) HashJSON(v any) (string, error) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return h.Hash(data), nil
}

// HashFields digests fields independent of their order.
func (h *Hasher) HashFields(fields ...string) string {
	sorted := make([]string, len(fields))
	copy(sorted, fields)
	sort.Strings(sorted)

	return h.HashString(strings.Join(sorted, "|"))
}

// Short truncates a digest for display.
func Short(hash string) string {
	if len(hash) < 8 {
		return hash
	}
	return hash[:8]
}
