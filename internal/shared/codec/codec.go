// Package codec holds the JSON configurations shared across packages:
// a standard encoder for status payloads and a strict decoder that turns
// generic config trees into typed structs and rejects unknown fields.
package codec

import (
	"fmt"

	"github.com/bytedance/sonic"
)

var (
	std    = sonic.ConfigStd
	strict = sonic.Config{
		DisallowUnknownFields: true,
		SortMapKeys:           true,
	}.Froze()
)

// Marshal encodes v with sorted map keys.
func Marshal(v any) ([]byte, error) {
	return std.Marshal(v)
}

// MarshalIndent encodes v for humans.
func MarshalIndent(v any) ([]byte, error) {
	return std.MarshalIndent(v, "", "  ")
}

// Unmarshal decodes data leniently.
func Unmarshal(data []byte, v any) error {
	return std.Unmarshal(data, v)
}

// UnmarshalStrict decodes data, failing on fields dst does not declare.
func UnmarshalStrict(data []byte, dst any) error {
	return strict.Unmarshal(data, dst)
}

// DecodeStrict re-encodes a generic tree (as produced by the YAML, TOML or
// JSON config parsers) and decodes it strictly into dst.
func DecodeStrict(src any, dst any) error {
	data, err := std.Marshal(src)
	if err != nil {
		return fmt.Errorf("encode config tree: %w", err)
	}
	return strict.Unmarshal(data, dst)
}

// Roundtrip converts a typed value to a generic map, which is the shape
// status payloads travel in.
func Roundtrip(v any) (map[string]any, error) {
	data, err := std.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := std.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
