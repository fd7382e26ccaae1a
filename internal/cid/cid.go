// Package cid computes content-derived message identifiers.
//
// The identifier is the hex-encoded SHA-256 of the canonical JSON encoding of
// {descriptor, authorization}. Canonicalization re-marshals the raw JSON
// through map values, which sorts object keys, so the digest is independent of
// the field order a client happened to serialize.
package cid

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonical returns the canonical (sorted-key) encoding of raw JSON.
func Canonical(raw json.RawMessage) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("cid: decode: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cid: encode: %w", err)
	}
	return out, nil
}

// Compute returns the content identifier of a descriptor+authorization pair.
// Re-hashing the same pair is idempotent.
func Compute(descriptor, authorization json.RawMessage) (string, error) {
	canon, err := Canonical(json.RawMessage(
		`{"authorization":` + string(authorization) + `,"descriptor":` + string(descriptor) + `}`))
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(canon)
	return hex.EncodeToString(h[:]), nil
}
