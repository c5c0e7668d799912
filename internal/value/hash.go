package value

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix leaves room for
// algorithm changes.
const (
	DomainState   = "intent/state/v1"
	DomainPayload = "intent/payload/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StateHash returns the content hash of a state tree.
// Equal trees hash equally regardless of map iteration order.
func StateHash(state Object) (string, error) {
	if state == nil {
		state = Object{}
	}
	canonical, err := MarshalCanonical(state)
	if err != nil {
		return "", fmt.Errorf("StateHash: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// PayloadHash returns the content hash of an intent payload.
func PayloadHash(payload any) (string, error) {
	canonical, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("PayloadHash: %w", err)
	}
	return hashWithDomain(DomainPayload, canonical), nil
}

// MustStateHash is like StateHash but panics on error.
// Use only in tests.
func MustStateHash(state Object) string {
	h, err := StateHash(state)
	if err != nil {
		panic(err)
	}
	return h
}
