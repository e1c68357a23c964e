package util

import (
	"crypto/rand"
	"encoding/hex"
)

// KeyLength is the number of hex characters in a generated content key.
const KeyLength = 12

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewKey returns a random key for a block, span, inline object or annotation.
func NewKey() string {
	bytes := make([]byte, KeyLength/2)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
