package util

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF derives an AEADKeySize-byte key from seed using HKDF-SHA256.
func HKDF(seed, salt, info []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, seed, salt, info)
	k := make([]byte, AEADKeySize)
	if _, err := io.ReadFull(h, k); err != nil {
		return nil, fmt.Errorf("reading from HKDF: %w", err)
	}
	return k, nil
}
