package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	AEADKeySize   = 32
	AEADNonceSize = 12
	AEADTagSize   = 16
)

// NewContentKey returns a fresh AES-256-GCM key and nonce. The two are
// always generated together so a nonce can never be paired with more than
// one key.
func NewContentKey() (key, nonce []byte, err error) {
	key = make([]byte, AEADKeySize)
	if _, err = io.ReadFull(rand.Reader, key); err != nil {
		return nil, nil, fmt.Errorf("generating content key: %w", err)
	}
	nonce = make([]byte, AEADNonceSize)
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		WipeBytes(key)
		return nil, nil, fmt.Errorf("generating nonce: %w", err)
	}
	return key, nonce, nil
}

// SealAEAD encrypts plaintext with AES-256-GCM under the given key and
// nonce, binding aad into the authentication tag. The returned ciphertext
// includes the tag but not the nonce.
func SealAEAD(key, nonce, plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key, nonce)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, aad), nil
}

// OpenAEAD decrypts an AES-256-GCM ciphertext produced by SealAEAD. Any
// modification of the ciphertext, nonce, or aad fails authentication.
func OpenAEAD(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key, nonce)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < AEADTagSize {
		return nil, fmt.Errorf("ciphertext shorter than tag size")
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("opening ciphertext: %w", err)
	}
	return plaintext, nil
}

func newGCM(key, nonce []byte) (cipher.AEAD, error) {
	if len(key) != AEADKeySize {
		return nil, fmt.Errorf("invalid AEAD key size: got %d, want %d", len(key), AEADKeySize)
	}
	if len(nonce) != AEADNonceSize {
		return nil, fmt.Errorf("invalid nonce size: got %d, want %d", len(nonce), AEADNonceSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
