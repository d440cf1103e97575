// Package crypto is the public cryptographic surface of crewseal: versioned
// asymmetric keypair generation for crew members. Symmetric content
// encryption and key wrapping live in the internal packages and are driven
// by the messaging service.
package crypto

import (
	"fmt"

	icrypto "github.com/crewchat/crewseal/internal/crypto"
)

// Algorithm identifiers carried in envelopes. Opaque strings, versioning
// the schemes in use so they can evolve without breaking old envelopes.
const (
	// AlgorithmAES256GCM is the symmetric AEAD used for message content.
	AlgorithmAES256GCM = "aes256gcm"
	// AlgorithmX25519Wrap is the default asymmetric key-wrap scheme.
	AlgorithmX25519Wrap = icrypto.AlgorithmX25519
	// AlgorithmMLKEM768Wrap is the post-quantum key-wrap scheme.
	AlgorithmMLKEM768Wrap = icrypto.AlgorithmMLKEM768
)

// EncryptionKeyPair is an ephemeral pairing of a member's public and private
// key material. The private half is returned to the caller exactly once at
// generation time; the core never persists it.
type EncryptionKeyPair struct {
	Algorithm string
	Public    []byte
	Private   []byte
	Version   uint64
}

// GenerateKeyPair produces a fresh keypair for the given key-wrap algorithm,
// tagged with the given version. Fails only on an unknown algorithm or
// entropy-source failure.
func GenerateKeyPair(algorithm string, version uint64) (*EncryptionKeyPair, error) {
	w, err := icrypto.ForAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}
	pub, priv, err := w.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating %s keypair: %w", algorithm, err)
	}
	return &EncryptionKeyPair{
		Algorithm: algorithm,
		Public:    pub,
		Private:   priv,
		Version:   version,
	}, nil
}
