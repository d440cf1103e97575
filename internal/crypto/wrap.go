// Package icrypto implements the key-wrap schemes and associated-data
// builders used by the messaging envelope.
package icrypto

import "fmt"

// Key-wrap algorithm identifiers carried in envelopes. They are opaque
// strings so schemes can be added without breaking old envelopes.
const (
	AlgorithmX25519   = "x25519-hkdf-aes256gcm"
	AlgorithmMLKEM768 = "mlkem768-hkdf-aes256gcm"
)

// SealedWrap holds a content key sealed to one recipient. Enc carries the
// scheme-specific encapsulation material: the ephemeral X25519 public key
// or the ML-KEM ciphertext.
type SealedWrap struct {
	Ver        int    `json:"ver"`
	Enc        []byte `json:"enc"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Wrapper seals a symmetric content key to a recipient's public key and
// opens it with the matching private key.
type Wrapper interface {
	Algorithm() string
	GenerateKeyPair() (pub, priv []byte, err error)
	Seal(recipientPub, key, aad []byte) (*SealedWrap, error)
	Open(recipientPriv []byte, wrap *SealedWrap, aad []byte) ([]byte, error)
}

var wrappers = map[string]Wrapper{
	AlgorithmX25519:   x25519Wrapper{},
	AlgorithmMLKEM768: mlkemWrapper{},
}

// ForAlgorithm returns the Wrapper for the given key algorithm identifier.
func ForAlgorithm(name string) (Wrapper, error) {
	w, ok := wrappers[name]
	if !ok {
		return nil, fmt.Errorf("unsupported key algorithm %q", name)
	}
	return w, nil
}
