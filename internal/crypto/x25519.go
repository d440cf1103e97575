package icrypto

import (
	"fmt"

	"github.com/crewchat/crewseal/internal/util"
	"golang.org/x/crypto/curve25519"
)

const x25519WrapInfo = "crewseal:key-wrap:x25519:v1"

// x25519Wrapper seals content keys using ephemeral ECDH over Curve25519,
// HKDF-SHA256, and AES-256-GCM.
type x25519Wrapper struct{}

func (x25519Wrapper) Algorithm() string { return AlgorithmX25519 }

func (x25519Wrapper) GenerateKeyPair() (pub, priv []byte, err error) {
	priv, err = util.RandomBytes(curve25519.ScalarSize)
	if err != nil {
		return nil, nil, fmt.Errorf("generating X25519 private key: %w", err)
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		util.WipeBytes(priv)
		return nil, nil, fmt.Errorf("deriving X25519 public key: %w", err)
	}
	return pub, priv, nil
}

func (w x25519Wrapper) Seal(recipientPub, key, aad []byte) (*SealedWrap, error) {
	ephPub, ephPriv, err := w.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(ephPriv)

	shared, err := curve25519.X25519(ephPriv, recipientPub)
	if err != nil {
		return nil, fmt.Errorf("deriving shared secret: %w", err)
	}
	defer util.WipeBytes(shared)

	salt, err := util.RandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	wrapKey, err := util.HKDF(shared, salt, []byte(x25519WrapInfo))
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(wrapKey)

	nonce, err := util.RandomBytes(util.AEADNonceSize)
	if err != nil {
		return nil, fmt.Errorf("generating wrap nonce: %w", err)
	}
	ciphertext, err := util.SealAEAD(wrapKey, nonce, key, aad)
	if err != nil {
		return nil, err
	}

	return &SealedWrap{
		Ver:        1,
		Enc:        ephPub,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

func (x25519Wrapper) Open(recipientPriv []byte, wrap *SealedWrap, aad []byte) ([]byte, error) {
	if wrap.Ver != 1 {
		return nil, fmt.Errorf("unsupported sealed wrap version: %d", wrap.Ver)
	}
	shared, err := curve25519.X25519(recipientPriv, wrap.Enc)
	if err != nil {
		return nil, fmt.Errorf("deriving shared secret: %w", err)
	}
	defer util.WipeBytes(shared)

	wrapKey, err := util.HKDF(shared, wrap.Salt, []byte(x25519WrapInfo))
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(wrapKey)

	return util.OpenAEAD(wrapKey, wrap.Nonce, wrap.Ciphertext, aad)
}
