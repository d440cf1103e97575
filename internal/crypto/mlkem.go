package icrypto

import (
	"fmt"

	"github.com/cloudflare/circl/kem/mlkem/mlkem768"
	"github.com/crewchat/crewseal/internal/util"
)

const mlkemWrapInfo = "crewseal:key-wrap:mlkem768:v1"

// mlkemWrapper seals content keys using ML-KEM-768 encapsulation,
// HKDF-SHA256, and AES-256-GCM. Post-quantum alternative to the X25519
// scheme, selectable per service via the key algorithm option.
type mlkemWrapper struct{}

func (mlkemWrapper) Algorithm() string { return AlgorithmMLKEM768 }

func (mlkemWrapper) GenerateKeyPair() (pub, priv []byte, err error) {
	pk, sk, err := mlkem768.GenerateKeyPair(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("generating ML-KEM-768 keypair: %w", err)
	}
	pub, err = pk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling ML-KEM-768 public key: %w", err)
	}
	priv, err = sk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling ML-KEM-768 private key: %w", err)
	}
	return pub, priv, nil
}

func (mlkemWrapper) Seal(recipientPub, key, aad []byte) (*SealedWrap, error) {
	if len(recipientPub) != mlkem768.PublicKeySize {
		return nil, fmt.Errorf("invalid ML-KEM-768 public key size: got %d, want %d",
			len(recipientPub), mlkem768.PublicKeySize)
	}
	var pk mlkem768.PublicKey
	pk.Unpack(recipientPub)

	ct := make([]byte, mlkem768.CiphertextSize)
	shared := make([]byte, mlkem768.SharedKeySize)
	seed, err := util.RandomBytes(mlkem768.EncapsulationSeedSize)
	if err != nil {
		return nil, fmt.Errorf("generating encapsulation seed: %w", err)
	}
	defer util.WipeBytes(seed)
	pk.EncapsulateTo(ct, shared, seed)
	defer util.WipeBytes(shared)

	salt, err := util.RandomBytes(32)
	if err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	wrapKey, err := util.HKDF(shared, salt, []byte(mlkemWrapInfo))
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
		Enc:        ct,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

func (mlkemWrapper) Open(recipientPriv []byte, wrap *SealedWrap, aad []byte) ([]byte, error) {
	if wrap.Ver != 1 {
		return nil, fmt.Errorf("unsupported sealed wrap version: %d", wrap.Ver)
	}
	if len(recipientPriv) != mlkem768.PrivateKeySize {
		return nil, fmt.Errorf("invalid ML-KEM-768 private key size: got %d, want %d",
			len(recipientPriv), mlkem768.PrivateKeySize)
	}
	if len(wrap.Enc) != mlkem768.CiphertextSize {
		return nil, fmt.Errorf("invalid ML-KEM-768 ciphertext size: got %d, want %d",
			len(wrap.Enc), mlkem768.CiphertextSize)
	}
	var sk mlkem768.PrivateKey
	sk.Unpack(recipientPriv)

	shared := make([]byte, mlkem768.SharedKeySize)
	sk.DecapsulateTo(shared, wrap.Enc)
	defer util.WipeBytes(shared)

	wrapKey, err := util.HKDF(shared, wrap.Salt, []byte(mlkemWrapInfo))
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(wrapKey)

	return util.OpenAEAD(wrapKey, wrap.Nonce, wrap.Ciphertext, aad)
}
