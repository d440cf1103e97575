package icrypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAAD(t *testing.T) {
	aad1 := AADMessage("crew-a", "msg-1", "text")
	aad2 := AADMessage("crew-a", "msg-1", "text")
	assert.Equal(t, aad1, aad2, "AADMessage should be deterministic")

	aad3 := AADMessage("crew-a", "msg-2", "text")
	assert.NotEqual(t, aad1, aad3, "different message ids must produce different AAD")

	aad4 := AADMessage("crew-b", "msg-1", "text")
	assert.NotEqual(t, aad1, aad4, "different crews must produce different AAD")

	// Length prefixing prevents boundary ambiguity between fields.
	aad5 := AADMessage("crew-ab", "msg-1", "text")
	aad6 := AADMessage("crew-a", "bmsg-1", "text")
	assert.NotEqual(t, aad5, aad6)

	wrap1 := AADKeyWrap("crew-a", "msg-1", "alice", 1)
	wrap2 := AADKeyWrap("crew-a", "msg-1", "alice", 2)
	assert.NotEqual(t, wrap1, wrap2, "key version must be bound into wrap AAD")

	wrap3 := AADKeyWrap("crew-a", "msg-1", "bob", 1)
	assert.NotEqual(t, wrap1, wrap3, "recipient must be bound into wrap AAD")
}

func TestForAlgorithm(t *testing.T) {
	for _, alg := range []string{AlgorithmX25519, AlgorithmMLKEM768} {
		w, err := ForAlgorithm(alg)
		require.NoError(t, err)
		assert.Equal(t, alg, w.Algorithm())
	}

	_, err := ForAlgorithm("rsa-pkcs1v15")
	assert.Error(t, err)
}

func TestWrapRoundTrip(t *testing.T) {
	key := []byte("this-is-a-32-byte-key-0123456789")
	aad := AADKeyWrap("crew-a", "msg-1", "alice", 1)

	for _, alg := range []string{AlgorithmX25519, AlgorithmMLKEM768} {
		t.Run(alg, func(t *testing.T) {
			w, err := ForAlgorithm(alg)
			require.NoError(t, err)

			pub, priv, err := w.GenerateKeyPair()
			require.NoError(t, err)

			wrap, err := w.Seal(pub, key, aad)
			require.NoError(t, err)
			assert.Equal(t, 1, wrap.Ver)

			opened, err := w.Open(priv, wrap, aad)
			require.NoError(t, err)
			assert.Equal(t, key, opened)

			t.Run("WrongAAD", func(t *testing.T) {
				_, err := w.Open(priv, wrap, AADKeyWrap("crew-a", "msg-1", "bob", 1))
				assert.Error(t, err)
			})

			t.Run("TamperCiphertext", func(t *testing.T) {
				bad := *wrap
				bad.Ciphertext = bytes.Clone(wrap.Ciphertext)
				bad.Ciphertext[0] ^= 0xFF
				_, err := w.Open(priv, &bad, aad)
				assert.Error(t, err)
			})

			t.Run("WrongPrivateKey", func(t *testing.T) {
				_, otherPriv, err := w.GenerateKeyPair()
				require.NoError(t, err)
				_, err = w.Open(otherPriv, wrap, aad)
				assert.Error(t, err)
			})
		})
	}
}

func TestWrapKeysAreFreshPerSeal(t *testing.T) {
	w, err := ForAlgorithm(AlgorithmX25519)
	require.NoError(t, err)
	pub, _, err := w.GenerateKeyPair()
	require.NoError(t, err)

	key := []byte("this-is-a-32-byte-key-0123456789")
	aad := []byte("aad")
	w1, err := w.Seal(pub, key, aad)
	require.NoError(t, err)
	w2, err := w.Seal(pub, key, aad)
	require.NoError(t, err)

	assert.NotEqual(t, w1.Enc, w2.Enc, "ephemeral keys must not repeat")
	assert.NotEqual(t, w1.Nonce, w2.Nonce)
	assert.NotEqual(t, w1.Ciphertext, w2.Ciphertext)
}
