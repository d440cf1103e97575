package util

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContentKey(t *testing.T) {
	key, nonce, err := NewContentKey()
	require.NoError(t, err)
	assert.Len(t, key, AEADKeySize)
	assert.Len(t, nonce, AEADNonceSize)

	key2, nonce2, err := NewContentKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, key2)
	assert.NotEqual(t, nonce, nonce2)
}

func TestSealOpenAEAD(t *testing.T) {
	key, nonce, err := NewContentKey()
	require.NoError(t, err)

	plaintext := []byte("all clear")
	aad := []byte("msg-1:crew-a")

	ct, err := SealAEAD(key, nonce, plaintext, aad)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(ct), AEADTagSize)

	out, err := OpenAEAD(key, nonce, ct, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestOpenAEAD_Tamper(t *testing.T) {
	key, nonce, err := NewContentKey()
	require.NoError(t, err)
	aad := []byte("msg-1:crew-a")
	ct, err := SealAEAD(key, nonce, []byte("all clear"), aad)
	require.NoError(t, err)

	t.Run("FlipCiphertextBit", func(t *testing.T) {
		bad := bytes.Clone(ct)
		bad[0] ^= 0x01
		_, err := OpenAEAD(key, nonce, bad, aad)
		assert.Error(t, err)
	})

	t.Run("FlipNonceBit", func(t *testing.T) {
		badNonce := bytes.Clone(nonce)
		badNonce[0] ^= 0x01
		_, err := OpenAEAD(key, badNonce, ct, aad)
		assert.Error(t, err)
	})

	t.Run("WrongAAD", func(t *testing.T) {
		_, err := OpenAEAD(key, nonce, ct, []byte("msg-2:crew-a"))
		assert.Error(t, err)
	})

	t.Run("TruncatedCiphertext", func(t *testing.T) {
		_, err := OpenAEAD(key, nonce, ct[:AEADTagSize-1], aad)
		assert.Error(t, err)
	})
}

func TestSealAEAD_BadSizes(t *testing.T) {
	_, err := SealAEAD(make([]byte, 16), make([]byte, AEADNonceSize), []byte("x"), nil)
	assert.Error(t, err)

	_, err = SealAEAD(make([]byte, AEADKeySize), make([]byte, 8), []byte("x"), nil)
	assert.Error(t, err)
}

func TestHKDF(t *testing.T) {
	seed := []byte("shared-secret-material-0123456789")
	k1, err := HKDF(seed, []byte("salt"), []byte("crewseal:test:v1"))
	require.NoError(t, err)
	assert.Len(t, k1, AEADKeySize)

	k2, err := HKDF(seed, []byte("salt"), []byte("crewseal:test:v1"))
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := HKDF(seed, []byte("salt"), []byte("crewseal:other:v1"))
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestWipeBytes(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	WipeBytes(b)
	assert.Equal(t, []byte{0, 0, 0, 0}, b)
}

func TestCopyBytes(t *testing.T) {
	src := []byte("abc")
	dst := CopyBytes(src)
	assert.Equal(t, src, dst)
	dst[0] = 'x'
	assert.Equal(t, byte('a'), src[0])
}

func TestNormalize(t *testing.T) {
	// U+FF41 FULLWIDTH LATIN SMALL LETTER A normalizes to plain 'a'.
	assert.Equal(t, "alice", Normalize("ａlice"))
	assert.Equal(t, "alice", Normalize("alice"))
}
