package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair(t *testing.T) {
	for _, alg := range []string{AlgorithmX25519Wrap, AlgorithmMLKEM768Wrap} {
		t.Run(alg, func(t *testing.T) {
			kp, err := GenerateKeyPair(alg, 1)
			require.NoError(t, err)
			assert.Equal(t, alg, kp.Algorithm)
			assert.Equal(t, uint64(1), kp.Version)
			assert.NotEmpty(t, kp.Public)
			assert.NotEmpty(t, kp.Private)

			kp2, err := GenerateKeyPair(alg, 2)
			require.NoError(t, err)
			assert.NotEqual(t, kp.Public, kp2.Public)
			assert.NotEqual(t, kp.Private, kp2.Private)
		})
	}
}

func TestGenerateKeyPair_UnknownAlgorithm(t *testing.T) {
	_, err := GenerateKeyPair("rot13", 1)
	assert.Error(t, err)
}
