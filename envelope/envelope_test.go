package envelope

import (
	"testing"
	"time"

	icrypto "github.com/crewchat/crewseal/internal/crypto"
	"github.com/crewchat/crewseal/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validKeys() map[string]WrappedKey {
	return map[string]WrappedKey{
		"alice": {
			KeyVersion: 1,
			Wrap: icrypto.SealedWrap{
				Ver:        1,
				Enc:        make([]byte, 32),
				Salt:       make([]byte, 32),
				Nonce:      make([]byte, util.AEADNonceSize),
				Ciphertext: make([]byte, 48),
			},
		},
	}
}

func buildValid(t *testing.T, mutate func(keys map[string]WrappedKey)) (*EncryptedMessage, error) {
	t.Helper()
	keys := validKeys()
	if mutate != nil {
		mutate(keys)
	}
	return Build("msg-1", "alice", "crew-a", "text", time.Now(),
		make([]byte, util.AEADNonceSize), make([]byte, 64), keys,
		"aes256gcm", icrypto.AlgorithmX25519)
}

func TestBuildAndParse(t *testing.T) {
	m, err := buildValid(t, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Ver)

	raw, err := m.Marshal()
	require.NoError(t, err)

	parsed, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, m.MessageID, parsed.MessageID)
	assert.Equal(t, m.Keys["alice"].KeyVersion, parsed.Keys["alice"].KeyVersion)
	assert.Equal(t, m.Nonce, parsed.Nonce)
}

func TestBuild_CopiesKeys(t *testing.T) {
	keys := validKeys()
	m, err := Build("msg-1", "alice", "crew-a", "text", time.Now(),
		make([]byte, util.AEADNonceSize), make([]byte, 64), keys,
		"aes256gcm", icrypto.AlgorithmX25519)
	require.NoError(t, err)

	delete(keys, "alice")
	assert.Len(t, m.Keys, 1, "envelope must not share the caller's map")
}

func TestBuild_Invalid(t *testing.T) {
	now := time.Now()
	nonce := make([]byte, util.AEADNonceSize)
	ct := make([]byte, 64)

	cases := []struct {
		name  string
		build func() (*EncryptedMessage, error)
	}{
		{"EmptyMessageID", func() (*EncryptedMessage, error) {
			return Build("", "alice", "crew-a", "text", now, nonce, ct, validKeys(), "aes256gcm", icrypto.AlgorithmX25519)
		}},
		{"EmptySender", func() (*EncryptedMessage, error) {
			return Build("msg-1", "", "crew-a", "text", now, nonce, ct, validKeys(), "aes256gcm", icrypto.AlgorithmX25519)
		}},
		{"EmptyCrew", func() (*EncryptedMessage, error) {
			return Build("msg-1", "alice", "", "text", now, nonce, ct, validKeys(), "aes256gcm", icrypto.AlgorithmX25519)
		}},
		{"BadNonceLength", func() (*EncryptedMessage, error) {
			return Build("msg-1", "alice", "crew-a", "text", now, make([]byte, 8), ct, validKeys(), "aes256gcm", icrypto.AlgorithmX25519)
		}},
		{"ShortCiphertext", func() (*EncryptedMessage, error) {
			return Build("msg-1", "alice", "crew-a", "text", now, nonce, make([]byte, 4), validKeys(), "aes256gcm", icrypto.AlgorithmX25519)
		}},
		{"NoKeys", func() (*EncryptedMessage, error) {
			return Build("msg-1", "alice", "crew-a", "text", now, nonce, ct, nil, "aes256gcm", icrypto.AlgorithmX25519)
		}},
		{"MissingAlgorithm", func() (*EncryptedMessage, error) {
			return Build("msg-1", "alice", "crew-a", "text", now, nonce, ct, validKeys(), "", icrypto.AlgorithmX25519)
		}},
		{"MissingKeyAlgorithm", func() (*EncryptedMessage, error) {
			return Build("msg-1", "alice", "crew-a", "text", now, nonce, ct, validKeys(), "aes256gcm", "")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build()
			assert.ErrorIs(t, err, ErrInvalidEnvelope)
		})
	}

	t.Run("ZeroKeyVersion", func(t *testing.T) {
		_, err := buildValid(t, func(keys map[string]WrappedKey) {
			wk := keys["alice"]
			wk.KeyVersion = 0
			keys["alice"] = wk
		})
		assert.ErrorIs(t, err, ErrInvalidEnvelope)
	})
}

func TestParse_Garbage(t *testing.T) {
	_, err := Parse([]byte("not json"))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)

	_, err = Parse([]byte(`{"ver":1}`))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}
