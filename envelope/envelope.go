// Package envelope defines the EncryptedMessage wire structure and enforces
// its structural invariants. An envelope is immutable once built: it either
// carries the full ciphertext plus one wrapped key per recipient, or it is
// never created.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	icrypto "github.com/crewchat/crewseal/internal/crypto"
	"github.com/crewchat/crewseal/internal/util"
)

// ErrInvalidEnvelope indicates a structurally malformed envelope.
var ErrInvalidEnvelope = errors.New("invalid envelope")

const envelopeVer = 1

// WrappedKey is one recipient's copy of the content key, sealed under the
// public key version that was active for them at send time.
type WrappedKey struct {
	KeyVersion uint64             `json:"key_version"`
	Wrap       icrypto.SealedWrap `json:"wrap"`
}

// EncryptedMessage is the complete persisted/transmitted encrypted-message
// structure. Any transport may persist or deliver it unmodified.
type EncryptedMessage struct {
	Ver          int                   `json:"ver"`
	MessageID    string                `json:"message_id"`
	SenderID     string                `json:"sender_id"`
	CrewID       string                `json:"crew_id"`
	MessageType  string                `json:"message_type"`
	CreatedAt    time.Time             `json:"created_at"`
	Nonce        []byte                `json:"nonce"`
	Ciphertext   []byte                `json:"ciphertext"`
	Keys         map[string]WrappedKey `json:"keys"`
	Algorithm    string                `json:"algorithm"`
	KeyAlgorithm string                `json:"key_algorithm"`
}

// Build assembles and validates an envelope. The Keys map is copied so the
// caller cannot mutate the envelope after creation.
func Build(messageID, senderID, crewID, messageType string, createdAt time.Time,
	nonce, ciphertext []byte, keys map[string]WrappedKey, algorithm, keyAlgorithm string) (*EncryptedMessage, error) {

	m := &EncryptedMessage{
		Ver:          envelopeVer,
		MessageID:    messageID,
		SenderID:     senderID,
		CrewID:       crewID,
		MessageType:  messageType,
		CreatedAt:    createdAt,
		Nonce:        util.CopyBytes(nonce),
		Ciphertext:   util.CopyBytes(ciphertext),
		Keys:         make(map[string]WrappedKey, len(keys)),
		Algorithm:    algorithm,
		KeyAlgorithm: keyAlgorithm,
	}
	for id, wk := range keys {
		m.Keys[id] = wk
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Parse decodes and validates a serialized envelope.
func Parse(raw []byte) (*EncryptedMessage, error) {
	var m EncryptedMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Marshal serializes the envelope for persistence or transport.
func (m *EncryptedMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Validate checks the envelope's structural invariants.
func (m *EncryptedMessage) Validate() error {
	switch {
	case m.Ver != envelopeVer:
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidEnvelope, m.Ver)
	case m.MessageID == "":
		return fmt.Errorf("%w: missing message id", ErrInvalidEnvelope)
	case m.SenderID == "":
		return fmt.Errorf("%w: missing sender id", ErrInvalidEnvelope)
	case m.CrewID == "":
		return fmt.Errorf("%w: missing crew id", ErrInvalidEnvelope)
	case m.CreatedAt.IsZero():
		return fmt.Errorf("%w: missing created_at", ErrInvalidEnvelope)
	case len(m.Nonce) != util.AEADNonceSize:
		return fmt.Errorf("%w: nonce length %d, want %d", ErrInvalidEnvelope, len(m.Nonce), util.AEADNonceSize)
	case len(m.Ciphertext) < util.AEADTagSize:
		return fmt.Errorf("%w: ciphertext shorter than tag", ErrInvalidEnvelope)
	case len(m.Keys) == 0:
		return fmt.Errorf("%w: no wrapped keys", ErrInvalidEnvelope)
	case m.Algorithm == "":
		return fmt.Errorf("%w: missing algorithm", ErrInvalidEnvelope)
	case m.KeyAlgorithm == "":
		return fmt.Errorf("%w: missing key algorithm", ErrInvalidEnvelope)
	}
	for id, wk := range m.Keys {
		if id == "" {
			return fmt.Errorf("%w: empty recipient id", ErrInvalidEnvelope)
		}
		if wk.KeyVersion == 0 {
			return fmt.Errorf("%w: recipient %s has no key version", ErrInvalidEnvelope, id)
		}
		if len(wk.Wrap.Ciphertext) == 0 {
			return fmt.Errorf("%w: recipient %s has empty wrap", ErrInvalidEnvelope, id)
		}
	}
	return nil
}
