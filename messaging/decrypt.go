package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crewchat/crewseal/crypto"
	"github.com/crewchat/crewseal/envelope"
	icrypto "github.com/crewchat/crewseal/internal/crypto"
	"github.com/crewchat/crewseal/internal/util"
	"github.com/crewchat/crewseal/keystore"
	"github.com/sirupsen/logrus"
)

// PlaintextMessage is a successfully decrypted message.
type PlaintextMessage struct {
	MessageID   string
	SenderID    string
	CrewID      string
	MessageType string
	CreatedAt   time.Time
	Content     []byte
}

// DecryptOption configures a single DecryptMessage call.
type DecryptOption func(*decryptOptions)

type decryptOptions struct {
	stepUpCode string
}

// WithStepUpCode supplies the second-factor code for message types that
// require step-up verification.
func WithStepUpCode(code string) DecryptOption {
	return func(o *decryptOptions) {
		o.stepUpCode = code
	}
}

// DecryptMessage unwraps the caller's copy of the content key and opens the
// message content. Every failure path maps to a distinct sentinel so callers
// can tell an authorization problem from tampering from key expiry.
func (s *Service) DecryptMessage(ctx context.Context, id *Identity, msg *envelope.EncryptedMessage, opts ...DecryptOption) (*PlaintextMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == nil {
		return nil, ErrNotInitialized
	}
	var o decryptOptions
	for _, opt := range opts {
		opt(&o)
	}

	if msg == nil {
		return nil, validationErrorf("message must not be nil")
	}
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if msg.Algorithm != crypto.AlgorithmAES256GCM {
		return nil, validationErrorf("unsupported content algorithm %q", msg.Algorithm)
	}

	wk, ok := msg.Keys[id.UserID]
	if !ok || msg.CrewID != id.CrewID {
		s.audit("unauthorized_decrypt_attempt", logrus.Fields{
			"user_id":    id.UserID,
			"crew_id":    id.CrewID,
			"message_id": msg.MessageID,
		})
		return nil, fmt.Errorf("%s: %w", id.UserID, ErrNotAuthorizedRecipient)
	}

	if !s.limiter.allow(rateKey(id.UserID, id.CrewID)) {
		s.audit("rate_limited", logrus.Fields{
			"user_id":   id.UserID,
			"crew_id":   id.CrewID,
			"operation": "decrypt",
		})
		return nil, fmt.Errorf("%s/%s: %w", id.UserID, id.CrewID, ErrTooManyRequests)
	}

	if s.sensitive[msg.MessageType] {
		if err := s.verifyStepUp(id.UserID, msg.MessageID, o.stepUpCode); err != nil {
			return nil, err
		}
	}

	if !id.Initialized() {
		return nil, fmt.Errorf("%s/%s: %w", id.UserID, id.CrewID, ErrNotInitialized)
	}

	// The published record for the wrapped version must still be within its
	// grace period; holding the private key locally is not enough on its own.
	if _, err := s.keys.FetchVersion(ctx, id.UserID, id.CrewID, wk.KeyVersion); err != nil {
		if errors.Is(err, keystore.ErrGraceExpired) || errors.Is(err, keystore.ErrNotFound) {
			s.audit("expired_key_version", logrus.Fields{
				"user_id":     id.UserID,
				"crew_id":     id.CrewID,
				"message_id":  msg.MessageID,
				"key_version": wk.KeyVersion,
			})
			return nil, fmt.Errorf("version %d: %w", wk.KeyVersion, ErrKeyVersionExpired)
		}
		return nil, err
	}

	wrapper, err := icrypto.ForAlgorithm(msg.KeyAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	priv, err := id.privateKey(wk.KeyVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrapFailed, err)
	}
	defer util.WipeBytes(priv)

	aadWrap := icrypto.AADKeyWrap(msg.CrewID, msg.MessageID, id.UserID, wk.KeyVersion)
	contentKey, err := wrapper.Open(priv, &wk.Wrap, aadWrap)
	if err != nil {
		s.audit("unwrap_failed", logrus.Fields{
			"user_id":    id.UserID,
			"crew_id":    id.CrewID,
			"message_id": msg.MessageID,
		})
		return nil, fmt.Errorf("%s: %w", msg.MessageID, ErrUnwrapFailed)
	}
	defer util.WipeBytes(contentKey)

	aadMsg := icrypto.AADMessage(msg.CrewID, msg.MessageID, msg.MessageType)
	content, err := util.OpenAEAD(contentKey, msg.Nonce, msg.Ciphertext, aadMsg)
	if err != nil {
		s.audit("message_tampered", logrus.Fields{
			"user_id":    id.UserID,
			"crew_id":    id.CrewID,
			"message_id": msg.MessageID,
			"sender_id":  msg.SenderID,
		})
		return nil, fmt.Errorf("%s: %w", msg.MessageID, ErrMessageTampered)
	}

	s.audit("message_decrypted", logrus.Fields{
		"user_id":    id.UserID,
		"crew_id":    id.CrewID,
		"message_id": msg.MessageID,
	})
	return &PlaintextMessage{
		MessageID:   msg.MessageID,
		SenderID:    msg.SenderID,
		CrewID:      msg.CrewID,
		MessageType: msg.MessageType,
		CreatedAt:   msg.CreatedAt,
		Content:     content,
	}, nil
}

func (s *Service) verifyStepUp(userID, messageID, code string) error {
	if s.stepUp == nil {
		return fmt.Errorf("%s: %w", userID, ErrStepUpRequired)
	}
	if code == "" {
		return fmt.Errorf("%s: %w", userID, ErrStepUpRequired)
	}
	if !s.stepUp.Verify(userID, code) {
		s.audit("step_up_failed", logrus.Fields{
			"user_id":    userID,
			"message_id": messageID,
		})
		return fmt.Errorf("%s: %w", userID, ErrInvalidStepUpCode)
	}
	return nil
}
