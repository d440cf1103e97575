package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/crewchat/crewseal/crypto"
	"github.com/crewchat/crewseal/envelope"
	icrypto "github.com/crewchat/crewseal/internal/crypto"
	"github.com/crewchat/crewseal/internal/util"
	"github.com/crewchat/crewseal/internal/uuid"
	"github.com/crewchat/crewseal/keystore"
	"github.com/sirupsen/logrus"
)

// EncryptRequest describes one message to encrypt.
//
// Recipients semantics: nil means "every current crew member" (resolved via
// the membership provider); a non-nil empty slice is an error, since a
// message nobody can read is always a caller bug.
type EncryptRequest struct {
	MessageType string
	Content     []byte
	Recipients  []string
}

// EncryptMessage seals the content once with a fresh AES-256-GCM key and
// wraps that key for every resolved recipient. The sender is always
// included among the recipients so they can read their own messages.
//
// Recipients without a published key are skipped and logged; the message is
// still delivered to the rest. Only when no recipient has a usable key does
// the call fail, with ErrNoValidRecipientKeys.
func (s *Service) EncryptMessage(ctx context.Context, id *Identity, req EncryptRequest) (*envelope.EncryptedMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == nil {
		return nil, ErrNotInitialized
	}
	if !s.limiter.allow(rateKey(id.UserID, id.CrewID)) {
		s.audit("rate_limited", logrus.Fields{
			"user_id":   id.UserID,
			"crew_id":   id.CrewID,
			"operation": "encrypt",
		})
		return nil, fmt.Errorf("%s/%s: %w", id.UserID, id.CrewID, ErrTooManyRequests)
	}

	messageType := util.Normalize(req.MessageType)
	if err := validateMessageType(messageType); err != nil {
		return nil, err
	}
	if len(req.Content) == 0 {
		return nil, validationErrorf("content must not be empty")
	}
	if len(req.Content) > s.maxContent {
		return nil, validationErrorf("content size %d exceeds maximum of %d bytes", len(req.Content), s.maxContent)
	}
	if !id.Initialized() {
		return nil, fmt.Errorf("%s/%s: %w", id.UserID, id.CrewID, ErrNotInitialized)
	}

	recipients, err := s.resolveRecipients(ctx, id, req.Recipients)
	if err != nil {
		return nil, err
	}

	records, err := s.fetchRecipientKeys(ctx, id.CrewID, recipients)
	if err != nil {
		return nil, err
	}

	wrapper, err := icrypto.ForAlgorithm(s.keyAlg)
	if err != nil {
		return nil, err
	}

	contentKey, nonce, err := util.NewContentKey()
	if err != nil {
		return nil, fmt.Errorf("generating content key: %w", err)
	}
	defer util.WipeBytes(contentKey)

	messageID := uuid.New()
	createdAt := s.now().UTC()

	ciphertext, err := util.SealAEAD(contentKey, nonce, req.Content, icrypto.AADMessage(id.CrewID, messageID, messageType))
	if err != nil {
		return nil, fmt.Errorf("sealing content: %w", err)
	}

	keys := make(map[string]envelope.WrappedKey, len(records))
	for recipientID, rec := range records {
		aad := icrypto.AADKeyWrap(id.CrewID, messageID, recipientID, rec.Version)
		wrap, err := wrapper.Seal(rec.PublicKey, contentKey, aad)
		if err != nil {
			return nil, fmt.Errorf("wrapping key for %s: %w", recipientID, err)
		}
		keys[recipientID] = envelope.WrappedKey{KeyVersion: rec.Version, Wrap: *wrap}
	}

	msg, err := envelope.Build(messageID, id.UserID, id.CrewID, messageType, createdAt,
		nonce, ciphertext, keys, crypto.AlgorithmAES256GCM, s.keyAlg)
	if err != nil {
		return nil, err
	}

	s.audit("message_encrypted", logrus.Fields{
		"user_id":    id.UserID,
		"crew_id":    id.CrewID,
		"message_id": messageID,
		"recipients": len(keys),
	})
	return msg, nil
}

// resolveRecipients expands a nil recipient list to the crew's membership
// and always folds the sender in.
func (s *Service) resolveRecipients(ctx context.Context, id *Identity, explicit []string) ([]string, error) {
	var recipients []string
	if explicit == nil {
		members, err := s.members.Members(ctx, id.CrewID)
		if err != nil {
			return nil, fmt.Errorf("resolving crew members: %w", err)
		}
		recipients = members
	} else {
		if len(explicit) == 0 {
			return nil, fmt.Errorf("%s: %w", id.CrewID, ErrNoRecipientsFound)
		}
		recipients = explicit
	}

	candidates := make([]string, 0, len(recipients)+1)
	candidates = append(candidates, recipients...)
	candidates = append(candidates, id.UserID)

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, r := range candidates {
		r = util.Normalize(r)
		if err := validateID(r, "recipient ID"); err != nil {
			return nil, err
		}
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", id.CrewID, ErrNoRecipientsFound)
	}
	return out, nil
}

// fetchRecipientKeys loads each recipient's active key record, skipping
// identities with no published key or a different key-wrap scheme.
func (s *Service) fetchRecipientKeys(ctx context.Context, crewID string, recipients []string) (map[string]*keystore.KeyRecord, error) {
	records := make(map[string]*keystore.KeyRecord, len(recipients))
	for _, recipientID := range recipients {
		rec, err := s.keys.FetchActive(ctx, recipientID, crewID)
		if err != nil {
			if errors.Is(err, keystore.ErrNotFound) {
				s.log.WithFields(logrus.Fields{
					"crew_id":      crewID,
					"recipient_id": recipientID,
				}).Warn("recipient has no published key, skipping")
				continue
			}
			return nil, err
		}
		if rec.Algorithm != s.keyAlg {
			s.log.WithFields(logrus.Fields{
				"crew_id":      crewID,
				"recipient_id": recipientID,
				"algorithm":    rec.Algorithm,
			}).Warn("recipient key algorithm mismatch, skipping")
			continue
		}
		records[recipientID] = rec
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", crewID, ErrNoValidRecipientKeys)
	}
	return records, nil
}
