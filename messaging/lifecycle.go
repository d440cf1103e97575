package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crewchat/crewseal/crypto"
	"github.com/crewchat/crewseal/internal/util"
	"github.com/crewchat/crewseal/keystore"
	"github.com/sirupsen/logrus"
)

// Status describes an identity's encryption state.
type Status struct {
	Initialized   bool
	ActiveVersion uint64
	Algorithm     string
	CreatedAt     time.Time
	KeyAge        time.Duration
	RotationDue   bool
}

// Initialize generates the identity's first keypair, publishes the public
// half, and returns an Identity holding the private half. Fails with
// ErrAlreadyInitialized if the identity already has an active key.
func (s *Service) Initialize(ctx context.Context, userID, crewID string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	userID = util.Normalize(userID)
	crewID = util.Normalize(crewID)
	if err := validateID(userID, "user ID"); err != nil {
		return nil, err
	}
	if err := validateID(crewID, "crew ID"); err != nil {
		return nil, err
	}

	lock := s.locks.get(rateKey(userID, crewID))
	lock.Lock()
	defer lock.Unlock()

	kp, err := crypto.GenerateKeyPair(s.keyAlg, 1)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}

	rec := keystore.KeyRecord{
		UserID:    userID,
		CrewID:    crewID,
		Algorithm: kp.Algorithm,
		PublicKey: kp.Public,
		Version:   kp.Version,
		CreatedAt: s.now().UTC(),
	}
	if err := s.keys.Publish(ctx, rec); err != nil {
		util.WipeBytes(kp.Private)
		if errors.Is(err, keystore.ErrActiveExists) {
			return nil, fmt.Errorf("%s/%s: %w", userID, crewID, ErrAlreadyInitialized)
		}
		return nil, err
	}

	s.audit("encryption_initialized", logrus.Fields{
		"user_id":     userID,
		"crew_id":     crewID,
		"key_version": kp.Version,
		"algorithm":   kp.Algorithm,
	})
	return newIdentity(userID, crewID, kp.Algorithm, kp.Version, kp.Private), nil
}

// RotateKeys generates a fresh keypair one version past the identity's
// current active key and atomically swaps it in. The retired private key is
// kept in the Identity so grace-period decryption keeps working.
func (s *Service) RotateKeys(ctx context.Context, id *Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == nil || !id.Initialized() {
		return ErrNotInitialized
	}

	lock := s.locks.get(rateKey(id.UserID, id.CrewID))
	lock.Lock()
	defer lock.Unlock()

	active, err := s.keys.FetchActive(ctx, id.UserID, id.CrewID)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return fmt.Errorf("%s/%s: %w", id.UserID, id.CrewID, ErrNoExistingKeys)
		}
		return err
	}

	kp, err := crypto.GenerateKeyPair(id.Algorithm, active.Version+1)
	if err != nil {
		return fmt.Errorf("generating keypair: %w", err)
	}

	rec := keystore.KeyRecord{
		UserID:    id.UserID,
		CrewID:    id.CrewID,
		Algorithm: kp.Algorithm,
		PublicKey: kp.Public,
		Version:   kp.Version,
		CreatedAt: s.now().UTC(),
	}
	if err := s.keys.Rotate(ctx, rec); err != nil {
		util.WipeBytes(kp.Private)
		if errors.Is(err, keystore.ErrRotationConflict) {
			return fmt.Errorf("%s/%s: %w", id.UserID, id.CrewID, ErrRotationConflict)
		}
		return err
	}

	id.addKey(kp.Version, kp.Private)
	s.audit("keys_rotated", logrus.Fields{
		"user_id":      id.UserID,
		"crew_id":      id.CrewID,
		"key_version":  kp.Version,
		"grace_period": s.keys.GracePeriod().String(),
	})
	return nil
}

// Disable deletes all of the identity's key records and destroys its local
// private keys. Previously sent messages become permanently unreadable for
// this identity. The reason is recorded in the audit log.
func (s *Service) Disable(ctx context.Context, id *Identity, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == nil {
		return ErrNotInitialized
	}

	lock := s.locks.get(rateKey(id.UserID, id.CrewID))
	lock.Lock()
	defer lock.Unlock()

	if err := s.keys.DeleteAll(ctx, id.UserID, id.CrewID); err != nil {
		return err
	}
	id.destroy()

	s.audit("encryption_disabled", logrus.Fields{
		"user_id": id.UserID,
		"crew_id": id.CrewID,
		"reason":  reason,
	})
	return nil
}

// Status reports the identity's encryption state. An uninitialized identity
// yields a zero Status with Initialized false, not an error.
func (s *Service) Status(ctx context.Context, userID, crewID string) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	userID = util.Normalize(userID)
	crewID = util.Normalize(crewID)
	if err := validateID(userID, "user ID"); err != nil {
		return nil, err
	}
	if err := validateID(crewID, "crew ID"); err != nil {
		return nil, err
	}

	active, err := s.keys.FetchActive(ctx, userID, crewID)
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return &Status{}, nil
		}
		return nil, err
	}

	age := s.now().Sub(active.CreatedAt)
	return &Status{
		Initialized:   true,
		ActiveVersion: active.Version,
		Algorithm:     active.Algorithm,
		CreatedAt:     active.CreatedAt,
		KeyAge:        age,
		RotationDue:   age > s.maxKeyAge,
	}, nil
}
