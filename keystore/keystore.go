// Package keystore persists and retrieves per-(user, crew) public key
// records and owns rotation bookkeeping. It stores only public halves;
// private keys never pass through this package.
//
// The active key per identity is tracked by a pointer record updated with
// compare-and-swap, so concurrent rotations can never leave zero or two
// active records.
package keystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crewchat/crewseal/directory"
)

var (
	// ErrNotFound is returned when no key record exists for the identity.
	ErrNotFound = errors.New("key record not found")
	// ErrActiveExists is returned when publishing over an existing active key.
	ErrActiveExists = errors.New("active key already exists")
	// ErrRotationConflict is returned when a concurrent rotation won the
	// active-pointer swap first.
	ErrRotationConflict = errors.New("concurrent rotation conflict")
	// ErrGraceExpired is returned when a retired key version is past its
	// grace period and no longer resolvable.
	ErrGraceExpired = errors.New("retired key past grace period")
	// ErrDirectoryUnavailable is returned when the backing directory cannot
	// be reached. Transient; callers may retry with backoff.
	ErrDirectoryUnavailable = errors.New("directory unavailable")
)

// KeyState is the lifecycle state of a key record.
type KeyState string

const (
	KeyStateActive  KeyState = "active"
	KeyStateRetired KeyState = "retired"
)

// KeyRecord is one published public key for a (user, crew) identity.
// Exactly one record per identity is Active at any time once initialized.
type KeyRecord struct {
	UserID    string    `json:"user_id"`
	CrewID    string    `json:"crew_id"`
	Algorithm string    `json:"algorithm"`
	PublicKey []byte    `json:"public_key"`
	Version   uint64    `json:"version"`
	State     KeyState  `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	RetiredAt time.Time `json:"retired_at,omitzero"`
}

// Directory record layout.
const (
	recordTypeKey    = "KEYREC"
	recordTypeActive = "ACTIVE"
)

// DefaultGracePeriod is how long a retired key version remains resolvable.
const DefaultGracePeriod = 24 * time.Hour

// activePointer is the CAS-protected record naming the active key version.
type activePointer struct {
	Version uint64 `json:"version"`
}

// Option configures a Store.
type Option func(*Store)

// WithGracePeriod sets the retired-key grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Store) {
		s.grace = d
	}
}

// Store is the key record store on top of a directory service.
type Store struct {
	dir   directory.Directory
	grace time.Duration
	now   func() time.Time
}

// New creates a Store backed by the given directory.
func New(dir directory.Directory, opts ...Option) *Store {
	s := &Store{
		dir:   dir,
		grace: DefaultGracePeriod,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GracePeriod returns the configured retired-key grace period.
func (s *Store) GracePeriod() time.Duration {
	return s.grace
}

func keyRecordID(userID string, version uint64) string {
	return fmt.Sprintf("%s:v%d", userID, version)
}

// Publish installs rec as the identity's first active key. Fails with
// ErrActiveExists if an active key is already published.
func (s *Store) Publish(ctx context.Context, rec KeyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.State = KeyStateActive
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ptr, err := json.Marshal(activePointer{Version: rec.Version})
	if err != nil {
		return err
	}

	err = s.dir.Batch(rec.CrewID, func(tx directory.BatchTx) error {
		if err := tx.Put(recordTypeKey, keyRecordID(rec.UserID, rec.Version), &directory.Record{Value: data}); err != nil {
			return err
		}
		return tx.PutCAS(recordTypeActive, rec.UserID, 0, &directory.Record{Value: ptr, Version: rec.Version})
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, directory.ErrCASFailed):
		return fmt.Errorf("%s/%s: %w", rec.UserID, rec.CrewID, ErrActiveExists)
	default:
		return s.wrapDirErr(err)
	}
}

// Rotate retires the current active record and installs rec as the new
// active one in a single atomic operation. rec.Version must be exactly one
// past the current active version; a concurrent rotation that got there
// first surfaces as ErrRotationConflict.
func (s *Store) Rotate(ctx context.Context, rec KeyRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	old, err := s.FetchActive(ctx, rec.UserID, rec.CrewID)
	if err != nil {
		return err
	}
	if rec.Version != old.Version+1 {
		return fmt.Errorf("%w: expected version %d, got %d", ErrRotationConflict, old.Version+1, rec.Version)
	}

	retired := *old
	retired.State = KeyStateRetired
	retired.RetiredAt = s.now()

	rec.State = KeyStateActive
	newData, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	oldData, err := json.Marshal(retired)
	if err != nil {
		return err
	}
	ptr, err := json.Marshal(activePointer{Version: rec.Version})
	if err != nil {
		return err
	}

	err = s.dir.Batch(rec.CrewID, func(tx directory.BatchTx) error {
		if err := tx.Put(recordTypeKey, keyRecordID(rec.UserID, retired.Version), &directory.Record{Value: oldData}); err != nil {
			return err
		}
		if err := tx.Put(recordTypeKey, keyRecordID(rec.UserID, rec.Version), &directory.Record{Value: newData}); err != nil {
			return err
		}
		return tx.PutCAS(recordTypeActive, rec.UserID, old.Version, &directory.Record{Value: ptr, Version: rec.Version})
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, directory.ErrCASFailed):
		return fmt.Errorf("%s/%s: %w", rec.UserID, rec.CrewID, ErrRotationConflict)
	default:
		return s.wrapDirErr(err)
	}
}

// FetchActive returns the identity's current active key record.
func (s *Store) FetchActive(ctx context.Context, userID, crewID string) (*KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ptrRec, err := s.dir.Get(crewID, recordTypeActive, userID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, fmt.Errorf("%s/%s: %w", userID, crewID, ErrNotFound)
		}
		return nil, s.wrapDirErr(err)
	}
	var ptr activePointer
	if err := json.Unmarshal(ptrRec.Value, &ptr); err != nil {
		return nil, fmt.Errorf("decoding active pointer: %w", err)
	}
	return s.fetchRecord(crewID, userID, ptr.Version)
}

// FetchVersion returns a specific key version. Retired versions resolve
// until their grace period elapses, then fail with ErrGraceExpired.
func (s *Store) FetchVersion(ctx context.Context, userID, crewID string, version uint64) (*KeyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := s.fetchRecord(crewID, userID, version)
	if err != nil {
		return nil, err
	}
	if rec.State == KeyStateRetired && s.now().After(rec.RetiredAt.Add(s.grace)) {
		return nil, fmt.Errorf("%s/%s v%d: %w", userID, crewID, version, ErrGraceExpired)
	}
	return rec, nil
}

// DeleteAll removes every key record for the identity, including the active
// pointer. Idempotent: deleting an uninitialized identity is a no-op.
func (s *Store) DeleteAll(ctx context.Context, userID, crewID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ids, err := s.dir.List(crewID, recordTypeKey)
	if err != nil {
		return s.wrapDirErr(err)
	}
	prefix := userID + ":"
	var mine []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			mine = append(mine, id)
		}
	}
	hasPointer := true
	if _, err := s.dir.Get(crewID, recordTypeActive, userID); err != nil {
		if !errors.Is(err, directory.ErrNotFound) {
			return s.wrapDirErr(err)
		}
		hasPointer = false
	}
	if len(mine) == 0 && !hasPointer {
		return nil
	}

	err = s.dir.Batch(crewID, func(tx directory.BatchTx) error {
		for _, id := range mine {
			if err := tx.Delete(recordTypeKey, id); err != nil {
				return err
			}
		}
		if hasPointer {
			return tx.Delete(recordTypeActive, userID)
		}
		return nil
	})
	if err != nil {
		return s.wrapDirErr(err)
	}
	return nil
}

func (s *Store) fetchRecord(crewID, userID string, version uint64) (*KeyRecord, error) {
	rec, err := s.dir.Get(crewID, recordTypeKey, keyRecordID(userID, version))
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, fmt.Errorf("%s/%s v%d: %w", userID, crewID, version, ErrNotFound)
		}
		return nil, s.wrapDirErr(err)
	}
	var kr KeyRecord
	if err := json.Unmarshal(rec.Value, &kr); err != nil {
		return nil, fmt.Errorf("decoding key record: %w", err)
	}
	return &kr, nil
}

// wrapDirErr classifies unexpected directory failures as unavailable so
// callers can apply retry-with-backoff policy. Retry itself is the caller's
// job; masking outage duration here would hide real problems.
func (s *Store) wrapDirErr(err error) error {
	if errors.Is(err, directory.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
}
