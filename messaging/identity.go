package messaging

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// Identity is one (user, crew) principal's local key material. Private keys
// are held in memguard Enclaves (encrypted at rest in memory) and are only
// materialized briefly during unwrap.
//
// An Identity retains retired private keys alongside the active one so that
// messages wrapped before a rotation stay readable through the grace period.
type Identity struct {
	UserID    string
	CrewID    string
	Algorithm string

	mu      sync.RWMutex
	keys    map[uint64]*memguard.Enclave
	active  uint64
	deleted bool
}

func newIdentity(userID, crewID, algorithm string, version uint64, privateKey []byte) *Identity {
	return &Identity{
		UserID:    userID,
		CrewID:    crewID,
		Algorithm: algorithm,
		keys:      map[uint64]*memguard.Enclave{version: memguard.NewEnclave(privateKey)},
		active:    version,
	}
}

// ActiveVersion returns the identity's current key version, or 0 if the
// identity has been disabled.
func (id *Identity) ActiveVersion() uint64 {
	id.mu.RLock()
	defer id.mu.RUnlock()
	if id.deleted {
		return 0
	}
	return id.active
}

// Initialized reports whether the identity still holds usable key material.
func (id *Identity) Initialized() bool {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return !id.deleted && len(id.keys) > 0
}

// addKey installs a new active private key, keeping prior versions for
// grace-period decryption. memguard.NewEnclave wipes the input slice.
func (id *Identity) addKey(version uint64, privateKey []byte) {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.keys[version] = memguard.NewEnclave(privateKey)
	id.active = version
}

// privateKey opens the enclave for the given version and returns a copy of
// the key bytes. The caller must wipe the returned slice.
func (id *Identity) privateKey(version uint64) ([]byte, error) {
	id.mu.RLock()
	enclave, ok := id.keys[version]
	deleted := id.deleted
	id.mu.RUnlock()
	if deleted || !ok {
		return nil, fmt.Errorf("no private key for version %d", version)
	}
	buf, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("opening key enclave: %w", err)
	}
	defer buf.Destroy()
	return append([]byte(nil), buf.Bytes()...), nil
}

// destroy drops all key material. The identity is unusable afterwards.
func (id *Identity) destroy() {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.keys = nil
	id.deleted = true
}
