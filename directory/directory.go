// Package directory abstracts the external directory service that stores
// public-key records and related crew metadata. Implementations must provide
// compare-and-swap semantics so key-record transitions can guarantee exactly
// one active record per identity.
package directory

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrCASFailed is returned when a compare-and-swap version check fails.
	ErrCASFailed = errors.New("CAS version mismatch")
	// ErrUnavailable is returned when the directory cannot be reached.
	// Transient; callers may retry with backoff.
	ErrUnavailable = errors.New("directory unavailable")
)

// Record is an opaque directory value plus a version counter used for CAS.
type Record struct {
	Value   []byte `json:"value"`
	Version uint64 `json:"version,omitempty"`
}

// BatchTx provides writes within an atomic transaction. The crewID is
// scoped to the batch, so methods don't require it.
type BatchTx interface {
	Put(recordType, recordID string, rec *Record) error
	PutCAS(recordType, recordID string, expectedVersion uint64, rec *Record) error
	Delete(recordType, recordID string) error
}

// Directory defines the record store consumed by the keystore and
// membership layers. Records are keyed by (crewID, recordType, recordID).
type Directory interface {
	Put(crewID, recordType, recordID string, rec *Record) error
	Get(crewID, recordType, recordID string) (*Record, error)
	List(crewID, recordType string) ([]string, error)
	Delete(crewID, recordType, recordID string) error
	PutCAS(crewID, recordType, recordID string, expectedVersion uint64, rec *Record) error
	Batch(crewID string, fn func(tx BatchTx) error) error
}
