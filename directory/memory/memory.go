// Package memory provides a thread-safe in-memory implementation of
// directory.Directory. Suitable for testing and single-process use.
package memory

import (
	"sync"

	"github.com/crewchat/crewseal/directory"
)

// Directory is a thread-safe in-memory implementation of directory.Directory.
type Directory struct {
	mu   sync.RWMutex
	data map[string]map[string]*directory.Record
}

var _ directory.Directory = (*Directory)(nil)

// New creates a new empty in-memory Directory.
func New() *Directory {
	return &Directory{data: make(map[string]map[string]*directory.Record)}
}

func makeKey(recordType, recordID string) string {
	return recordType + ":" + recordID
}

func cloneRecord(rec *directory.Record) *directory.Record {
	if rec == nil {
		return nil
	}
	return &directory.Record{
		Value:   append([]byte(nil), rec.Value...),
		Version: rec.Version,
	}
}

func (d *Directory) Put(crewID, recordType, recordID string, rec *directory.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.putLocked(crewID, recordType, recordID, rec)
}

func (d *Directory) putLocked(crewID, recordType, recordID string, rec *directory.Record) error {
	if _, ok := d.data[crewID]; !ok {
		d.data[crewID] = make(map[string]*directory.Record)
	}
	d.data[crewID][makeKey(recordType, recordID)] = cloneRecord(rec)
	return nil
}

func (d *Directory) Get(crewID, recordType, recordID string) (*directory.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.getLocked(crewID, recordType, recordID)
}

func (d *Directory) getLocked(crewID, recordType, recordID string) (*directory.Record, error) {
	crewData, ok := d.data[crewID]
	if !ok {
		return nil, directory.ErrNotFound
	}
	rec, ok := crewData[makeKey(recordType, recordID)]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (d *Directory) List(crewID, recordType string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var ids []string
	prefix := recordType + ":"
	for k := range d.data[crewID] {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			ids = append(ids, k[len(prefix):])
		}
	}
	return ids, nil
}

func (d *Directory) Delete(crewID, recordType, recordID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deleteLocked(crewID, recordType, recordID)
}

func (d *Directory) deleteLocked(crewID, recordType, recordID string) error {
	crewData, ok := d.data[crewID]
	if !ok {
		return directory.ErrNotFound
	}
	k := makeKey(recordType, recordID)
	if _, ok := crewData[k]; !ok {
		return directory.ErrNotFound
	}
	delete(crewData, k)
	return nil
}

func (d *Directory) PutCAS(crewID, recordType, recordID string, expectedVersion uint64, rec *directory.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.putCASLocked(crewID, recordType, recordID, expectedVersion, rec)
}

func (d *Directory) putCASLocked(crewID, recordType, recordID string, expectedVersion uint64, rec *directory.Record) error {
	existing, err := d.getLocked(crewID, recordType, recordID)
	if err != nil {
		if expectedVersion != 0 {
			return directory.ErrCASFailed
		}
		return d.putLocked(crewID, recordType, recordID, rec)
	}
	if existing.Version != expectedVersion {
		return directory.ErrCASFailed
	}
	return d.putLocked(crewID, recordType, recordID, rec)
}

// Batch executes fn within a transaction. On error, all writes are rolled back.
func (d *Directory) Batch(crewID string, fn func(tx directory.BatchTx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := d.snapshotCrew(crewID)

	tx := &memoryBatchTx{dir: d, crewID: crewID}
	if err := fn(tx); err != nil {
		d.restoreCrew(crewID, snapshot)
		return err
	}
	return nil
}

func (d *Directory) snapshotCrew(crewID string) map[string]*directory.Record {
	original, ok := d.data[crewID]
	if !ok {
		return nil
	}
	cp := make(map[string]*directory.Record, len(original))
	for k, v := range original {
		cp[k] = cloneRecord(v)
	}
	return cp
}

func (d *Directory) restoreCrew(crewID string, snapshot map[string]*directory.Record) {
	if snapshot == nil {
		delete(d.data, crewID)
	} else {
		d.data[crewID] = snapshot
	}
}

type memoryBatchTx struct {
	dir    *Directory
	crewID string
}

func (tx *memoryBatchTx) Put(recordType, recordID string, rec *directory.Record) error {
	return tx.dir.putLocked(tx.crewID, recordType, recordID, rec)
}

func (tx *memoryBatchTx) PutCAS(recordType, recordID string, expectedVersion uint64, rec *directory.Record) error {
	return tx.dir.putCASLocked(tx.crewID, recordType, recordID, expectedVersion, rec)
}

func (tx *memoryBatchTx) Delete(recordType, recordID string) error {
	return tx.dir.deleteLocked(tx.crewID, recordType, recordID)
}
