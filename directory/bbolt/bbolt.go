// Package bbolt provides a BBolt-backed directory.Directory.
package bbolt

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/crewchat/crewseal/directory"
	"go.etcd.io/bbolt"
)

// Directory implements directory.Directory backed by a BBolt database, one
// bucket per crew.
type Directory struct {
	db *bbolt.DB
}

var _ directory.Directory = (*Directory)(nil)

// New returns a Directory backed by the given BBolt database.
func New(db *bbolt.DB) *Directory {
	return &Directory{db: db}
}

// NewFromFile opens a BBolt database at the given path and returns a Directory.
func NewFromFile(path string, options *bbolt.Options) (*Directory, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return New(db), nil
}

// Close closes the underlying BBolt database.
func (d *Directory) Close() error {
	return d.db.Close()
}

func recordKey(recordType, recordID string) []byte {
	return []byte(recordType + ":" + recordID)
}

func (d *Directory) Put(crewID, recordType, recordID string, rec *directory.Record) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(crewID))
		if err != nil {
			return err
		}
		return putInBucket(b, recordType, recordID, rec)
	})
}

func putInBucket(b *bbolt.Bucket, recordType, recordID string, rec *directory.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put(recordKey(recordType, recordID), data)
}

func (d *Directory) Get(crewID, recordType, recordID string) (*directory.Record, error) {
	var rec directory.Record
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(crewID))
		if b == nil {
			return fmt.Errorf("%s/%s: %w", recordType, recordID, directory.ErrNotFound)
		}
		data := b.Get(recordKey(recordType, recordID))
		if data == nil {
			return fmt.Errorf("%s/%s: %w", recordType, recordID, directory.ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (d *Directory) List(crewID, recordType string) ([]string, error) {
	var ids []string
	prefix := []byte(recordType + ":")
	err := d.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(crewID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			ids = append(ids, string(k[len(prefix):]))
		}
		return nil
	})
	return ids, err
}

func (d *Directory) Delete(crewID, recordType, recordID string) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(crewID))
		if b == nil {
			return fmt.Errorf("%s/%s: %w", recordType, recordID, directory.ErrNotFound)
		}
		return deleteInBucket(b, recordType, recordID)
	})
}

func deleteInBucket(b *bbolt.Bucket, recordType, recordID string) error {
	key := recordKey(recordType, recordID)
	if b.Get(key) == nil {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, directory.ErrNotFound)
	}
	return b.Delete(key)
}

func putCASInBucket(b *bbolt.Bucket, recordType, recordID string, expectedVersion uint64, rec *directory.Record) error {
	existingData := b.Get(recordKey(recordType, recordID))

	if expectedVersion == 0 {
		if existingData != nil {
			return directory.ErrCASFailed
		}
	} else {
		if existingData == nil {
			return directory.ErrCASFailed
		}
		var existing directory.Record
		if err := json.Unmarshal(existingData, &existing); err != nil {
			return err
		}
		if existing.Version != expectedVersion {
			return directory.ErrCASFailed
		}
	}
	return putInBucket(b, recordType, recordID, rec)
}

func (d *Directory) PutCAS(crewID, recordType, recordID string, expectedVersion uint64, rec *directory.Record) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(crewID))
		if err != nil {
			return err
		}
		return putCASInBucket(b, recordType, recordID, expectedVersion, rec)
	})
}

type boltBatchTx struct {
	bucket *bbolt.Bucket
}

func (tx *boltBatchTx) Put(recordType, recordID string, rec *directory.Record) error {
	return putInBucket(tx.bucket, recordType, recordID, rec)
}

func (tx *boltBatchTx) PutCAS(recordType, recordID string, expectedVersion uint64, rec *directory.Record) error {
	return putCASInBucket(tx.bucket, recordType, recordID, expectedVersion, rec)
}

func (tx *boltBatchTx) Delete(recordType, recordID string) error {
	return deleteInBucket(tx.bucket, recordType, recordID)
}

func (d *Directory) Batch(crewID string, fn func(tx directory.BatchTx) error) error {
	return d.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(crewID))
		if err != nil {
			return err
		}
		return fn(&boltBatchTx{bucket: b})
	})
}
