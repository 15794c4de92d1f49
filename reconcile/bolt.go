package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	unsettledBucket = "unsettled"
	boltName        = "reconcile.db"
)

// BoltQueue persists entries in a bbolt file so they survive restarts.
type BoltQueue struct {
	db *bolt.DB
}

// OpenBoltQueue opens (or creates) the queue file inside dir.
func OpenBoltQueue(dir string) (*BoltQueue, error) {
	if len(dir) == 0 {
		return nil, errors.New("reconcile db dir path can not be empty")
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(dir, boltName), 0660, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		if err == bolt.ErrTimeout {
			return nil, errors.New("cannot obtain reconcile db lock, database may be in use by another process")
		}
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(unsettledBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &BoltQueue{db: db}, nil
}

// Enqueue stores e, assigning an id and creation time when missing.
func (q *BoltQueue) Enqueue(_ context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return q.put(e)
}

// Update overwrites an existing entry.
func (q *BoltQueue) Update(e Entry) error {
	if e.ID == "" {
		return ErrNotExist
	}
	return q.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(unsettledBucket))
		if bkt.Get([]byte(e.ID)) == nil {
			return ErrNotExist
		}
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(e.ID), raw)
	})
}

func (q *BoltQueue) put(e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(unsettledBucket)).Put([]byte(e.ID), raw)
	})
}

// Pending returns every stored entry.
func (q *BoltQueue) Pending() ([]Entry, error) {
	entries := make([]Entry, 0)
	err := q.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(unsettledBucket)).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
	})
	return entries, err
}

// Get returns the entry with id.
func (q *BoltQueue) Get(id string) (Entry, error) {
	var e Entry
	err := q.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(unsettledBucket)).Get([]byte(id))
		if raw == nil {
			return ErrNotExist
		}
		return json.Unmarshal(raw, &e)
	})
	return e, err
}

// Ack removes a settled entry.
func (q *BoltQueue) Ack(id string) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(unsettledBucket)).Delete([]byte(id))
	})
}

func (q *BoltQueue) Close() error {
	return q.db.Close()
}
