package kv

import (
	"fmt"

	"go.etcd.io/bbolt"
)

var bucketSession = []byte("session")

// SessionKV implements store.SessionStore on bbolt.
type SessionKV struct {
	db *bbolt.DB
}

// Open opens (and if needed creates) the session database at path.
func Open(path string) (*SessionKV, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &SessionKV{db: db}, nil
}

// Close releases the underlying store.
func (s *SessionKV) Close() error {
	return s.db.Close()
}

// Get returns the value for key, or empty when unset.
func (s *SessionKV) Get(key string) (string, error) {
	var out string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketSession).Get([]byte(key)); v != nil {
			out = string(v)
		}
		return nil
	})
	return out, err
}

// Set writes the value for key.
func (s *SessionKV) Set(key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Put([]byte(key), []byte(value))
	})
}

// Delete removes key.
func (s *SessionKV) Delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Delete([]byte(key))
	})
}
