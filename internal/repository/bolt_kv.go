package repository

import (
	"bytes"
	"context"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var recordsBucket = []byte("records")

// BoltKV keeps records in a single bbolt bucket on local disk.
type BoltKV struct {
	db *bolt.DB
}

func OpenBoltKV(path string) (*BoltKV, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", recordsBucket, err)
	}

	return &BoltKV{db: db}, nil
}

func (s *BoltKV) Close() error {
	return s.db.Close()
}

func (s *BoltKV) Get(_ context.Context, key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(recordsBucket).Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		// Copy out; data is only valid inside the transaction.
		value = string(data)
		return nil
	})
	return value, err
}

func (s *BoltKV) Put(_ context.Context, key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Put([]byte(key), []byte(value))
	})
}

func (s *BoltKV) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).Delete([]byte(key))
	})
}

func (s *BoltKV) List(_ context.Context, cursor string, limit int) (*ListPage, error) {
	page := &ListPage{}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(recordsBucket).Cursor()

		var k []byte
		if cursor == "" {
			k, _ = c.First()
		} else {
			k, _ = c.Seek([]byte(cursor))
			if k != nil && bytes.Equal(k, []byte(cursor)) {
				k, _ = c.Next()
			}
		}

		for ; k != nil; k, _ = c.Next() {
			if limit > 0 && len(page.Keys) == limit {
				page.Cursor = page.Keys[len(page.Keys)-1]
				return nil
			}
			page.Keys = append(page.Keys, string(k))
		}
		page.Complete = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return page, nil
}
