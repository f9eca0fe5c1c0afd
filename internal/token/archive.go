package token

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var archiveBucket = []byte("tokens")

// Archive is the durable record of issued tokens. Entries hold token
// metadata and content hashes, never plaintext values, and outlive
// removal from the in-memory lookup index.
type Archive struct {
	db *bolt.DB
}

// OpenArchive opens or creates the archive database at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open token archive: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(archiveBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize token archive: %w", err)
	}

	return &Archive{db: db}, nil
}

// Put writes or overwrites the archived record for a token.
func (a *Archive) Put(info *Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal archived token: %w", err)
	}

	return a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(archiveBucket).Put([]byte(info.ID), data)
	})
}

// Get returns the archived record for a token id, or nil when absent.
func (a *Archive) Get(id string) (*Info, error) {
	var info *Info
	err := a.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(archiveBucket).Get([]byte(id))
		if data == nil {
			return nil
		}
		info = &Info{}
		return json.Unmarshal(data, info)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read archived token: %w", err)
	}
	return info, nil
}

// Count returns the number of archived tokens.
func (a *Archive) Count() (int, error) {
	var count int
	err := a.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(archiveBucket).Stats().KeyN
		return nil
	})
	return count, err
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
