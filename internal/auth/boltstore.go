package auth

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
)

var bucketUsers = []byte("users")

// BoltUserStore persists user records in a bolt bucket keyed by username.
type BoltUserStore struct {
	db *bolt.DB
}

// OpenBoltUserStore opens (creating if needed) the user database at path.
func OpenBoltUserStore(path string) (*BoltUserStore, error) {
	db, err := bolt.Open(filepath.Clean(path), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(bucketUsers)
		return e
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltUserStore{db: db}, nil
}

func (s *BoltUserStore) Get(username string) (*User, bool, error) {
	var user *User
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketUsers).Get([]byte(username))
		if v == nil {
			return nil
		}
		var u User
		if err := json.Unmarshal(v, &u); err != nil {
			return err
		}
		user = &u
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return user, user != nil, nil
}

func (s *BoltUserStore) Put(user *User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		v, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketUsers).Put([]byte(user.Username), v)
	})
}

func (s *BoltUserStore) Close() error { return s.db.Close() }
