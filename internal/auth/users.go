package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

const seedSize = 64

// User is the server-side account record. HashedSeed is empty until the
// first successful prove_seed, after which it is fixed permanently
// (trust-on-first-use).
type User struct {
	Username   string `json:"username"`
	Seed       string `json:"seed"`
	HashedSeed string `json:"hashedSeed,omitempty"`
	LastOnline int64  `json:"lastOnline"`
}

// UserStore is the durable key-value store the protocol core calls into.
type UserStore interface {
	// Get returns the user record, or ok=false when the username is unknown.
	Get(username string) (*User, bool, error)
	// Put creates or replaces a user record.
	Put(user *User) error
	Close() error
}

// NewUser creates a record with a fresh random 64-byte seed.
func NewUser(username string) (*User, error) {
	seed := make([]byte, seedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to generate seed: %w", err)
	}
	return &User{
		Username:   username,
		Seed:       base64.StdEncoding.EncodeToString(seed),
		LastOnline: time.Now().UnixMilli(),
	}, nil
}

// MemUserStore is an in-memory UserStore for tests and ephemeral servers.
type MemUserStore struct {
	mu    sync.Mutex
	users map[string]*User
}

func NewMemUserStore() *MemUserStore {
	return &MemUserStore{users: make(map[string]*User)}
}

func (s *MemUserStore) Get(username string) (*User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, false, nil
	}
	cp := *u
	return &cp, true, nil
}

func (s *MemUserStore) Put(user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[user.Username] = &cp
	return nil
}

func (s *MemUserStore) Close() error { return nil }
