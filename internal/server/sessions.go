package server

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hashvault/hashvault/internal/crypto"
)

// ErrUnknownConnection is returned when an encrypted message references a
// connection id that is not in the live set.
var ErrUnknownConnection = errors.New("unknown connection")

// Session is one established encrypted connection. Username is bound by
// get_seed; Verified flips after a successful prove_seed and gates the whole
// file-access surface.
type Session struct {
	ID          int
	Keys        *crypto.ChannelKeys
	Username    string
	LastMessage time.Time
	Verified    bool

	mu sync.Mutex
}

// Touch records message activity.
func (s *Session) Touch() {
	s.mu.Lock()
	s.LastMessage = time.Now()
	s.mu.Unlock()
}

// Bind associates a username with the session.
func (s *Session) Bind(username string) {
	s.mu.Lock()
	s.Username = username
	s.mu.Unlock()
}

// Verify marks the session as having proven seed knowledge.
func (s *Session) Verify() {
	s.mu.Lock()
	s.Verified = true
	s.mu.Unlock()
}

// State returns a consistent snapshot of the mutable fields.
func (s *Session) State() (username string, verified bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Username, s.Verified
}

// SessionStore owns the live connection table. All access goes through the
// store mutex; ids are small random integers collision-checked against the
// live set.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[int]*Session
}

const sessionIDSpace = 100000

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[int]*Session)}
}

// Add allocates an unused random id and registers a session for keys.
func (st *SessionStore) Add(keys *crypto.ChannelKeys) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	var id int
	for {
		id = rand.IntN(sessionIDSpace)
		if _, taken := st.sessions[id]; !taken {
			break
		}
	}
	sess := &Session{ID: id, Keys: keys, LastMessage: time.Now()}
	st.sessions[id] = sess
	return sess
}

// Get looks up a live session by id.
func (st *SessionStore) Get(id int) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[id]
	return sess, ok
}

// Len reports the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// ReapIdle drops sessions whose last message is older than maxAge and
// returns how many were removed. With maxAge <= 0 it does nothing, which is
// the historical behavior of never reaping.
func (st *SessionStore) ReapIdle(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)

	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, sess := range st.sessions {
		sess.mu.Lock()
		stale := sess.LastMessage.Before(cutoff)
		sess.mu.Unlock()
		if stale {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}
