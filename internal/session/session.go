// Package session tracks authenticated principals between commands. Tokens
// are opaque and random; all session state lives in memory, so restarting the
// server logs everyone out.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes which principal class a session authenticates.
type Kind int

const (
	KindUser Kind = iota
	KindAdmin
)

func (k Kind) String() string {
	if k == KindAdmin {
		return "admin"
	}
	return "user"
}

// Session is an immutable snapshot of one authenticated principal.
type Session struct {
	Token       string
	Kind        Kind
	PrincipalID uuid.UUID
	Created     time.Time
	LastSeen    time.Time
}

// Store holds live sessions and expires them after a period of inactivity.
type Store struct {
	mu       sync.Mutex
	sessions map[string]Session

	ttl time.Duration
	now func() time.Time
}

// NewStore creates a session store. Sessions idle longer than ttl are
// dropped; a zero ttl disables expiry.
func NewStore(ttl time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		sessions: make(map[string]Session),
		ttl:      ttl,
		now:      now,
	}
}

// Create opens a session for the principal and returns its snapshot.
func (s *Store) Create(kind Kind, principalID uuid.UUID) (Session, error) {
	token, err := generateToken()
	if err != nil {
		return Session{}, fmt.Errorf("generate session token: %w", err)
	}

	now := s.now()
	sess := Session{
		Token:       token,
		Kind:        kind,
		PrincipalID: principalID,
		Created:     now,
		LastSeen:    now,
	}

	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()
	return sess, nil
}

// Find resolves a token, refreshing its inactivity window. Expired sessions
// are removed and reported as absent.
func (s *Store) Find(token string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return Session{}, false
	}

	now := s.now()
	if s.ttl > 0 && now.Sub(sess.LastSeen) > s.ttl {
		delete(s.sessions, token)
		return Session{}, false
	}

	sess.LastSeen = now
	s.sessions[token] = sess
	return sess, true
}

// Sweep removes every session idle past the ttl and returns their tokens,
// so callers can release per-session state for tokens that never come back.
func (s *Store) Sweep() []string {
	if s.ttl <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []string
	for token, sess := range s.sessions {
		if now.Sub(sess.LastSeen) > s.ttl {
			delete(s.sessions, token)
			expired = append(expired, token)
		}
	}
	return expired
}

// Delete ends one session. Ending an absent session is a no-op.
func (s *Store) Delete(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// DeleteForPrincipal ends every session the principal holds and returns the
// tokens that were dropped, so callers can release per-session state.
func (s *Store) DeleteForPrincipal(principalID uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped []string
	for token, sess := range s.sessions {
		if sess.PrincipalID == principalID {
			delete(s.sessions, token)
			dropped = append(dropped, token)
		}
	}
	return dropped
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
