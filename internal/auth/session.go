package auth

import (
	"strings"
	"sync"

	"dialoguerec/internal/domain"
)

// Session holds the signed-in user and bearer token. It is created once at
// startup and passed to every client that talks to the dialogue service.
type Session struct {
	mu    sync.RWMutex
	user  *domain.User
	token string
}

func NewSession() *Session {
	return &Session{}
}

// Login replaces the current identity.
func (s *Session) Login(user domain.User, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &user
	s.token = strings.TrimSpace(token)
}

// Clear forgets the identity on logout.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.token = ""
}

// Token returns the bearer token, if any.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// User returns the signed-in user, if any.
func (s *Session) User() (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return domain.User{}, false
	}
	return *s.user, true
}

// Authenticated reports whether a token is present.
func (s *Session) Authenticated() bool {
	_, ok := s.Token()
	return ok
}
