// Package auth is the identity provider: accounts, session cookies and the
// check that binds a websocket handshake to a username.
package auth

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type account struct {
	hash      []byte
	createdAt time.Time
}

// UserStore keeps bcrypt hashed accounts in memory.
type UserStore struct {
	users map[string]account
	cost  int
	mutex sync.RWMutex
}

func NewUserStore() *UserStore {
	return &UserStore{
		users: make(map[string]account),
		cost:  bcrypt.DefaultCost,
	}
}

func (s *UserStore) Create(username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.users[username]; exists {
		return ErrUserExists
	}
	s.users[username] = account{hash: hash, createdAt: time.Now()}
	return nil
}

func (s *UserStore) Verify(username, password string) error {
	s.mutex.RLock()
	acc, exists := s.users[username]
	s.mutex.RUnlock()

	if !exists {
		return ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *UserStore) Exists(username string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, exists := s.users[username]
	return exists
}
