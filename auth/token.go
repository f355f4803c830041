package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid session token")

// SecretSize is the length of a generated signing key.
const SecretSize = 32

// Tokens signs and checks HS256 session tokens whose subject is the username.
// Revoked token ids are remembered until the token would have expired.
type Tokens struct {
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
	revoked map[string]time.Time
	mutex   sync.Mutex
}

// NewTokens signs with secret. An empty secret gets a random key, so tokens
// do not survive a restart.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, SecretSize)
		_, _ = rand.Read(key)
	}
	return &Tokens{
		secret:  key,
		ttl:     ttl,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
}

func (t *Tokens) Issue(username string) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse returns the username carried by a valid, unexpired, unrevoked token.
func (t *Tokens) Parse(token string) (string, error) {
	claims, err := t.claims(token)
	if err != nil {
		return "", err
	}

	t.mutex.Lock()
	_, revoked := t.revoked[claims.ID]
	t.mutex.Unlock()
	if revoked {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Revoke invalidates a token before its expiry. Invalid tokens are ignored.
func (t *Tokens) Revoke(token string) {
	claims, err := t.claims(token)
	if err != nil {
		return
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	now := t.now()
	for id, exp := range t.revoked {
		if !exp.After(now) {
			delete(t.revoked, id)
		}
	}
	t.revoked[claims.ID] = claims.ExpiresAt.Time
}

func (t *Tokens) claims(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
