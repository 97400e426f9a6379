package token

import (
	"errors"
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// ErrNoToken is returned when an operation needs a token and none is stored.
var ErrNoToken = errors.New("not logged in")

// Source yields the current bearer token, empty when there is none.
type Source interface {
	Token() (string, error)
}

// Store is a Source that can be updated.
type Store interface {
	Source
	SetToken(token string) error
	Clear() error
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the token for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (m *MemoryStore) Token() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *MemoryStore) SetToken(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryStore) Clear() error {
	return m.SetToken("")
}

// Claims are the parts of the session token the client cares about.
type Claims struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token has an expiry before now.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// ParseClaims decodes a JWT without verifying its signature, the server
// does that.
func ParseClaims(token string) (*Claims, error) {
	parser := gojwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	mapClaims := parsed.Claims.(gojwt.MapClaims)
	claims := &Claims{}

	for _, name := range []string{"userId", "user_id", "sub"} {
		if v, ok := mapClaims[name].(string); ok && v != "" {
			claims.UserID = v
			break
		}
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}

	return claims, nil
}

// Bearer returns the token to attach to a request: the stored token unless
// it is a JWT that has expired. Opaque tokens are attached as they are.
func Bearer(src Source) (string, error) {
	if src == nil {
		return "", nil
	}

	token, err := src.Token()
	if err != nil || token == "" {
		return "", err
	}

	if claims, err := ParseClaims(token); err == nil && claims.Expired(time.Now()) {
		logrus.Warnf("stored token for user %s expired at %s", claims.UserID, claims.ExpiresAt.Format(time.RFC3339))
		return "", nil
	}

	return token, nil
}
