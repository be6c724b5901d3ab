// Package identity issues and verifies principal tokens. Full account
// authentication (email/password, OAuth) lives outside this service; the
// quiz core only needs a stable caller identity, which anonymous players
// obtain as a signed guest token and hosts bring from the external auth
// system in the same token format.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Principal kinds.
const (
	KindGuest = "guest"
	KindHost  = "host"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Principal is the resolved caller identity.
type Principal struct {
	ID   string
	Kind string
}

// IsAnonymous reports whether the principal is a guest player.
func (p Principal) IsAnonymous() bool {
	return p.Kind == KindGuest
}

// Claims carried by a principal token.
type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// TokenConfig holds signing configuration.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration // default: 24h
	Issuer string
}

// Manager signs and verifies principal tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewManager creates a token manager.
func NewManager(cfg TokenConfig) *Manager {
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "top-game-score"
	}
	return &Manager{
		secret: cfg.Secret,
		ttl:    cfg.TTL,
		issuer: cfg.Issuer,
	}
}

// IssueGuest mints a fresh anonymous principal with a generated id.
func (m *Manager) IssueGuest() (Principal, string, error) {
	p := Principal{ID: uuid.NewString(), Kind: KindGuest}
	token, err := m.sign(p)
	return p, token, err
}

// Issue mints a token for an existing principal (e.g. a host identity the
// external auth system resolved).
func (m *Manager) Issue(p Principal) (string, error) {
	return m.sign(p)
}

// Verify parses and validates a token, returning the principal.
func (m *Manager) Verify(token string) (Principal, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrExpiredToken
		}
		return Principal{}, ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	kind := claims.Kind
	if kind == "" {
		kind = KindGuest
	}
	return Principal{ID: claims.Subject, Kind: kind}, nil
}

func (m *Manager) sign(p Principal) (string, error) {
	now := time.Now()
	claims := Claims{
		Kind: p.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}
