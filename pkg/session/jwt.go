package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"bookmarket/pkg/domain"
)

const (
	defaultIssuer   = "bookmarket-api"
	defaultAudience = "bookmarket-clients"
	defaultTTL      = 30 * time.Minute
	defaultLeeway   = 30 * time.Second
)

var (
	// ErrExpired is returned for tokens past their expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalid is returned for malformed tokens or bad signatures.
	ErrInvalid = errors.New("invalid token")
)

// Options configures token claims and validation behavior.
type Options struct {
	Issuer   string
	Audience string
	TTL      time.Duration
	Leeway   time.Duration
}

// Manager issues and validates stateless HS256 bearer tokens binding an
// account identity to its role. There is no revocation; tokens are valid
// until expiry.
type Manager struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	leeway   time.Duration
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewManager builds a token manager. The signing secret is supplied by
// configuration at process start.
func NewManager(secret string, opts Options) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session: signing secret is required")
	}
	m := &Manager{
		secret:   []byte(secret),
		issuer:   opts.Issuer,
		audience: opts.Audience,
		ttl:      opts.TTL,
		leeway:   opts.Leeway,
	}
	if m.issuer == "" {
		m.issuer = defaultIssuer
	}
	if m.audience == "" {
		m.audience = defaultAudience
	}
	if m.ttl <= 0 {
		m.ttl = defaultTTL
	}
	if m.leeway <= 0 {
		m.leeway = defaultLeeway
	}
	return m, nil
}

// Issue creates a signed token carrying the account ID and role with an
// absolute expiry.
func (m *Manager) Issue(accountID string, role domain.Role) (string, error) {
	now := time.Now().UTC()
	c := claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature, issuer, audience and expiry, and returns
// the bound account ID and role.
func (m *Manager) Validate(token string) (string, domain.Role, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithLeeway(m.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", ErrExpired
		}
		return "", "", ErrInvalid
	}
	if !parsed.Valid || c.Subject == "" {
		return "", "", ErrInvalid
	}
	role, ok := domain.ParseRole(c.Role)
	if !ok {
		return "", "", ErrInvalid
	}
	return c.Subject, role, nil
}
