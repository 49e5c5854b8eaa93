// internal/auth/auth.go
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	nanoid "github.com/matoous/go-nanoid/v2"
)

// GuestID is the identity used when no secret is configured.
const GuestID = "guest"

// DefaultTokenTTL is the lifetime of tokens minted by IssueToken.
const DefaultTokenTTL = 24 * time.Hour

var (
	ErrMissingToken   = errors.New("missing bearer token")
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token has expired")
	ErrSecretTooShort = errors.New("auth secret must be at least 32 bytes")
)

// Identity is the verified caller.
type Identity struct {
	Subject       string
	Name          string
	Authenticated bool
}

// Claims are the registered claims plus an optional display name.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 bearer tokens. A Verifier without a secret runs in
// guest mode.
type Verifier struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewVerifier builds a Verifier. An empty secret enables guest mode; a
// non-empty one must be at least 32 bytes.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if secret != "" && len(secret) < 32 {
		return nil, ErrSecretTooShort
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, ttl: DefaultTokenTTL}, nil
}

// Required reports whether tokens are checked.
func (v *Verifier) Required() bool {
	return v != nil && len(v.secret) > 0
}

// Verify validates token and returns the caller. In guest mode every call,
// with or without a token, returns the guest identity.
func (v *Verifier) Verify(token string) (Identity, error) {
	if !v.Required() {
		return Identity{Subject: GuestID}, nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return Identity{}, ErrInvalidToken
	}
	return Identity{Subject: claims.Subject, Name: claims.Name, Authenticated: true}, nil
}

// IssueToken mints a token for subject. Used by the dev CLI and tests.
func (v *Verifier) IssueToken(subject, name string) (string, error) {
	if !v.Required() {
		return "", ErrSecretTooShort
	}
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("subject is required")
	}
	id, err := nanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	now := time.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
			ID:        id,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
