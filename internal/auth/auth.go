package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Roles issued by the identity provider.
const (
	RolePassenger = "PASSENGER"
	RoleDriver    = "DRIVER"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingToken = errors.New("missing bearer token")
)

// Identity is what the dispatch core needs from a credential: an opaque
// subject id and a role. Issuing tokens is the identity provider's job; we
// only verify and extract.
type Identity struct {
	Subject string
	Role    string
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HMAC-signed bearer tokens.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Parse validates the token and returns the embedded identity.
func (v *Verifier) Parse(token string) (Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{Subject: c.Subject, Role: c.Role}, nil
}

// FromAuthorizationHeader extracts and verifies a "Bearer <token>" header.
func (v *Verifier) FromAuthorizationHeader(header string) (Identity, error) {
	const prefix = "Bearer "
	if header == "" || !strings.HasPrefix(header, prefix) {
		return Identity{}, ErrMissingToken
	}
	return v.Parse(strings.TrimPrefix(header, prefix))
}

// Sign issues a token for tests and local tooling; production tokens come
// from the identity provider with the same claim shape.
func (v *Verifier) Sign(identity Identity, ttl time.Duration) (string, error) {
	c := claims{
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}
