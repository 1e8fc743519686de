// Package auth verifies the caller's bearer credential and carries the
// resulting identity through the request context. Every downstream operation
// receives the identity explicitly; nothing reads tokens from ambient state.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dterzis/voicegate/internal/fault"
)

// Identity is the authenticated caller extracted from a bearer token.
type Identity struct {
	UserID string
	Token  string
}

// Verifier validates HS256 bearer tokens issued by the auth collaborator.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a raw bearer token and returns the identity.
// The subject claim carries the user ID.
func (v *Verifier) Verify(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, fault.New(fault.CodeAuthenticationRequired, "missing bearer token")
	}

	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fault.New(fault.CodeAuthenticationRequired, "unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, fault.Wrap(fault.CodeAuthenticationRequired, "invalid credential", err)
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, fault.New(fault.CodeAuthenticationRequired, "invalid credential")
	}

	return Identity{UserID: claims.Subject, Token: raw}, nil
}

// Sign mints a bearer token for a user ID. Used by tests and local tooling;
// production tokens come from the auth collaborator with the same secret.
func (v *Verifier) Sign(userID string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
