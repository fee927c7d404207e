package session

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
)

// Tokens signs and parses the bearer tokens handed out at sign-in. A token
// only names a session; whether it is still live is the gate's call.
type Tokens struct {
	secret []byte
	clock  clock.Clock
}

func NewTokens(secret string, c clock.Clock) *Tokens {
	if c == nil {
		c = clock.New()
	}
	return &Tokens{secret: []byte(secret), clock: c}
}

func (t *Tokens) Issue(s *Session) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:       s.ID,
		Subject:  s.ManagerID,
		IssuedAt: jwt.NewNumericDate(s.IssuedAt),
	}
	if !s.ExpiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(s.ExpiresAt)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse validates the signature and expiry and returns the session id.
func (t *Tokens) Parse(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.clock.Now))
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if claims.ID == "" {
		return "", fmt.Errorf("token has no session id")
	}
	return claims.ID, nil
}
