package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what can be read out of a bearer token without the server's key.
type Claims struct {
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp claim
}

// Expired reports whether the token's exp claim lies before now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// ParseClaims decodes a JWT without verifying its signature. The result is
// for display only; the server decides whether the token is valid. Opaque
// (non-JWT) tokens return an error.
func ParseClaims(token string) (Claims, error) {
	var registered jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &registered); err != nil {
		return Claims{}, fmt.Errorf("session: token is not a readable JWT: %w", err)
	}

	claims := Claims{Subject: registered.Subject}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	return claims, nil
}
