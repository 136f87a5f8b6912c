package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of the session token the client cares about. The
// server verifies signatures; the client only reads claims to decide when a
// token is stale.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Inspect parses a session token without verifying its signature. The client
// has no key material; verification is the server's job.
func Inspect(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

// Expired reports whether the token's expiry has passed, with a small skew
// allowance. Tokens without an expiry never expire client-side.
func Expired(tokenString string, now time.Time) bool {
	claims, err := Inspect(tokenString)
	if err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return now.After(claims.ExpiresAt.Time.Add(-30 * time.Second))
}
