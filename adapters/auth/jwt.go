// Package auth decodes subscriber access tokens. Token issuance lives in the
// external auth service; this side only verifies the signature and extracts
// the identity claims used for row visibility checks.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rowbase/rowbase/domain/realtime"
)

// Claims represents the JWT claims carried by a subscriber token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService provides stateless JWT verification.
// Thread-safe and suitable for concurrent use.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a token service around a shared HS256 secret.
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// Decode verifies a token and returns the subscriber identity. Tokens with
// an unexpected signing method, a bad signature, no subject, or an elapsed
// expiry are rejected.
func (s *TokenService) Decode(tokenString string) (realtime.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return realtime.Identity{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return realtime.Identity{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return realtime.Identity{}, errors.New("token has no subject")
	}

	role := claims.Role
	if role == "" {
		role = "authenticated"
	}
	return realtime.Identity{Subject: claims.Subject, Role: role}, nil
}

// Sign mints a token for the given identity. Used by tests and local
// tooling; production tokens come from the auth service.
func (s *TokenService) Sign(id realtime.Identity, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
