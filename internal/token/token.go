// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package token issues and validates the HMAC-signed JWTs both transport
// ends share. A replica signs its own token with the shared key; the hub
// validates it and takes the subject claim as the client id, so no
// credential exchange round trip is needed.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenExpired is returned for structurally valid but expired tokens.
	ErrTokenExpired = errors.New("token is expired")

	// ErrInvalidToken covers every other validation failure.
	ErrInvalidToken = errors.New("invalid token")
)

// DefaultTTL bounds token lifetime when the service is built with ttl <= 0.
const DefaultTTL = 12 * time.Hour

// Service signs and parses client tokens with a shared HMAC key.
type Service struct {
	signKey []byte
	issuer  string
	ttl     time.Duration
}

// NewService builds a token service. signKey must match on both ends.
func NewService(signKey, issuer string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{signKey: []byte(signKey), issuer: issuer, ttl: ttl}
}

// Issue signs a token whose subject is clientID.
func (s *Service) Issue(clientID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   clientID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse validates tokenString and returns the client id it was issued for.
func (s *Service) Parse(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, t.Header["alg"])
		}
		return s.signKey, nil
	})
	if errors.Is(err, jwt.ErrTokenExpired) {
		return "", ErrTokenExpired
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return "", fmt.Errorf("%w: wrong issuer", ErrInvalidToken)
	}

	return claims.Subject, nil
}
