// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/token"
)

type ctxKey string

// clientIDCtxKey carries the authenticated client id through the request
// context.
const clientIDCtxKey ctxKey = "client_id"

// auth enforces bearer-token authentication. The token's subject claim is
// the client id; handlers read it via clientIDFromContext and reject
// requests whose body names a different client.
func (h *Handler) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromRequest(r)

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.Err(ErrEmptyAuthorizationHeader).Send()
			http.Error(w, ErrEmptyAuthorizationHeader.Error(), http.StatusUnauthorized)
			return
		}

		tokenString, err := getTokenFromAuthHeader(authHeader)
		if err != nil {
			log.Err(err).Send()
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		clientID, err := h.tokens.Parse(tokenString)
		if err != nil {
			switch {
			case errors.Is(err, token.ErrTokenExpired):
				log.Err(err).Msg("token expired")
				http.Error(w, token.ErrTokenExpired.Error(), http.StatusUnauthorized)
			default:
				log.Err(err).Msg("error occurred during parsing token")
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			}
			return
		}

		ctx := context.WithValue(r.Context(), clientIDCtxKey, clientID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIDFromContext returns the authenticated client id, empty when the
// request skipped the auth middleware.
func clientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDCtxKey).(string)
	return id
}

// getTokenFromAuthHeader extracts the bearer token from a raw
// "Authorization" header value of the form "<scheme> <token>".
func getTokenFromAuthHeader(authHeader string) (string, error) {
	parts := strings.Split(authHeader, " ")
	if len(parts) < 2 {
		return "", ErrInvalidAuthorizationHeader
	}

	tokenString := parts[1]
	if tokenString == "" {
		return "", ErrEmptyToken
	}

	return tokenString, nil
}
