package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenManager issues and verifies the bearer tokens the boundary accepts.
// With an empty secret, auth is disabled and every request passes through.
type TokenManager struct {
	secret []byte
}

func NewTokenManager(secret []byte) *TokenManager {
	return &TokenManager{
		secret: secret,
	}
}

func (m *TokenManager) Issue(username string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": username,
		"nbf":      time.Now().Unix(),
	})

	return token.SignedString(m.secret)
}

func (m *TokenManager) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(jwtToken *jwt.Token) (interface{}, error) {
		if _, ok := jwtToken.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected method: %s", jwtToken.Header["alg"])
		}

		return m.secret, nil
	})

	if err != nil {
		return "", err
	}

	if !token.Valid {
		return "", errors.New("invalid token provided")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	username, ok := claims["username"].(string)
	if !ok || username == "" {
		return "", errors.New("token missing username")
	}

	return username, nil
}

// Middleware enforces bearer auth on the API routes. Login stays open so
// clients can obtain their first token.
func (m *TokenManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.secret) == 0 || strings.HasSuffix(r.URL.Path, "/auth/login") {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if _, err := m.Verify(strings.TrimPrefix(header, "Bearer ")); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
