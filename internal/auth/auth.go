// Package auth protects the admin endpoints (ledger reset, breaker reset)
// with HTTP Basic auth over a bcrypt password hash.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidPassword = errors.New("invalid password")
)

type Authenticator struct {
	username     string
	passwordHash string
}

// NewAuthenticator takes the admin username and a bcrypt hash of the
// password, both from configuration.
func NewAuthenticator(username, passwordHash string) *Authenticator {
	return &Authenticator{username: username, passwordHash: passwordHash}
}

func (a *Authenticator) Authenticate(username, password string) error {
	if subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) != 1 {
		return ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// RequireAuth wraps a handler with Basic auth against the authenticator.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || a.Authenticate(username, password) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="inference-gateway admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
