// Package auth provides HTTP basic authentication for the admin API.
// The configured password is bcrypt-hashed at startup and compared in
// constant time on every request.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// ErrNotConfigured indicates admin credentials are missing.
var ErrNotConfigured = errors.New("admin username and password must be configured")

// Authenticator verifies admin basic-auth credentials.
type Authenticator struct {
	username string
	hash     []byte
}

// New hashes the configured password and returns an authenticator.
func New(username, password string) (*Authenticator, error) {
	if username == "" || password == "" {
		return nil, ErrNotConfigured
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &Authenticator{username: username, hash: hash}, nil
}

// Verify reports whether the given credentials match.
func (a *Authenticator) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(a.username), []byte(username)) == 1
	passOK := bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
	return userOK && passOK
}

// Middleware rejects requests without valid basic-auth credentials.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || !a.Verify(username, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
