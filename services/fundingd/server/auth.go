package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
)

// Authenticator verifies requests to the privileged tick endpoint. The token
// is accepted either as a bearer Authorization header or as a `token` query
// parameter so simple external schedulers can trigger passes without header
// support.
type Authenticator struct {
	token string
}

// NewAuthenticator constructs an authenticator for the given shared token.
func NewAuthenticator(token string) (*Authenticator, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("bearer token must be configured")
	}
	return &Authenticator{token: token}, nil
}

// Middleware rejects unauthenticated requests with 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil || !a.authenticate(r) {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) authenticate(r *http.Request) bool {
	candidate := ""
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		candidate = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if candidate == "" {
		candidate = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(a.token)) == 1
}
