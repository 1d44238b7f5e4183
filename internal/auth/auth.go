// Package auth checks the shared token that guards mutating admin routes.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates a presented token.
type Validator interface {
	Validate(token string) error
}

// Token accepts exactly one shared secret. The empty Token accepts nothing.
type Token string

func (s Token) Validate(token string) error {
	if s == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Open accepts any token. It is what an admin server without a configured
// secret runs with; such a server should only listen on loopback.
type Open struct{}

func (Open) Validate(string) error { return nil }

// FromSecret returns Open for an empty secret and Token otherwise.
func FromSecret(secret string) Validator {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return Open{}
	}
	return Token(secret)
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
