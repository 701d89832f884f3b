package auth

import (
	"context"
	"crypto/subtle"
	"maps"
	"net/http"
)

type BasicAuthEngine struct {
	users map[string]string
}

// NewBasicAuthEngine creates a BasicAuthEngine accepting the given user id to
// password pairs.
func NewBasicAuthEngine(users map[string]string) *BasicAuthEngine {
	return &BasicAuthEngine{users: maps.Clone(users)}
}

// AuthenticateRequest checks the Authorization header for valid Basic Auth
// credentials. It returns a User object if the credentials are valid, nil otherwise.
func (e *BasicAuthEngine) AuthenticateRequest(ctx context.Context, r *http.Request) (*User, error) {
	id, pass, ok := r.BasicAuth()
	if !ok || id == "" {
		return nil, nil
	}

	want, known := e.users[id]
	if !known {
		return nil, nil
	}

	if subtle.ConstantTimeCompare([]byte(pass), []byte(want)) != 1 {
		return nil, nil
	}

	return &User{ID: id}, nil
}
