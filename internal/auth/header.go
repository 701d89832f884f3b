package auth

import (
	"context"
	"net/http"
	"strings"
)

// HeaderAuthEngine trusts an identity header injected by an authenticating
// reverse proxy (for example oauth2-proxy's X-Forwarded-Email). Only deploy
// it behind a proxy that strips the header from client requests.
type HeaderAuthEngine struct {
	Header string
}

func NewHeaderAuthEngine(header string) *HeaderAuthEngine {
	return &HeaderAuthEngine{Header: header}
}

func (e *HeaderAuthEngine) AuthenticateRequest(ctx context.Context, r *http.Request) (*User, error) {
	if e.Header == "" {
		return nil, nil
	}

	id := strings.TrimSpace(r.Header.Get(e.Header))
	if id == "" {
		return nil, nil
	}

	return &User{ID: id}, nil
}
