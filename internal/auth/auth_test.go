package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"screen/internal/auth"
)

func newRequest(t *testing.T) *http.Request {
	t.Helper()
	return httptest.NewRequestWithContext(t.Context(), http.MethodGet, "http://example.com/api/v1/images", nil)
}

func TestBasicAuthEngine(t *testing.T) {
	t.Parallel()

	users := map[string]string{"alice@example.com": "hunter2"}
	e := auth.NewBasicAuthEngine(users)

	// Mutating the caller's map must not change who can log in.
	users["mallory@example.com"] = "x"

	tests := []struct {
		name   string
		user   string
		pass   string
		noAuth bool
		want   string
	}{
		{name: "valid", user: "alice@example.com", pass: "hunter2", want: "alice@example.com"},
		{name: "wrong password", user: "alice@example.com", pass: "hunter3"},
		{name: "unknown user", user: "mallory@example.com", pass: "x"},
		{name: "empty user", user: "", pass: ""},
		{name: "no header", noAuth: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := newRequest(t)
			if !tc.noAuth {
				req.SetBasicAuth(tc.user, tc.pass)
			}

			user, err := e.AuthenticateRequest(t.Context(), req)
			require.NoError(t, err)
			if tc.want == "" {
				require.Nil(t, user, "expected no user")
				return
			}
			require.NotNil(t, user, "expected a user")
			require.Equal(t, tc.want, user.ID)
		})
	}
}

func TestHeaderAuthEngine(t *testing.T) {
	t.Parallel()

	e := auth.NewHeaderAuthEngine("X-Forwarded-Email")

	req := newRequest(t)
	user, err := e.AuthenticateRequest(t.Context(), req)
	require.NoError(t, err)
	require.Nil(t, user, "missing header")

	req.Header.Set("X-Forwarded-Email", "  bob@example.com ")
	user, err = e.AuthenticateRequest(t.Context(), req)
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, "bob@example.com", user.ID)

	disabled := auth.NewHeaderAuthEngine("")
	user, err = disabled.AuthenticateRequest(t.Context(), req)
	require.NoError(t, err)
	require.Nil(t, user, "no header configured")
}

type failingEngine struct{}

var errEngine = errors.New("identity provider unavailable")

func (failingEngine) AuthenticateRequest(ctx context.Context, r *http.Request) (*auth.User, error) {
	return nil, errEngine
}

func TestCompoundAuthEngine(t *testing.T) {
	t.Parallel()

	e := auth.NewCompoundAuthEngine(
		failingEngine{},
		auth.NewHeaderAuthEngine("X-Forwarded-Email"),
		auth.NewBasicAuthEngine(map[string]string{"alice": "pw"}),
	)

	req := newRequest(t)
	req.SetBasicAuth("alice", "pw")
	user, err := e.AuthenticateRequest(t.Context(), req)
	require.NoError(t, err, "a later engine accepting hides earlier errors")
	require.Equal(t, "alice", user.ID)

	req = newRequest(t)
	req.Header.Set("X-Forwarded-Email", "carol@example.com")
	req.SetBasicAuth("alice", "pw")
	user, err = e.AuthenticateRequest(t.Context(), req)
	require.NoError(t, err)
	require.Equal(t, "carol@example.com", user.ID, "engines are tried in order")

	user, err = e.AuthenticateRequest(t.Context(), newRequest(t))
	require.ErrorIs(t, err, errEngine)
	require.Nil(t, user)

	user, err = auth.NewCompoundAuthEngine().AuthenticateRequest(t.Context(), newRequest(t))
	require.NoError(t, err)
	require.Nil(t, user, "no engines accept nobody")
}

func TestUserContext(t *testing.T) {
	t.Parallel()

	require.Nil(t, auth.UserFromContext(t.Context()))

	ctx := auth.WithUser(t.Context(), &auth.User{ID: "alice"})
	require.Equal(t, "alice", auth.UserFromContext(ctx).ID)
}
