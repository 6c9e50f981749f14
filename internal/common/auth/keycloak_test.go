package auth

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"vanu-marketplace/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fake Keycloak
// ==========================

type fakeKeycloak struct {
	tokensIssued  int32
	tokensRevoked int32
	existing      map[string]bool
	lastUser      User
}

func (f *fakeKeycloak) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/realms/vanu/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.Form.Get("grant_type") {
		case "client_credentials":
			atomic.AddInt32(&f.tokensIssued, 1)
			_ = json.NewEncoder(w).Encode(TokenResponse{AccessToken: "svc-token", ExpiresIn: 300})
		case "password":
			if r.Form.Get("password") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
				return
			}
			_ = json.NewEncoder(w).Encode(TokenResponse{AccessToken: "user-token", RefreshToken: "refresh", ExpiresIn: 300})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	mux.HandleFunc("/realms/vanu/protocol/openid-connect/revoke", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "svc-token", r.Form.Get("token"))
		atomic.AddInt32(&f.tokensRevoked, 1)
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/realms/vanu/protocol/openid-connect/token/introspect", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("token") != "user-token" {
			_, _ = w.Write([]byte(`{"active":false}`))
			return
		}
		_, _ = w.Write([]byte(`{"active":true,"sub":"u-1","email":"a@b.com","realm_access":{"roles":["admin"]}}`))
	})

	mux.HandleFunc("/admin/realms/vanu/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodPost:
			var u User
			require.NoError(t, json.NewDecoder(r.Body).Decode(&u))
			f.lastUser = u
			if f.existing[u.Email] {
				w.WriteHeader(http.StatusConflict)
				return
			}
			w.Header().Set("Location", "http://kc/admin/realms/vanu/users/new-id")
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			email := r.URL.Query().Get("email")
			if f.existing[email] {
				_ = json.NewEncoder(w).Encode([]User{{ID: "existing-id", Email: email}})
				return
			}
			_, _ = w.Write([]byte(`[]`))
		}
	})

	mux.HandleFunc("/admin/realms/vanu/users/new-id", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPut:
			var u User
			require.NoError(t, json.NewDecoder(r.Body).Decode(&u))
			f.lastUser = u
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	return mux
}

func newTestClient(t *testing.T) (*KeycloakClient, *fakeKeycloak) {
	t.Helper()
	fake := &fakeKeycloak{existing: map[string]bool{"taken@vanu.in": true}}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return NewKeycloakClient(srv.URL, "vanu", "svc", "svc-secret", ""), fake
}

// ==========================
// Tests
// ==========================

func TestIsolatedSession_CreateUserAndRelease(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	session, err := client.NewIsolatedSession(ctx)
	require.NoError(t, err)

	user, err := session.CreateUser(ctx, &User{Email: "new@vanu.in", Enabled: true}, "p4ss")
	require.NoError(t, err)
	assert.Equal(t, "new-id", user.ID)
	assert.Equal(t, "new@vanu.in", user.Username)
	require.Len(t, fake.lastUser.Credentials, 1)
	assert.Equal(t, "p4ss", fake.lastUser.Credentials[0].Value)
	assert.Empty(t, user.Credentials)

	require.NoError(t, session.Release(ctx))
	require.NoError(t, session.Release(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.tokensRevoked))
}

func TestCreateUser_ConflictIsDuplicateIdentity(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	session, err := client.NewIsolatedSession(ctx)
	require.NoError(t, err)
	defer session.Release(ctx)

	_, err = session.CreateUser(ctx, &User{Email: "taken@vanu.in"}, "x")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrDuplicateIdentity))
}

func TestSharedSession_ReusesTokenAndSkipsRevoke(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	s1, err := client.SharedSession(ctx)
	require.NoError(t, err)
	s2, err := client.SharedSession(ctx)
	require.NoError(t, err)

	require.NoError(t, s1.DeleteUser(ctx, "new-id"))
	require.NoError(t, s2.Release(ctx))

	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.tokensIssued))
	assert.Equal(t, int32(0), atomic.LoadInt32(&fake.tokensRevoked))
}

func TestGetUserByEmail(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()
	session, err := client.SharedSession(ctx)
	require.NoError(t, err)

	u, err := session.GetUserByEmail(ctx, "taken@vanu.in")
	require.NoError(t, err)
	assert.Equal(t, "existing-id", u.ID)

	_, err = session.GetUserByEmail(ctx, "nobody@vanu.in")
	assert.True(t, stderrors.Is(err, errors.ErrUserNotFound))
}

func TestSignIn(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	tok, err := client.SignIn(ctx, "a@b.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "user-token", tok.AccessToken)

	_, err = client.SignIn(ctx, "a@b.com", "wrong")
	assert.True(t, stderrors.Is(err, errors.ErrInvalidCredentials))
}

func TestValidateToken(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	info, err := client.ValidateToken(ctx, "user-token")
	require.NoError(t, err)
	assert.Equal(t, "u-1", info.Sub)
	assert.True(t, info.HasRole("admin"))
	assert.False(t, info.HasRole("stockist"))

	_, err = client.ValidateToken(ctx, "expired")
	assert.True(t, stderrors.Is(err, errors.ErrTokenInvalid))
}

func TestUpdateUser(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()
	session, err := client.SharedSession(ctx)
	require.NoError(t, err)

	require.NoError(t, session.UpdateUser(ctx, &User{ID: "new-id", FirstName: "Asha", LastName: "Devi", Enabled: true}))
	assert.Equal(t, "Asha", fake.lastUser.FirstName)

	err = session.UpdateUser(ctx, &User{ID: "ghost"})
	require.Error(t, err)
}
