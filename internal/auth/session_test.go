package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/entity"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"BEARER  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, ok := BearerToken(r)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func authedRequest(t *testing.T, f *fixture, username string) *http.Request {
	t.Helper()
	tok, err := f.codec.IssueFor(ScopeAccess, map[string]any{"sub": username}, 0)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	return r
}

func TestCurrentUserPopulatesCache(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice", "alice@x.com", "pw1234")

	u, err := f.authn.CurrentUser(authedRequest(t, f, "alice"))
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	require.Contains(t, f.cache.entries, "alice")

	lookups := f.store.lookups
	_, err = f.authn.CurrentUser(authedRequest(t, f, "alice"))
	require.NoError(t, err)
	assert.Equal(t, lookups, f.store.lookups, "cache hit skips the store")
}

func TestCurrentUserCacheFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice", "alice@x.com", "pw1234")
	core, logs := observer.New(zap.WarnLevel)
	f.authn.logger = zap.New(core).Sugar()
	f.cache.err = errBoom

	u, err := f.authn.CurrentUser(authedRequest(t, f, "alice"))
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, 1, logs.FilterMessage("identity cache read failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("identity cache write failed").Len())
}

func TestCurrentUserRejects(t *testing.T) {
	f := newFixture(t)

	_, err := f.authn.CurrentUser(httptest.NewRequest(http.MethodGet, "/", nil))
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = f.authn.CurrentUser(authedRequest(t, f, "ghost"))
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer nope")
	_, err = f.authn.CurrentUser(r)
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
	assert.Equal(t, "Could not validate credentials", apperr.Detail(err))
}

func TestCurrentAdminUser(t *testing.T) {
	_, err := CurrentAdminUser(&entity.User{Role: entity.RoleUser})
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = CurrentAdminUser(nil)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	u, err := CurrentAdminUser(&entity.User{Role: entity.RoleAdmin})
	require.NoError(t, err)
	assert.True(t, u.IsAdmin())
}

func TestRequireUserMiddleware(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice", "alice@x.com", "pw1234")

	var seen *entity.User
	h := f.authn.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, f, "alice"))
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "alice", seen.Username)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.JSONEq(t, `{"detail":"Could not validate credentials"}`, rec.Body.String())
}

func TestRequireAdminMiddleware(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice", "alice@x.com", "pw1234")
	register(t, f, "root", "root@x.com", "pw1234")
	f.store.mu.Lock()
	for _, u := range f.store.users {
		if u.Username == "root" {
			u.Role = entity.RoleAdmin
		}
	}
	f.store.mu.Unlock()

	called := false
	h := f.authn.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, f, "alice"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"detail":"Permission denied"}`, rec.Body.String())
	assert.False(t, called)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, f, "root"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestUserForTokenAcceptsOnlyAccessTokens(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice", "alice@x.com", "pw1234")

	access, err := f.codec.IssueFor(ScopeAccess, map[string]any{"sub": "alice"}, 0)
	require.NoError(t, err)
	u, err := f.authn.UserForToken(ctx, access)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	confirm, err := f.codec.IssueFor(ScopeEmailConfirm, map[string]any{"sub": "alice"}, EmailTokenTTL)
	require.NoError(t, err)
	reset, err := f.codec.IssueFor(ScopePasswordReset, map[string]any{"sub": "alice", "password": "h"}, EmailTokenTTL)
	require.NoError(t, err)
	unscoped, err := f.codec.Issue(map[string]any{"sub": "alice"}, 0)
	require.NoError(t, err)

	for name, tok := range map[string]string{"confirm": confirm, "reset": reset, "unscoped": unscoped} {
		_, err := f.authn.UserForToken(ctx, tok)
		require.ErrorIs(t, err, apperr.ErrUnauthenticated, name)
	}
}
