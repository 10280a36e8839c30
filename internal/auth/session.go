package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/cache"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/respond"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/repo"
)

// UserStore is the part of the user repository the auth flows need.
type UserStore interface {
	Create(ctx context.Context, u *entity.User) error
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	SetConfirmed(ctx context.Context, email string) error
	SetPasswordHash(ctx context.Context, id int64, hash string) error
}

// UserCache is a read-through cache keyed by username. Get returns
// cache.ErrMiss when there is no entry.
type UserCache interface {
	Get(ctx context.Context, username string) (*entity.User, error)
	Set(ctx context.Context, u *entity.User) error
}

var (
	errNotAuthenticated = apperr.New(apperr.ErrUnauthenticated, "Could not validate credentials")
	errPermissionDenied = apperr.New(apperr.ErrForbidden, "Permission denied")
)

type ctxKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *entity.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the user stored by RequireUser.
func UserFromContext(ctx context.Context) (*entity.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*entity.User)
	return u, ok && u != nil
}

// BearerToken extracts the token of an "Authorization: Bearer <token>"
// header. The scheme is case-insensitive.
func BearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authenticator resolves the caller of a request from its bearer token.
type Authenticator struct {
	codec  *TokenCodec
	users  UserStore
	cache  UserCache
	logger *zap.SugaredLogger
}

func NewAuthenticator(codec *TokenCodec, users UserStore, c UserCache, logger *zap.SugaredLogger) *Authenticator {
	if c == nil {
		c = cache.Nop{}
	}
	return &Authenticator{codec: codec, users: users, cache: c, logger: logger}
}

// CurrentUser returns the user named by the request's access token.
func (a *Authenticator) CurrentUser(r *http.Request) (*entity.User, error) {
	token, ok := BearerToken(r)
	if !ok {
		return nil, errNotAuthenticated
	}
	return a.UserForToken(r.Context(), token)
}

// UserForToken verifies an access token and loads its subject, cache first.
// Confirmation and reset tokens are rejected.
func (a *Authenticator) UserForToken(ctx context.Context, token string) (*entity.User, error) {
	username, err := a.codec.SubjectFor(token, ScopeAccess)
	if err != nil {
		a.logger.Debugw("token rejected", "err", err)
		return nil, errNotAuthenticated
	}

	u, err := a.cache.Get(ctx, username)
	switch {
	case err == nil:
		return u, nil
	case !errors.Is(err, cache.ErrMiss):
		a.logger.Warnw("identity cache read failed", "username", username, "err", err)
	}

	u, err = a.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, errNotAuthenticated
		}
		return nil, err
	}
	if err := a.cache.Set(ctx, u); err != nil {
		a.logger.Warnw("identity cache write failed", "username", username, "err", err)
	}
	return u, nil
}

// CurrentAdminUser returns u if it holds the admin role.
func CurrentAdminUser(u *entity.User) (*entity.User, error) {
	if !u.IsAdmin() {
		return nil, errPermissionDenied
	}
	return u, nil
}

// RequireUser rejects requests without a valid bearer token and stores the
// resolved user in the request context.
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.CurrentUser(r)
		if err != nil {
			respond.Error(w, a.logger, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// RequireAdmin is RequireUser plus the admin role gate.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return a.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := UserFromContext(r.Context())
		if _, err := CurrentAdminUser(u); err != nil {
			respond.Error(w, a.logger, r, err)
			return
		}
		next.ServeHTTP(w, r)
	}))
}
