package router

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/contact"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/respond"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/user"
)

// Querier runs the health probe; *sqlx.DB satisfies it.
type Querier interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// Deps are the handlers and shared services the routes are built from.
type Deps struct {
	Logger   *zap.SugaredLogger
	DB       Querier
	BasePath string

	Authn    *auth.Authenticator
	Auth     *auth.Handler
	Users    *user.Handler
	Contacts *contact.Handler
	// MeLimiter throttles GET /users/me; nil disables it.
	MeLimiter ratelimit.Limiter
}

// RegisterRoutes mounts every endpoint on a standard library http.ServeMux
// under d.BasePath and wraps the mux with the common middleware.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()
	base := strings.TrimRight(d.BasePath, "/")
	handle := func(pattern string, h http.Handler) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.Handle(method+" "+base+path, h)
	}
	authed := d.Authn.RequireUser
	admin := d.Authn.RequireAdmin

	handle("GET /healthchecker", healthHandler(d.DB, d.Logger))

	// auth
	handle("POST /auth/register", http.HandlerFunc(d.Auth.Register))
	handle("POST /auth/login", http.HandlerFunc(d.Auth.Login))
	handle("GET /auth/confirmed_email/{token}", http.HandlerFunc(d.Auth.ConfirmEmail))
	handle("POST /auth/request_email", http.HandlerFunc(d.Auth.RequestEmail))
	handle("POST /auth/reset_password", http.HandlerFunc(d.Auth.ResetPassword))
	handle("GET /auth/confirm_reset_password/{token}", http.HandlerFunc(d.Auth.ConfirmResetPassword))

	// users
	me := authed(http.HandlerFunc(d.Users.Me))
	if d.MeLimiter != nil {
		me = ratelimit.Middleware(d.MeLimiter, d.Logger)(me)
	}
	handle("GET /users/me", me)
	handle("PATCH /users/avatar", admin(http.HandlerFunc(d.Users.UpdateAvatar)))

	// contacts
	handle("GET /contacts", authed(http.HandlerFunc(d.Contacts.List)))
	handle("POST /contacts", authed(http.HandlerFunc(d.Contacts.Create)))
	handle("GET /contacts/birthdays", authed(http.HandlerFunc(d.Contacts.Birthdays)))
	handle("GET /contacts/{id}", authed(http.HandlerFunc(d.Contacts.Get)))
	handle("PUT /contacts/{id}", authed(http.HandlerFunc(d.Contacts.Update)))
	handle("DELETE /contacts/{id}", authed(http.HandlerFunc(d.Contacts.Delete)))

	// outermost first: request id, logging, recovery, security headers
	return RequestIDMiddleware()(
		LoggingMiddleware(d.Logger)(
			RecoveryMiddleware(d.Logger)(
				SecurityHeadersMiddleware()(mux))))
}

func healthHandler(db Querier, logger *zap.SugaredLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var one int
		if err := db.GetContext(r.Context(), &one, "SELECT 1"); err != nil || one != 1 {
			logger.Errorw("health check failed", "err", err)
			respond.Detail(w, http.StatusInternalServerError, "Error connecting to the database")
			return
		}
		respond.Message(w, "Welcome to the contacts API!")
	})
}
