package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/mail"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/upload"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/repo"
)

// EmailTokenTTL bounds confirmation and reset tokens.
const EmailTokenTTL = 7 * 24 * time.Hour

const (
	msgEmailConfirmed    = "Email confirmed"
	msgAlreadyConfirmed  = "Your email is already confirmed"
	msgCheckEmail        = "Check your email for confirmation"
	msgPasswordChanged   = "Password successfully changed"
	subjectConfirmEmail  = "Confirm your email"
	subjectResetPassword = "Important: Update your account information"
)

var (
	errBadLogin       = apperr.New(apperr.ErrUnauthenticated, "Incorrect login or password")
	errNotConfirmed   = apperr.New(apperr.ErrUnauthenticated, "Email not confirmed")
	errEmailTaken     = apperr.New(apperr.ErrConflict, "A user with this email already exists")
	errUsernameTaken  = apperr.New(apperr.ErrConflict, "A user with this username already exists")
	errConfirmation   = apperr.New(apperr.ErrBadRequest, "Confirmation error")
	errInvalidToken   = apperr.New(apperr.ErrBadRequest, "Invalid or expired token")
	errResetNotActive = apperr.New(apperr.ErrBadRequest, "Your email is not confirmed")
	errResetNoUser    = apperr.New(apperr.ErrNotFound, "User with this email not found")
	errBadForm        = apperr.New(apperr.ErrBadRequest, "invalid form")
)

// Mailer queues a message for background delivery.
type Mailer interface {
	Dispatch(msg mail.Message)
}

// Service implements registration, login, email confirmation and password
// reset.
type Service struct {
	users  UserStore
	hasher PasswordHasher
	codec  *TokenCodec
	mailer Mailer
	// baseURL is the public URL of the API root, used in mailed links.
	baseURL string
	logger  *zap.SugaredLogger
}

func NewService(users UserStore, hasher PasswordHasher, codec *TokenCodec, mailer Mailer, baseURL string, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	return &Service{
		users:   users,
		hasher:  hasher,
		codec:   codec,
		mailer:  mailer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Register creates an unconfirmed user and mails a confirmation link.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.User, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	avatar := upload.GravatarURL(in.Email)
	u := &entity.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         entity.RoleUser,
		Avatar:       &avatar,
	}
	if err := s.users.Create(ctx, u); err != nil {
		switch {
		case errors.Is(err, userrepo.ErrEmailTaken):
			return nil, errEmailTaken
		case errors.Is(err, userrepo.ErrUsernameTaken):
			return nil, errUsernameTaken
		}
		return nil, err
	}
	s.logger.Infow("user registered", "user_id", u.ID, "username", u.Username)
	s.sendConfirmation(u)
	return u, nil
}

// Login checks credentials and returns an access token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return "", errBadLogin
		}
		return "", err
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return "", errBadLogin
	}
	if !u.Confirmed {
		return "", errNotConfirmed
	}
	if s.hasher.NeedsRehash(u.PasswordHash) {
		s.rehash(ctx, u, password)
	}
	token, err := s.codec.IssueFor(ScopeAccess, map[string]any{"sub": u.Username}, 0)
	if err != nil {
		return "", fmt.Errorf("issue access token: %w", err)
	}
	return token, nil
}

// rehash upgrades a hash made with an outdated cost. Failure does not fail
// the login.
func (s *Service) rehash(ctx context.Context, u *entity.User, password string) {
	h, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.SetPasswordHash(ctx, u.ID, h)
	}
	if err != nil {
		s.logger.Warnw("password rehash failed", "user_id", u.ID, "err", err)
	}
}

// ConfirmEmail marks the token's email as confirmed. Confirming twice is not
// an error and writes nothing.
func (s *Service) ConfirmEmail(ctx context.Context, token string) (string, error) {
	email, err := s.codec.SubjectFor(token, ScopeEmailConfirm)
	if err != nil {
		return "", errInvalidToken
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return "", errConfirmation
		}
		return "", err
	}
	if u.Confirmed {
		return msgAlreadyConfirmed, nil
	}
	if err := s.users.SetConfirmed(ctx, email); err != nil {
		return "", err
	}
	return msgEmailConfirmed, nil
}

// RequestEmail re-sends the confirmation link. Unknown addresses get the
// same answer as known unconfirmed ones.
func (s *Service) RequestEmail(ctx context.Context, email string) (string, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return msgCheckEmail, nil
		}
		return "", err
	}
	if u.Confirmed {
		return msgAlreadyConfirmed, nil
	}
	s.sendConfirmation(u)
	return msgCheckEmail, nil
}

// RequestPasswordReset mails a link whose token carries the hash of the new
// password. Nothing is stored until the link is followed.
func (s *Service) RequestPasswordReset(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return msgCheckEmail, nil
		}
		return "", err
	}
	if !u.Confirmed {
		return "", errResetNotActive
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	token, err := s.codec.IssueFor(ScopePasswordReset, map[string]any{"sub": u.Email, "password": hash}, EmailTokenTTL)
	if err != nil {
		return "", fmt.Errorf("issue reset token: %w", err)
	}
	s.mailer.Dispatch(mail.Message{
		To:       u.Email,
		Subject:  subjectResetPassword,
		Template: mail.TemplateResetPassword,
		Data: map[string]any{
			"reset_link": s.baseURL + "/auth/confirm_reset_password/" + token,
			"username":   u.Username,
		},
	})
	return msgCheckEmail, nil
}

// ConfirmPasswordReset stores the hash carried by a reset token.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token string) (string, error) {
	claims, err := s.codec.VerifyFor(token, ScopePasswordReset)
	if err != nil {
		return "", errInvalidToken
	}
	email, err := stringClaim(claims, "sub")
	if err != nil {
		return "", errInvalidToken
	}
	hash, err := stringClaim(claims, "password")
	if err != nil {
		return "", errInvalidToken
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return "", errResetNoUser
		}
		return "", err
	}
	if err := s.users.SetPasswordHash(ctx, u.ID, hash); err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return "", errResetNoUser
		}
		return "", err
	}
	s.logger.Infow("password reset", "user_id", u.ID)
	return msgPasswordChanged, nil
}

func (s *Service) sendConfirmation(u *entity.User) {
	token, err := s.codec.IssueFor(ScopeEmailConfirm, map[string]any{"sub": u.Email}, EmailTokenTTL)
	if err != nil {
		s.logger.Errorw("issue confirmation token", "user_id", u.ID, "err", err)
		return
	}
	s.mailer.Dispatch(mail.Message{
		To:       u.Email,
		Subject:  subjectConfirmEmail,
		Template: mail.TemplateVerifyEmail,
		Data: map[string]any{
			"host":     s.baseURL,
			"username": u.Username,
			"token":    token,
		},
	})
}
