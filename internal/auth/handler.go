package auth

import (
	"net/http"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/respond"
)

// Handler exposes the /auth endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// usernamePattern keeps usernames disjoint from email addresses.
var usernamePattern = regexp.MustCompile(`^[^@\s]+$`)

// RegisterInput is the body of POST /auth/register.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in *RegisterInput) normalize() {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
}

func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.Length(1, 50), validation.Match(usernamePattern).Error("must not contain @ or whitespace")),
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(4, 128)),
	)
}

type emailInput struct {
	Email string `json:"email"`
}

func (in emailInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.Email),
	)
}

type resetInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in resetInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(4, 128)),
	)
}

type loginInput struct {
	Username string
	Password string
}

func (in loginInput) Validate() error {
	return validation.Errors{
		"username": validation.Validate(in.Username, validation.Required),
		"password": validation.Validate(in.Password, validation.Required),
	}.Filter()
}

// TokenResponse is the body returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := respond.Decode(w, r, &in); err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	in.normalize()
	if err := in.Validate(); err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	u, err := h.svc.Register(r.Context(), in)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, u)
}

// Login accepts an OAuth2 password-style form: username and password.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respond.Error(w, h.logger, r, errBadForm)
		return
	}
	in := loginInput{Username: strings.TrimSpace(r.PostForm.Get("username")), Password: r.PostForm.Get("password")}
	if err := in.Validate(); err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	token, err := h.svc.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, TokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (h *Handler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.ConfirmEmail(r.Context(), r.PathValue("token"))
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	respond.Message(w, msg)
}

func (h *Handler) RequestEmail(w http.ResponseWriter, r *http.Request) {
	var in emailInput
	if err := respond.Decode(w, r, &in); err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := in.Validate(); err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	msg, err := h.svc.RequestEmail(r.Context(), in.Email)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	respond.Message(w, msg)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in resetInput
	if err := respond.Decode(w, r, &in); err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := in.Validate(); err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	msg, err := h.svc.RequestPasswordReset(r.Context(), in.Email, in.Password)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	respond.Message(w, msg)
}

func (h *Handler) ConfirmResetPassword(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.ConfirmPasswordReset(r.Context(), r.PathValue("token"))
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	respond.Message(w, msg)
}
