package contact

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/contact/entity"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/respond"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	defaultDays  = 7
)

// Handler exposes the /contacts endpoints. Every route runs behind
// auth.RequireUser.
type Handler struct {
	svc    *ContactService
	region string
	logger *zap.SugaredLogger
}

// NewHandler builds the handler. region is the ISO country code used to read
// phone numbers written without a country prefix.
func NewHandler(svc *ContactService, region string, logger *zap.SugaredLogger) *Handler {
	if region == "" {
		region = "US"
	}
	return &Handler{svc: svc, region: strings.ToUpper(region), logger: logger}
}

// ContactInput is the body of POST and PUT.
type ContactInput struct {
	Name     string       `json:"name"`
	Surname  string       `json:"surname"`
	Email    string       `json:"email"`
	Phone    string       `json:"phone"`
	Birthday *entity.Date `json:"birthday"`
	Info     *string      `json:"info"`
}

func (in ContactInput) Validate(region string) error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(2, 50)),
		validation.Field(&in.Surname, validation.Required, validation.Length(2, 50)),
		validation.Field(&in.Email, validation.Required, validation.Length(7, 100), is.Email),
		validation.Field(&in.Phone, validation.Required, validation.Length(7, 20), validation.By(phoneRule(region))),
		validation.Field(&in.Birthday, validation.Required),
		validation.Field(&in.Info, validation.Length(0, 500)),
	)
}

func phoneRule(region string) validation.RuleFunc {
	return func(v any) error {
		s, _ := v.(string)
		if s == "" {
			return nil
		}
		if _, err := normalizePhone(s, region); err != nil {
			return errors.New("must be a valid phone number")
		}
		return nil
	}
}

// normalizePhone returns s in E.164 form.
func normalizePhone(s, region string) (string, error) {
	num, err := phonenumbers.Parse(s, region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func (h *Handler) decodeInput(w http.ResponseWriter, r *http.Request) (*entity.Contact, error) {
	var in ContactInput
	if err := respond.Decode(w, r, &in); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Surname = strings.TrimSpace(in.Surname)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	if err := in.Validate(h.region); err != nil {
		return nil, err
	}
	phone, _ := normalizePhone(in.Phone, h.region)
	return &entity.Contact{
		Name:     in.Name,
		Surname:  in.Surname,
		Email:    in.Email,
		Phone:    phone,
		Birthday: *in.Birthday,
		Info:     in.Info,
	}, nil
}

// intParam reads an optional integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, validation.Errors{name: errors.New("must be an integer")}
	}
	return n, nil
}

func contactID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, validation.Errors{"contact_id": errors.New("must be an integer")}
	}
	return id, nil
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFromContext(r.Context())
	q := r.URL.Query()
	f := entity.Filter{Name: q.Get("name"), Surname: q.Get("surname"), Email: q.Get("email")}

	var err error
	if f.Skip, err = intParam(r, "skip", 0); err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	if f.Limit, err = intParam(r, "limit", defaultLimit); err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	err = validation.Errors{
		"skip":  validation.Validate(f.Skip, validation.Min(0)),
		"limit": validation.Validate(f.Limit, validation.Min(1), validation.Max(maxLimit)),
	}.Filter()
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}

	contacts, err := h.svc.List(r.Context(), u.ID, f)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, contacts)
}

func (h *Handler) Birthdays(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFromContext(r.Context())
	days, err := intParam(r, "days", defaultDays)
	if err == nil {
		err = validation.Errors{"days": validation.Validate(days, validation.Min(1))}.Filter()
	}
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	contacts, err := h.svc.Birthdays(r.Context(), u.ID, days)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, contacts)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFromContext(r.Context())
	id, err := contactID(r)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	c, err := h.svc.Get(r.Context(), u.ID, id)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, c)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFromContext(r.Context())
	c, err := h.decodeInput(w, r)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	c, err = h.svc.Create(r.Context(), u.ID, c)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	respond.JSON(w, http.StatusCreated, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFromContext(r.Context())
	id, err := contactID(r)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	c, err := h.decodeInput(w, r)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	c, err = h.svc.Update(r.Context(), u.ID, id, c)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, c)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFromContext(r.Context())
	id, err := contactID(r)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	c, err := h.svc.Delete(r.Context(), u.ID, id)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, c)
}
