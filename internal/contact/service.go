package contact

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/contact/entity"
	contactrepo "github.com/ovaphlow/pitchfork/service-contacts-go/internal/contact/repo"
)

var errContactNotFound = apperr.New(apperr.ErrNotFound, "Contact not found")

// Store is the contact persistence used by ContactService.
type Store interface {
	List(ctx context.Context, userID int64, f entity.Filter) ([]entity.Contact, error)
	ListAll(ctx context.Context, userID int64) ([]entity.Contact, error)
	Get(ctx context.Context, userID, id int64) (*entity.Contact, error)
	Create(ctx context.Context, c *entity.Contact) error
	Update(ctx context.Context, c *entity.Contact) error
	Delete(ctx context.Context, userID, id int64) (*entity.Contact, error)
}

// ContactService implements the per-user address book.
type ContactService struct {
	repo   Store
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewContactService(r Store, logger *zap.SugaredLogger) *ContactService {
	return &ContactService{repo: r, logger: logger, now: time.Now}
}

func (s *ContactService) List(ctx context.Context, userID int64, f entity.Filter) ([]entity.Contact, error) {
	return s.repo.List(ctx, userID, f)
}

func (s *ContactService) Get(ctx context.Context, userID, id int64) (*entity.Contact, error) {
	c, err := s.repo.Get(ctx, userID, id)
	return c, mapErr(err, nil)
}

func (s *ContactService) Create(ctx context.Context, userID int64, c *entity.Contact) (*entity.Contact, error) {
	c.UserID = userID
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, mapErr(err, c)
	}
	s.logger.Debugw("contact created", "user_id", userID, "contact_id", c.ID)
	return c, nil
}

func (s *ContactService) Update(ctx context.Context, userID, id int64, c *entity.Contact) (*entity.Contact, error) {
	c.ID, c.UserID = id, userID
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, mapErr(err, c)
	}
	return c, nil
}

func (s *ContactService) Delete(ctx context.Context, userID, id int64) (*entity.Contact, error) {
	c, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return nil, mapErr(err, nil)
	}
	s.logger.Debugw("contact deleted", "user_id", userID, "contact_id", id)
	return c, nil
}

// Birthdays returns the contacts whose next birthday falls within the next
// days days, today included, soonest first.
func (s *ContactService) Birthdays(ctx context.Context, userID int64, days int) ([]entity.Contact, error) {
	all, err := s.repo.ListAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	return UpcomingBirthdays(all, s.now(), days), nil
}

// UpcomingBirthdays filters contacts to those with an anniversary in
// [today, today+days] and orders them by that anniversary.
func UpcomingBirthdays(contacts []entity.Contact, today time.Time, days int) []entity.Contact {
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, days)

	type hit struct {
		c    entity.Contact
		next time.Time
	}
	var hits []hit
	for _, c := range contacts {
		next := NextBirthday(c.Birthday, start)
		if !next.After(end) {
			hits = append(hits, hit{c, next})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].next.Before(hits[j].next) })

	out := make([]entity.Contact, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.c)
	}
	return out
}

// NextBirthday is the first anniversary of birthday on or after day. A
// Feb 29 birthday lands on Mar 1 in common years, which is how time.Date
// normalizes the date.
func NextBirthday(birthday entity.Date, day time.Time) time.Time {
	next := time.Date(day.Year(), birthday.Month(), birthday.Day(), 0, 0, 0, 0, time.UTC)
	if next.Before(day) {
		next = time.Date(day.Year()+1, birthday.Month(), birthday.Day(), 0, 0, 0, 0, time.UTC)
	}
	return next
}

func mapErr(err error, c *entity.Contact) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, contactrepo.ErrNotFound):
		return errContactNotFound
	case errors.Is(err, contactrepo.ErrDuplicate) && c != nil:
		return apperr.New(apperr.ErrConflict,
			fmt.Sprintf("Contact with '%s' email or '%s' phone number already exists.", c.Email, c.Phone))
	}
	return err
}
