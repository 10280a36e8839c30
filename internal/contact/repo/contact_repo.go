package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/contact/entity"
	"github.com/ovaphlow/pitchfork/service-contacts-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-contacts-go/pkg/utilities"
)

var (
	ErrNotFound  = errors.New("contact not found")
	ErrDuplicate = errors.New("contact with this email or phone already exists")
)

const (
	constraintEmail = "contacts_user_email_key"
	constraintPhone = "contacts_user_phone_key"
)

const contactColumns = `id, user_id, name, surname, email, phone, birthday, info, created_at, updated_at`

// ContactRepo is the sqlx-backed store for contacts. Every method is scoped
// to one owner.
type ContactRepo struct {
	db *sqlx.DB
}

func NewContactRepo(db *sqlx.DB) *ContactRepo { return &ContactRepo{db: db} }

// List returns the owner's contacts whose name, surname and email contain
// the filter strings, case-insensitively.
func (r *ContactRepo) List(ctx context.Context, userID int64, f entity.Filter) ([]entity.Contact, error) {
	q := `SELECT ` + contactColumns + ` FROM contacts
		WHERE user_id=$1 AND name ILIKE $2 AND surname ILIKE $3 AND email ILIKE $4
		ORDER BY id OFFSET $5 LIMIT $6`
	out := []entity.Contact{}
	err := r.db.SelectContext(ctx, &out, q, userID,
		containsPattern(f.Name), containsPattern(f.Surname), containsPattern(f.Email),
		f.Skip, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return out, nil
}

// ListAll returns every contact of the owner; birthday filtering happens in
// the service.
func (r *ContactRepo) ListAll(ctx context.Context, userID int64) ([]entity.Contact, error) {
	out := []entity.Contact{}
	q := `SELECT ` + contactColumns + ` FROM contacts WHERE user_id=$1`
	if err := r.db.SelectContext(ctx, &out, q, userID); err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return out, nil
}

func (r *ContactRepo) Get(ctx context.Context, userID, id int64) (*entity.Contact, error) {
	var c entity.Contact
	q := `SELECT ` + contactColumns + ` FROM contacts WHERE id=$1 AND user_id=$2`
	if err := r.db.GetContext(ctx, &c, q, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select contact: %w", err)
	}
	return &c, nil
}

// Create inserts c. The per-owner unique constraints on email and phone
// surface as ErrDuplicate.
func (r *ContactRepo) Create(ctx context.Context, c *entity.Contact) error {
	if c.ID == 0 {
		c.ID = utilities.NewID()
	}
	const q = `INSERT INTO contacts (id, user_id, name, surname, email, phone, birthday, info)
		VALUES (:id, :user_id, :name, :surname, :email, :phone, :birthday, :info)
		RETURNING created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, c)
	if err != nil {
		return mapWriteErr("insert contact", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return mapWriteErr("insert contact", err)
		}
		return errors.New("insert contact: no row returned")
	}
	return rows.Scan(&c.CreatedAt, &c.UpdatedAt)
}

// Update replaces the editable fields of the owner's contact c.ID.
func (r *ContactRepo) Update(ctx context.Context, c *entity.Contact) error {
	return database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		var one int
		err := tx.GetContext(ctx, &one, `SELECT 1 FROM contacts WHERE id=$1 AND user_id=$2 FOR UPDATE`, c.ID, c.UserID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock contact: %w", err)
		}
		q := `UPDATE contacts SET name=$3, surname=$4, email=$5, phone=$6, birthday=$7, info=$8, updated_at=NOW()
			WHERE id=$1 AND user_id=$2 RETURNING ` + contactColumns
		err = tx.GetContext(ctx, c, q, c.ID, c.UserID, c.Name, c.Surname, c.Email, c.Phone, c.Birthday, c.Info)
		if err != nil {
			return mapWriteErr("update contact", err)
		}
		return nil
	})
}

// Delete removes the owner's contact and returns it.
func (r *ContactRepo) Delete(ctx context.Context, userID, id int64) (*entity.Contact, error) {
	var c entity.Contact
	q := `DELETE FROM contacts WHERE id=$1 AND user_id=$2 RETURNING ` + contactColumns
	if err := r.db.GetContext(ctx, &c, q, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete contact: %w", err)
	}
	return &c, nil
}

// containsPattern escapes LIKE wildcards in s and wraps it in %.
func containsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func mapWriteErr(op string, err error) error {
	if name, ok := database.UniqueViolation(err); ok && (name == constraintEmail || name == constraintPhone) {
		return ErrDuplicate
	}
	return fmt.Errorf("%s: %w", op, err)
}
