package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-contacts-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-contacts-go/pkg/utilities"
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrUsernameTaken = errors.New("username already taken")
)

// constraint names from the users migration
const (
	constraintEmail    = "users_email_key"
	constraintUsername = "users_username_key"
)

const userColumns = `id, username, email, hashed_password, confirmed, role, avatar, created_at`

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row. The unique constraints on username and
// email are authoritative; their violation maps to ErrUsernameTaken or
// ErrEmailTaken.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	if u.ID == 0 {
		u.ID = utilities.NewID()
	}
	if u.Role == "" {
		u.Role = entity.RoleUser
	}
	const q = `INSERT INTO users (id, username, email, hashed_password, confirmed, role, avatar)
		  VALUES (:id, :username, :email, :hashed_password, :confirmed, :role, :avatar) RETURNING created_at`
	rows, err := r.db.NamedQueryContext(ctx, q, u)
	if err != nil {
		return mapWriteErr(err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return mapWriteErr(err)
		}
		return errors.New("insert user: no row returned")
	}
	return rows.Scan(&u.CreatedAt)
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	return r.getOne(ctx, "select user", `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

// GetByUsername fetches by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.getOne(ctx, "select user", `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
}

// GetByEmail returns a user matched by email or ErrNotFound.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getOne(ctx, "select user", `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

func (r *UserRepo) getOne(ctx context.Context, op, q string, args ...any) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &u, nil
}

// SetConfirmed marks the email as confirmed.
func (r *UserRepo) SetConfirmed(ctx context.Context, email string) error {
	const q = `UPDATE users SET confirmed=true WHERE email=$1`
	return r.execOne(ctx, q, email)
}

// SetAvatar stores a new avatar URL and returns the updated row.
func (r *UserRepo) SetAvatar(ctx context.Context, email, url string) (*entity.User, error) {
	q := `UPDATE users SET avatar=$2 WHERE email=$1 RETURNING ` + userColumns
	return r.getOne(ctx, "update avatar", q, email, url)
}

// SetPasswordHash replaces the password hash. The row is locked first so a
// concurrent reset cannot interleave; nothing is written unless the user
// exists.
func (r *UserRepo) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	return database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		var one int
		if err := tx.GetContext(ctx, &one, `SELECT 1 FROM users WHERE id=$1 FOR UPDATE`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock user: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET hashed_password=$2 WHERE id=$1`, id, hash); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		return nil
	})
}

// SetRole changes the role of a user.
func (r *UserRepo) SetRole(ctx context.Context, username string, role entity.Role) error {
	const q = `UPDATE users SET role=$2 WHERE username=$1`
	return r.execOne(ctx, q, username, string(role))
}

func (r *UserRepo) execOne(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapWriteErr(err error) error {
	if name, ok := database.UniqueViolation(err); ok {
		switch name {
		case constraintEmail:
			return ErrEmailTaken
		case constraintUsername:
			return ErrUsernameTaken
		}
	}
	return fmt.Errorf("insert user: %w", err)
}
