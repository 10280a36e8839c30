package repo

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/entity"
)

var cols = []string{"id", "username", "email", "hashed_password", "confirmed", "role", "avatar", "created_at"}

func newRepoWithMock(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepo(sqlx.NewDb(db, "postgres")), mock
}

func TestCreate_Success(t *testing.T) {
	r, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO users \(id, username, email, hashed_password, confirmed, role, avatar\)`).
		WithArgs(sqlmock.AnyArg(), "alice", "alice@x.com", "$2a$hash", false, "user", nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	u := &entity.User{Username: "alice", Email: "alice@x.com", PasswordHash: "$2a$hash"}
	require.NoError(t, r.Create(context.Background(), u))
	assert.NotZero(t, u.ID)
	assert.Equal(t, entity.RoleUser, u.Role)
	assert.Equal(t, now, u.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_UniqueViolations(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
	}{
		{constraintEmail, ErrEmailTaken},
		{constraintUsername, ErrUsernameTaken},
	}
	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			r, mock := newRepoWithMock(t)
			mock.ExpectQuery(`INSERT INTO users`).
				WillReturnError(&pq.Error{Code: "23505", Constraint: tt.constraint})

			err := r.Create(context.Background(), &entity.User{Username: "alice", Email: "a@x.com"})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreate_OtherError(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectQuery(`INSERT INTO users`).WillReturnError(errors.New("db down"))

	err := r.Create(context.Background(), &entity.User{Username: "alice"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert user: db down")
}

func TestGetByUsername(t *testing.T) {
	r, mock := newRepoWithMock(t)
	avatar := "https://img/a.png"
	mock.ExpectQuery(`SELECT .+ FROM users WHERE username=\$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(7), "alice", "alice@x.com", "h", true, "admin", avatar, time.Now()))

	u, err := r.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, entity.RoleAdmin, u.Role)
	assert.True(t, u.Confirmed)
	require.NotNil(t, u.Avatar)
	assert.Equal(t, avatar, *u.Avatar)
}

func TestGetByEmail_NotFound(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE email=\$1`).
		WithArgs("nobody@x.com").
		WillReturnError(sql.ErrNoRows)

	_, err := r.GetByEmail(context.Background(), "nobody@x.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetConfirmed(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectExec(`UPDATE users SET confirmed=true WHERE email=\$1`).
		WithArgs("alice@x.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.SetConfirmed(context.Background(), "alice@x.com"))

	mock.ExpectExec(`UPDATE users SET confirmed=true`).
		WithArgs("ghost@x.com").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, r.SetConfirmed(context.Background(), "ghost@x.com"), ErrNotFound)
}

func TestSetAvatar(t *testing.T) {
	r, mock := newRepoWithMock(t)
	url := "https://img/alice"
	mock.ExpectQuery(`UPDATE users SET avatar=\$2 WHERE email=\$1 RETURNING`).
		WithArgs("alice@x.com", url).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(7), "alice", "alice@x.com", "h", true, "admin", url, time.Now()))

	u, err := r.SetAvatar(context.Background(), "alice@x.com", url)
	require.NoError(t, err)
	require.NotNil(t, u.Avatar)
	assert.Equal(t, url, *u.Avatar)
}

func TestSetPasswordHash(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM users WHERE id=\$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec(`UPDATE users SET hashed_password=\$2 WHERE id=\$1`).
		WithArgs(int64(7), "newhash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, r.SetPasswordHash(context.Background(), 7, "newhash"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetPasswordHash_MissingUserRollsBack(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM users WHERE id=\$1 FOR UPDATE`).
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	require.ErrorIs(t, r.SetPasswordHash(context.Background(), 9, "newhash"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRole(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectExec(`UPDATE users SET role=\$2 WHERE username=\$1`).
		WithArgs("alice", "admin").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.SetRole(context.Background(), "alice", entity.RoleAdmin))
}

func TestGetByID(t *testing.T) {
	r, mock := newRepoWithMock(t)
	mock.ExpectQuery(`SELECT .+ FROM users WHERE id=\$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(7), "alice", "alice@x.com", "h", false, "user", nil, time.Now()))

	u, err := r.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Nil(t, u.Avatar)
}
