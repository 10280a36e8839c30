package entity

import "time"

// Role gates admin-only endpoints.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents an account row in the `users` table.
// PasswordHash never leaves the service in JSON, which also keeps it out of
// the identity cache.
type User struct {
	ID           int64     `db:"id" json:"id,string"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"hashed_password" json:"-"`
	Confirmed    bool      `db:"confirmed" json:"confirmed"`
	Role         Role      `db:"role" json:"role"`
	Avatar       *string   `db:"avatar" json:"avatar"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
