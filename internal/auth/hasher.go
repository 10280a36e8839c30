package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrEmptyPassword = errors.New("empty password")

// bcrypt only looks at the first 72 bytes; longer inputs are cut there
// instead of failing with bcrypt.ErrPasswordTooLong.
const maxBcryptInput = 72

// PasswordHasher defines the hashing interface so the algorithm can be swapped.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher implementation. Zero Cost means bcrypt.DefaultCost.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(pw string) (string, error) {
	if pw == "" {
		return "", ErrEmptyPassword
	}
	h, err := bcrypt.GenerateFromPassword(clip(pw), b.cost())
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Verify is false for a malformed hash.
func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), clip(pw)) == nil
}

// NeedsRehash reports whether hash was made with a different cost.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return false
	}
	return c != b.cost()
}

func clip(pw string) []byte {
	p := []byte(pw)
	if len(p) > maxBcryptInput {
		p = p[:maxBcryptInput]
	}
	return p
}
