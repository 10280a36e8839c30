package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers every verification failure: bad signature, wrong
// algorithm, expiry, malformed structure or a missing expected claim.
var ErrInvalidToken = errors.New("invalid token")

const DefaultTokenTTL = time.Hour

// Scope names what a token may be used for. Every token the service issues
// carries one, and each consumer accepts only its own.
type Scope string

const (
	ScopeAccess        Scope = "access"
	ScopeEmailConfirm  Scope = "email_confirm"
	ScopePasswordReset Scope = "password_reset"
)

const scopeClaim = "scope"

// TokenCodec issues and verifies HMAC-signed JWTs with one process-wide
// secret and algorithm.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenCodec(secret, alg string, ttl time.Duration) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("token codec: empty secret")
	}
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	var method jwt.SigningMethod
	switch alg {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("token codec: unsupported algorithm %q", alg)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{secret: []byte(secret), method: method, ttl: ttl, now: time.Now}, nil
}

// Issue signs claims plus exp. A non-positive ttl uses the codec default.
// A caller-supplied exp is overwritten.
func (c *TokenCodec) Issue(claims map[string]any, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	mc := make(jwt.MapClaims, len(claims)+1)
	for k, v := range claims {
		mc[k] = v
	}
	mc["exp"] = c.now().Add(ttl).Unix()
	return jwt.NewWithClaims(c.method, mc).SignedString(c.secret)
}

// IssueFor is Issue with the scope claim set to scope.
func (c *TokenCodec) IssueFor(scope Scope, claims map[string]any, ttl time.Duration) (string, error) {
	mc := make(map[string]any, len(claims)+1)
	for k, v := range claims {
		mc[k] = v
	}
	mc[scopeClaim] = string(scope)
	return c.Issue(mc, ttl)
}

// Verify checks signature, algorithm and expiry and returns the claims.
func (c *TokenCodec) Verify(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// VerifyFor is Verify plus a check that the token was issued for scope.
func (c *TokenCodec) VerifyFor(token string, scope Scope) (jwt.MapClaims, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return nil, err
	}
	if got, _ := claims[scopeClaim].(string); got != string(scope) {
		return nil, fmt.Errorf("%w: scope %q, want %q", ErrInvalidToken, got, scope)
	}
	return claims, nil
}

// SubjectFor returns the sub claim of a token issued for scope.
func (c *TokenCodec) SubjectFor(token string, scope Scope) (string, error) {
	claims, err := c.VerifyFor(token, scope)
	if err != nil {
		return "", err
	}
	return stringClaim(claims, "sub")
}

// Subject returns the non-empty sub claim.
func (c *TokenCodec) Subject(token string) (string, error) {
	return c.Field(token, "sub")
}

// Field returns a named non-empty string claim.
func (c *TokenCodec) Field(token, name string) (string, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return "", err
	}
	return stringClaim(claims, name)
}

func stringClaim(claims jwt.MapClaims, name string) (string, error) {
	s, ok := claims[name].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: missing %s claim", ErrInvalidToken, name)
	}
	return s, nil
}
