package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadLayering(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, `
http:
  addr: ":9000"
  base_path: /v1
jwt:
  secret: from-file
  expiration: 30m
redis:
  enabled: false
cache:
  user_ttl: 1m
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("RATE_LIMIT_ME", "5/second")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr, "file over default")
	assert.Equal(t, "/v1", cfg.HTTP.BasePath)
	assert.Equal(t, "from-env", cfg.JWT.Secret, "env over file")
	assert.Equal(t, 30*time.Minute, cfg.JWT.Expiration)
	assert.Equal(t, "HS256", cfg.JWT.Algorithm, "default kept")
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Minute, cfg.Cache.UserTTL)
	assert.Equal(t, 5, cfg.RateLimit.Requests)
	assert.Equal(t, time.Second, cfg.RateLimit.Window)
	assert.Equal(t, "http://localhost:9000/v1", cfg.APIBaseURL())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	require.ErrorContains(t, err, "jwt.secret")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", writeFile(t, "jwt:\n  sekret: x\n"))
	_, err := Load()
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=dotenv\nJWT_EXPIRATION_SECONDS=120\n"), 0o600))
	t.Setenv("CONFIG_FILE", "")
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("JWT_EXPIRATION_SECONDS")
	t.Cleanup(func() {
		os.Unsetenv("JWT_SECRET")
		os.Unsetenv("JWT_EXPIRATION_SECONDS")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dotenv", cfg.JWT.Secret)
	assert.Equal(t, 2*time.Minute, cfg.JWT.Expiration)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.JWT.Secret = "s"
	require.NoError(t, cfg.Validate())

	cfg.JWT.Algorithm = "RS256"
	cfg.HTTP.BasePath = "api"
	err := cfg.Validate()
	require.ErrorContains(t, err, "jwt.algorithm")
	require.ErrorContains(t, err, "http.base_path")
}

func TestParseRate(t *testing.T) {
	n, w, err := ParseRate("10/minute")
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, time.Minute, w)

	for _, bad := range []string{"10", "x/minute", "0/minute", "10/fortnight"} {
		_, _, err := ParseRate(bad)
		assert.Error(t, err, bad)
	}
}

func TestAPIBaseURL(t *testing.T) {
	cfg := Default()
	cfg.HTTP.PublicURL = "https://contacts.example.com/"
	assert.Equal(t, "https://contacts.example.com/api", cfg.APIBaseURL())
}
