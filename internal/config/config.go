// Package config assembles the process configuration once at startup:
// built-in defaults, then an optional YAML file named by CONFIG_FILE, then
// .env and the real environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/cache"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/mail"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/upload"
	"github.com/ovaphlow/pitchfork/service-contacts-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-contacts-go/pkg/utilities"
)

type Config struct {
	HTTP      HTTP             `yaml:"http"`
	Database  database.Config  `yaml:"database"`
	Log       utilities.Config `yaml:"log"`
	JWT       JWT              `yaml:"jwt"`
	Auth      Auth             `yaml:"auth"`
	Mail      mail.Config      `yaml:"mail"`
	Redis     cache.Config     `yaml:"redis"`
	Cache     Cache            `yaml:"cache"`
	RateLimit ratelimit.Config `yaml:"rate_limit"`
	Storage   upload.Config    `yaml:"storage"`
	Contacts  Contacts         `yaml:"contacts"`
}

type HTTP struct {
	Addr     string `yaml:"addr"`
	BasePath string `yaml:"base_path"`
	// PublicURL is how clients reach the server, used in mailed links.
	PublicURL       string        `yaml:"public_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type JWT struct {
	Secret     string        `yaml:"secret"`
	Algorithm  string        `yaml:"algorithm"`
	Expiration time.Duration `yaml:"expiration"`
}

type Auth struct {
	BcryptCost int `yaml:"bcrypt_cost"`
}

type Cache struct {
	UserTTL time.Duration `yaml:"user_ttl"`
}

type Contacts struct {
	PhoneRegion string `yaml:"phone_region"`
}

// Default returns settings for a local development stack.
func Default() *Config {
	return &Config{
		HTTP:      HTTP{Addr: ":8000", BasePath: "/api", ShutdownTimeout: 10 * time.Second},
		Database:  database.DefaultConfig(),
		Log:       utilities.DefaultConfig(),
		JWT:       JWT{Algorithm: "HS256", Expiration: time.Hour},
		Auth:      Auth{BcryptCost: 10},
		Mail:      mail.Config{Port: 587, StartTLS: true, ValidateCerts: true, FromName: "Contacts API", Timeout: 30 * time.Second},
		Redis:     cache.Config{Enabled: true, Addr: "localhost:6379"},
		Cache:     Cache{UserTTL: cache.DefaultTTL},
		RateLimit: ratelimit.Config{Enabled: true, Requests: 10, Window: time.Minute},
		Storage:   upload.Config{Region: "us-east-1", PathStyle: true},
		Contacts:  Contacts{PhoneRegion: "US"},
	}
}

// Load builds the configuration. A missing .env is fine; a named but
// unreadable CONFIG_FILE is not.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Database = database.ConfigFromEnv(c.Database)
	c.Log = utilities.ConfigFromEnv(c.Log)

	envString("HTTP_ADDR", &c.HTTP.Addr)
	envString("HTTP_BASE_PATH", &c.HTTP.BasePath)
	envString("PUBLIC_URL", &c.HTTP.PublicURL)

	envString("JWT_SECRET", &c.JWT.Secret)
	envString("JWT_ALGORITHM", &c.JWT.Algorithm)
	envSeconds("JWT_EXPIRATION_SECONDS", &c.JWT.Expiration)
	envInt("AUTH_BCRYPT_COST", &c.Auth.BcryptCost)

	envString("MAIL_SERVER", &c.Mail.Host)
	envInt("MAIL_PORT", &c.Mail.Port)
	envString("MAIL_USERNAME", &c.Mail.Username)
	envString("MAIL_PASSWORD", &c.Mail.Password)
	envString("MAIL_FROM", &c.Mail.From)
	envString("MAIL_FROM_NAME", &c.Mail.FromName)
	envBool("MAIL_STARTTLS", &c.Mail.StartTLS)
	envBool("MAIL_SSL_TLS", &c.Mail.SSL)
	envBool("MAIL_VALIDATE_CERTS", &c.Mail.ValidateCerts)

	envBool("REDIS_ENABLED", &c.Redis.Enabled)
	envString("REDIS_ADDR", &c.Redis.Addr)
	envInt("REDIS_DB", &c.Redis.DB)
	envString("REDIS_PASSWORD", &c.Redis.Password)
	envSeconds("CACHE_USER_TTL", &c.Cache.UserTTL)

	if v := os.Getenv("RATE_LIMIT_ME"); v != "" {
		n, window, err := ParseRate(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_ME: %w", err)
		}
		c.RateLimit.Requests, c.RateLimit.Window = n, window
	}
	envBool("RATE_LIMIT_ENABLED", &c.RateLimit.Enabled)

	envString("STORAGE_BUCKET", &c.Storage.Bucket)
	envString("STORAGE_REGION", &c.Storage.Region)
	envString("STORAGE_ENDPOINT", &c.Storage.Endpoint)
	envString("STORAGE_ACCESS_KEY", &c.Storage.AccessKey)
	envString("STORAGE_SECRET_KEY", &c.Storage.SecretKey)
	envString("STORAGE_PUBLIC_URL", &c.Storage.PublicURL)
	envBool("STORAGE_PATH_STYLE", &c.Storage.PathStyle)

	envString("CONTACTS_PHONE_REGION", &c.Contacts.PhoneRegion)
	return nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	return validation.Errors{
		"jwt.secret":          validation.Validate(c.JWT.Secret, validation.Required),
		"jwt.algorithm":       validation.Validate(c.JWT.Algorithm, validation.In("HS256", "HS384", "HS512")),
		"http.addr":           validation.Validate(c.HTTP.Addr, validation.Required),
		"http.base_path":      validation.Validate(c.HTTP.BasePath, validation.By(absolutePath)),
		"auth.bcrypt_cost":    validation.Validate(c.Auth.BcryptCost, validation.Min(4), validation.Max(31)),
		"rate_limit.requests": validation.Validate(c.RateLimit.Requests, validation.Min(1)),
		"rate_limit.window":   validation.Validate(int64(c.RateLimit.Window), validation.Min(int64(time.Second))),
	}.Filter()
}

func absolutePath(v any) error {
	if s, _ := v.(string); s != "" && !strings.HasPrefix(s, "/") {
		return errors.New("must start with /")
	}
	return nil
}

// APIBaseURL is the absolute URL of the API root, without a trailing slash.
func (c *Config) APIBaseURL() string {
	base := strings.TrimRight(c.HTTP.PublicURL, "/")
	if base == "" {
		host := c.HTTP.Addr
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}
		base = "http://" + host
	}
	return base + strings.TrimRight(c.HTTP.BasePath, "/")
}

// ParseRate reads limits written as "<n>/<unit>", e.g. "10/minute".
func ParseRate(s string) (int, time.Duration, error) {
	count, unit, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return 0, 0, fmt.Errorf("rate %q: want <n>/<unit>", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("rate %q: bad count", s)
	}
	var window time.Duration
	switch strings.TrimSpace(strings.ToLower(unit)) {
	case "second", "s":
		window = time.Second
	case "minute", "m":
		window = time.Minute
	case "hour", "h":
		window = time.Hour
	case "day", "d":
		window = 24 * time.Hour
	default:
		return 0, 0, fmt.Errorf("rate %q: unknown unit", s)
	}
	return n, window, nil
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func envSeconds(key string, dst *time.Duration) {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		*dst = time.Duration(v) * time.Second
	}
}
