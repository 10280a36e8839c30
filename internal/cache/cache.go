// Package cache fronts user lookups with a short-lived Redis read-through
// cache. Entries are immutable JSON snapshots that expire; nothing
// invalidates them explicitly.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/entity"
)

// ErrMiss is returned by Get when no live entry exists.
var ErrMiss = errors.New("cache miss")

const DefaultTTL = 5 * time.Minute

type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

// OpenRedis builds a client and pings it once; an unreachable server is an
// error so the caller can fall back to running without a cache.
func OpenRedis(ctx context.Context, cfg Config, logger *zap.SugaredLogger) (*redis.Client, error) {
	logger.Infow("redis connecting", "addr", cfg.Addr, "db", cfg.DB)
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Infow("redis connected", "addr", cfg.Addr, "db", cfg.DB)
	return rc, nil
}

// UserCache caches users by username.
type UserCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewUserCache(rdb redis.Cmdable, ttl time.Duration) *UserCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &UserCache{rdb: rdb, ttl: ttl, prefix: "user:username:"}
}

func (c *UserCache) key(username string) string { return c.prefix + username }

// Get returns the cached user or ErrMiss.
func (c *UserCache) Get(ctx context.Context, username string) (*entity.User, error) {
	b, err := c.rdb.Get(ctx, c.key(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var u entity.User
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &u, nil
}

// Set stores a snapshot of u for the cache TTL.
func (c *UserCache) Set(ctx context.Context, u *entity.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(u.Username), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Nop is used when Redis is disabled: every Get misses.
type Nop struct{}

func (Nop) Get(context.Context, string) (*entity.User, error) { return nil, ErrMiss }
func (Nop) Set(context.Context, *entity.User) error           { return nil }
