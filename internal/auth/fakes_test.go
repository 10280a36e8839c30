package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/cache"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/mail"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/repo"
)

// memStore mimics the unique constraints of the users table.
type memStore struct {
	mu      sync.Mutex
	users   map[int64]*entity.User
	nextID  int64
	lookups int
	writes  int
}

func newMemStore() *memStore { return &memStore{users: map[int64]*entity.User{}} }

func (m *memStore) Create(_ context.Context, u *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.users {
		if x.Email == u.Email {
			return userrepo.ErrEmailTaken
		}
		if x.Username == u.Username {
			return userrepo.ErrUsernameTaken
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	m.writes++
	return nil
}

func (m *memStore) find(match func(*entity.User) bool) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, userrepo.ErrNotFound
}

func (m *memStore) GetByUsername(_ context.Context, username string) (*entity.User, error) {
	return m.find(func(u *entity.User) bool { return u.Username == username })
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	return m.find(func(u *entity.User) bool { return u.Email == email })
}

func (m *memStore) SetConfirmed(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u.Confirmed = true
			m.writes++
			return nil
		}
	}
	return userrepo.ErrNotFound
}

func (m *memStore) SetPasswordHash(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return userrepo.ErrNotFound
	}
	u.PasswordHash = hash
	m.writes++
	return nil
}

func (m *memStore) get(username string) *entity.User {
	u, _ := m.GetByUsername(context.Background(), username)
	return u
}

type memCache struct {
	entries map[string]*entity.User
	err     error
}

func (c *memCache) Get(_ context.Context, username string) (*entity.User, error) {
	if c.err != nil {
		return nil, c.err
	}
	u, ok := c.entries[username]
	if !ok {
		return nil, cache.ErrMiss
	}
	return u, nil
}

func (c *memCache) Set(_ context.Context, u *entity.User) error {
	if c.err != nil {
		return c.err
	}
	if c.entries == nil {
		c.entries = map[string]*entity.User{}
	}
	c.entries[u.Username] = u
	return nil
}

type outbox struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (o *outbox) Dispatch(msg mail.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
}

func (o *outbox) last(t *testing.T) mail.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.msgs) == 0 {
		t.Fatal("no mail dispatched")
	}
	return o.msgs[len(o.msgs)-1]
}

type fixture struct {
	store  *memStore
	cache  *memCache
	outbox *outbox
	codec  *TokenCodec
	svc    *Service
	authn  *Authenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec, err := NewTokenCodec("test-secret", "HS256", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{store: newMemStore(), cache: &memCache{}, outbox: &outbox{}, codec: codec}
	logger := zap.NewNop().Sugar()
	f.svc = NewService(f.store, BcryptHasher{Cost: bcrypt.MinCost}, codec, f.outbox, "http://localhost:8000/api/", logger)
	f.authn = NewAuthenticator(codec, f.store, f.cache, logger)
	return f
}

var errBoom = errors.New("boom")
