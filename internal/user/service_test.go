package user

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/repo"
)

type fakeImages struct {
	publicID    string
	contentType string
	body        string
	seekable    bool
	err         error
}

func (f *fakeImages) Upload(_ context.Context, body io.Reader, _ int64, contentType, publicID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	_, f.seekable = body.(io.ReadSeeker)
	b, _ := io.ReadAll(body)
	f.body, f.contentType, f.publicID = string(b), contentType, publicID
	return "https://cdn.example.com/" + publicID, nil
}

type fakeStore struct {
	email, url string
	err        error
}

func (f *fakeStore) SetAvatar(_ context.Context, email, url string) (*entity.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.email, f.url = email, url
	return &entity.User{ID: 1, Username: "root", Email: email, Avatar: &url, Role: entity.RoleAdmin}, nil
}

var root = &entity.User{ID: 1, Username: "root", Email: "root@x.com", Role: entity.RoleAdmin}

func TestUpdateAvatar(t *testing.T) {
	images, store := &fakeImages{}, &fakeStore{}
	svc := NewUserService(store, images, zap.NewNop().Sugar())

	u, err := svc.UpdateAvatar(context.Background(), root, strings.NewReader("img"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "RestApp/root", images.publicID)
	assert.Equal(t, "img", images.body)
	assert.Equal(t, "root@x.com", store.email)
	require.NotNil(t, u.Avatar)
	assert.Equal(t, "https://cdn.example.com/RestApp/root", *u.Avatar)
}

func TestUpdateAvatarRejects(t *testing.T) {
	svc := NewUserService(&fakeStore{}, &fakeImages{}, zap.NewNop().Sugar())
	tests := []struct {
		name        string
		size        int64
		contentType string
		want        error
	}{
		{"empty", 0, "image/png", ErrAvatarEmpty},
		{"too large", MaxAvatarBytes + 1, "image/png", ErrAvatarTooLarge},
		{"not an image", 10, "text/plain; charset=utf-8", ErrAvatarType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateAvatar(context.Background(), root, strings.NewReader("x"), tt.size, tt.contentType)
			require.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, apperr.ErrBadRequest)
		})
	}
}

func TestUpdateAvatarFailures(t *testing.T) {
	svc := NewUserService(&fakeStore{}, &fakeImages{err: errors.New("s3 down")}, zap.NewNop().Sugar())
	_, err := svc.UpdateAvatar(context.Background(), root, strings.NewReader("x"), 1, "image/png")
	require.ErrorContains(t, err, "s3 down")
	assert.Equal(t, 500, apperr.Status(err))

	svc = NewUserService(&fakeStore{err: userrepo.ErrNotFound}, &fakeImages{}, zap.NewNop().Sugar())
	_, err = svc.UpdateAvatar(context.Background(), root, strings.NewReader("x"), 1, "image/png")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateAvatar_NoImageHost(t *testing.T) {
	svc := NewUserService(&fakeStore{}, nil, zap.NewNop().Sugar())
	_, err := svc.UpdateAvatar(context.Background(), root, strings.NewReader("img"), 3, "image/png")
	require.ErrorIs(t, err, ErrNoImageHost)
}
