package user

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/repo"
)

// MaxAvatarBytes caps an uploaded avatar.
const MaxAvatarBytes = 5 << 20

// avatarFolder prefixes every avatar object key.
const avatarFolder = "RestApp/"

var (
	ErrAvatarTooLarge = apperr.New(apperr.ErrBadRequest, "File is too large")
	ErrAvatarType     = apperr.New(apperr.ErrBadRequest, "File must be an image")
	ErrAvatarEmpty    = apperr.New(apperr.ErrBadRequest, "File is empty")

	// ErrNoImageHost means the server runs without object storage.
	ErrNoImageHost = errors.New("avatar storage not configured")
)

// ImageHost stores an image under publicID, replacing any previous one, and
// returns its public URL.
type ImageHost interface {
	Upload(ctx context.Context, body io.Reader, size int64, contentType, publicID string) (string, error)
}

// Store is the part of the user repository the profile endpoints need.
type Store interface {
	SetAvatar(ctx context.Context, email, url string) (*entity.User, error)
}

// UserService serves the profile of the signed-in user.
type UserService struct {
	repo   Store
	images ImageHost
	logger *zap.SugaredLogger
}

func NewUserService(r Store, images ImageHost, logger *zap.SugaredLogger) *UserService {
	return &UserService{repo: r, images: images, logger: logger}
}

// UpdateAvatar uploads body as u's avatar and stores the resulting URL.
func (s *UserService) UpdateAvatar(ctx context.Context, u *entity.User, body io.Reader, size int64, contentType string) (*entity.User, error) {
	switch {
	case size <= 0:
		return nil, ErrAvatarEmpty
	case size > MaxAvatarBytes:
		return nil, ErrAvatarTooLarge
	case !strings.HasPrefix(contentType, "image/"):
		return nil, ErrAvatarType
	}
	if s.images == nil {
		return nil, ErrNoImageHost
	}
	url, err := s.images.Upload(ctx, body, size, contentType, avatarFolder+u.Username)
	if err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}
	updated, err := s.repo.SetAvatar(ctx, u.Email, url)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, apperr.New(apperr.ErrNotFound, "User not found")
		}
		return nil, err
	}
	s.logger.Infow("avatar updated", "user_id", u.ID, "url", url)
	return updated, nil
}
