package user

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/respond"
)

// multipart framing allowance on top of the file itself
const formOverhead = 1 << 20

var errNoFile = apperr.New(apperr.ErrBadRequest, "file is required")

// Handler exposes the /users endpoints. Routes are mounted behind
// auth.RequireUser or auth.RequireAdmin.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Me returns the signed-in user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFromContext(r.Context())
	respond.JSON(w, http.StatusOK, u)
}

// UpdateAvatar takes a multipart "file" field. The content type is sniffed
// from the data, not taken from the client.
func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, MaxAvatarBytes+formOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.logger.Debugw("avatar form rejected", "err", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(w, h.logger, r, ErrAvatarTooLarge)
			return
		}
		respond.Error(w, h.logger, r, errNoFile)
		return
	}
	defer file.Close()

	// the S3 client signs a seekable body; rewind after sniffing
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		respond.Error(w, h.logger, r, fmt.Errorf("read avatar: %w", err))
		return
	}
	contentType := http.DetectContentType(head[:n])
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		respond.Error(w, h.logger, r, fmt.Errorf("rewind avatar: %w", err))
		return
	}

	updated, err := h.svc.UpdateAvatar(r.Context(), u, file, header.Size, contentType)
	if err != nil {
		respond.Error(w, h.logger, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, updated)
}
