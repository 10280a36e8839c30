// Package respond writes JSON bodies and maps service errors to HTTP
// responses.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/apperr"
)

const maxBodyBytes = 1 << 20

var errBadPayload = apperr.New(apperr.ErrBadRequest, "invalid payload")

// Decode reads a JSON request body into v.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return nil
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Detail writes {"detail": msg}.
func Detail(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]any{"detail": msg})
}

// Message writes a 200 {"message": msg}.
func Message(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusOK, map[string]string{"message": msg})
}

// Error maps err to a response. Validation errors become 422 with per-field
// messages; unclassified errors are logged and hidden behind a generic 500.
func Error(w http.ResponseWriter, logger *zap.SugaredLogger, r *http.Request, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		JSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": verrs})
		return
	}

	status := apperr.Status(err)
	if status == http.StatusInternalServerError {
		logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		Detail(w, status, "internal server error")
		return
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	msg := apperr.Detail(err)
	if msg == "" {
		msg = http.StatusText(status)
	}
	logger.Debugw("request rejected", "path", r.URL.Path, "status", status, "err", err)
	Detail(w, status, msg)
}
