package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{New(ErrUnauthenticated, "x"), http.StatusUnauthorized},
		{New(ErrForbidden, "x"), http.StatusForbidden},
		{New(ErrConflict, "x"), http.StatusConflict},
		{New(ErrBadRequest, "x"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", New(ErrNotFound, "x")), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Status(tt.err), tt.err.Error())
	}
}

func TestDetail(t *testing.T) {
	err := fmt.Errorf("login: %w", New(ErrUnauthenticated, "Email not confirmed"))
	assert.Equal(t, "Email not confirmed", Detail(err))
	assert.True(t, errors.Is(err, ErrUnauthenticated))
	assert.Equal(t, "", Detail(errors.New("plain")))
}
