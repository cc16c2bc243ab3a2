package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Invalid("phone", "must be 10 digits"), http.StatusBadRequest},
		{"location", ErrLocationRequired, http.StatusBadRequest},
		{"auth", ErrAuthRequired, http.StatusUnauthorized},
		{"quota wrapped", fmt.Errorf("create listing: %w", ErrQuotaExceeded), http.StatusConflict},
		{"permission", ErrPermission, http.StatusForbidden},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"upload rejected", &UploadError{Reason: "unsupported content type"}, http.StatusUnprocessableEntity},
		{"upload store failure", &UploadError{Reason: "store write", Err: errors.New("quota")}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestFromCodeRoundTrip(t *testing.T) {
	for _, err := range []error{ErrAuthRequired, ErrLocationRequired, ErrQuotaExceeded, ErrPermission, ErrNotFound, ErrSubmitInProgress} {
		b := NewBody(err)
		assert.ErrorIs(t, FromCode(b.Code, b.Field, b.Error), err)
	}

	b := NewBody(Invalid("phone", "must be 10 digits"))
	var ve *ValidationError
	assert.True(t, errors.As(FromCode(b.Code, b.Field, b.Error), &ve))
	assert.Equal(t, "phone", ve.Field)
}

func TestNewBodyHidesInternalErrors(t *testing.T) {
	b := NewBody(errors.New("pq: connection refused"))
	assert.Equal(t, "INTERNAL", b.Code)
	assert.Equal(t, "internal error", b.Error)
}
