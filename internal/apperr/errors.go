// Package apperr holds the error taxonomy shared by the server and the
// client core, plus its HTTP mapping.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrAuthRequired     = errors.New("authentication required")
	ErrLocationRequired = errors.New("pick a location on the map")
	ErrQuotaExceeded    = errors.New("free listing limit reached")
	ErrPermission       = errors.New("not allowed to modify this listing")
	ErrNotFound         = errors.New("not found")
	ErrSubmitInProgress = errors.New("submission already in progress")
)

// ValidationError reports the first form field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Invalid is shorthand for a *ValidationError.
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// UploadError is returned when an image could not be stored. Err is nil
// when the upload was rejected before reaching the object store.
type UploadError struct {
	Reason string
	Err    error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload failed: %s: %v", e.Reason, e.Err)
	}
	return "upload failed: " + e.Reason
}

func (e *UploadError) Unwrap() error { return e.Err }

// Code returns the stable machine-readable code for err.
func Code(err error) string {
	var ve *ValidationError
	var ue *UploadError
	switch {
	case errors.As(err, &ve):
		return "VALIDATION_ERROR"
	case errors.As(err, &ue):
		return "UPLOAD_ERROR"
	case errors.Is(err, ErrAuthRequired):
		return "AUTH_REQUIRED"
	case errors.Is(err, ErrLocationRequired):
		return "LOCATION_REQUIRED"
	case errors.Is(err, ErrQuotaExceeded):
		return "QUOTA_EXCEEDED"
	case errors.Is(err, ErrPermission):
		return "PERMISSION_DENIED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrSubmitInProgress):
		return "SUBMIT_IN_PROGRESS"
	}
	return "INTERNAL"
}

// HTTPStatus maps err onto a response status.
func HTTPStatus(err error) int {
	var ue *UploadError
	if errors.As(err, &ue) {
		if ue.Err == nil {
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadGateway
	}
	switch Code(err) {
	case "VALIDATION_ERROR", "LOCATION_REQUIRED":
		return http.StatusBadRequest
	case "AUTH_REQUIRED":
		return http.StatusUnauthorized
	case "QUOTA_EXCEEDED", "SUBMIT_IN_PROGRESS":
		return http.StatusConflict
	case "PERMISSION_DENIED":
		return http.StatusForbidden
	case "NOT_FOUND":
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// FromCode rebuilds an error value from a wire code, so API clients see the
// same sentinels the server produced.
func FromCode(code, field, msg string) error {
	switch code {
	case "VALIDATION_ERROR":
		return &ValidationError{Field: field, Message: msg}
	case "UPLOAD_ERROR":
		return &UploadError{Reason: msg}
	case "AUTH_REQUIRED":
		return ErrAuthRequired
	case "LOCATION_REQUIRED":
		return ErrLocationRequired
	case "QUOTA_EXCEEDED":
		return ErrQuotaExceeded
	case "PERMISSION_DENIED":
		return ErrPermission
	case "NOT_FOUND":
		return ErrNotFound
	case "SUBMIT_IN_PROGRESS":
		return ErrSubmitInProgress
	}
	return errors.New(msg)
}

// Body is the JSON error envelope written by the HTTP handlers.
type Body struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// NewBody builds the envelope for err.
func NewBody(err error) Body {
	b := Body{Error: err.Error(), Code: Code(err)}
	var ve *ValidationError
	if errors.As(err, &ve) {
		b.Field = ve.Field
		b.Error = ve.Message
		if b.Error == "" {
			b.Error = ve.Error()
		}
	}
	var ue *UploadError
	if errors.As(err, &ue) {
		b.Error = ue.Reason
	}
	if b.Code == "INTERNAL" {
		b.Error = "internal error"
	}
	return b
}
