// Package validation wraps a singleton go-playground validator with the
// custom rules used by listing payloads.
package validation

import (
	"errors"
	"math"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/models"
)

var phonePattern = regexp.MustCompile(`^\d{10}$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = validate.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
			return ValidPhone(fl.Field().String())
		})
		_ = validate.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
			v := fl.Field().Float()
			return !math.IsNaN(v) && !math.IsInf(v, 0)
		})
	})
	return validate
}

// ValidPhone reports whether s is exactly ten ASCII digits.
func ValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// Struct validates s and converts the first failure into an
// *apperr.ValidationError naming the JSON field.
func Struct(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	return &apperr.ValidationError{Field: fe.Field(), Message: message(fe)}
}

// Listing validates a create payload after trimming text fields.
func Listing(f *models.ListingFields) error {
	f.Title = strings.TrimSpace(f.Title)
	f.Locality = strings.TrimSpace(f.Locality)
	f.Phone = strings.TrimSpace(f.Phone)
	f.Role = strings.ToLower(strings.TrimSpace(f.Role))
	if f.ImageURL != nil && strings.TrimSpace(*f.ImageURL) == "" {
		f.ImageURL = nil
	}
	return Struct(f)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "phone10":
		return "must be a 10 digit number"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "finite":
		return "must be a finite coordinate"
	case "http_url":
		return "must be an http or https URL"
	}
	return "failed " + fe.Tag()
}
