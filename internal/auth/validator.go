package auth

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// max counts runes; bcrypt counts bytes.
	_ = v.RegisterValidation("bcryptlen", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= maxPasswordBytes
	})
	return v
}

// Credentials is the body of the register and login endpoints.
type Credentials struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Password string `json:"password" validate:"required,min=6,max=72,bcryptlen"`
}

// Normalize trims the username. Passwords are taken verbatim.
func (c Credentials) Normalize() Credentials {
	c.Username = strings.TrimSpace(c.Username)
	return c
}

// ValidateCredentials checks length limits. bcrypt rejects input past 72
// bytes, so longer passwords are refused here as a validation error.
func ValidateCredentials(c Credentials) error {
	return validate.Struct(c)
}

// ValidationMessage turns a validator error into a short client message.
func ValidationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "invalid request"
	}
	fe := errs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "bcryptlen":
		return field + " must be at most 72 bytes"
	default:
		return field + " is invalid"
	}
}
