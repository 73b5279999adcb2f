// Package validation holds the account field rules shared by the HTTP binding
// layer and the operator CLI.
package validation

import (
	"unicode"

	"github.com/go-playground/validator/v10"
)

// Register adds the "password" and "personname" tags to v.
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation("password", Password); err != nil {
		return err
	}
	return v.RegisterValidation("personname", PersonName)
}

// New returns a validator with the account tags registered.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// both tags are valid identifiers with non-nil funcs
	_ = Register(v)
	return v
}

// Password requires at least one letter and one digit.
func Password(fl validator.FieldLevel) bool {
	var letter, digit bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}

// PersonName allows letters and spaces only.
func PersonName(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if !unicode.IsLetter(r) && r != ' ' {
			return false
		}
	}
	return true
}
