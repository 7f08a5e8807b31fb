package server

import "github.com/go-playground/validator/v10"

type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a validator backed by go-playground/validator.
func NewValidator() *CustomValidator {
	v := validator.New()
	return &CustomValidator{validator: v}
}

// Validate runs struct tag validation.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// Validator exposes the underlying instance for non-HTTP validation.
func (cv *CustomValidator) Validator() *validator.Validate {
	return cv.validator
}
