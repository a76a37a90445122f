package models

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the request's field rules. It does not normalize.
func (r *CourseRequest) Validate() error {
	return Validator().Struct(r)
}

// Validate checks the outline's structural shape.
func (o *Outline) Validate() error {
	return Validator().Struct(o)
}
