package forms

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report errors under the form field name rather than the Go field name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate runs struct validation on v and copies failures onto the matching
// form fields. It reports whether the form is valid.
func Validate(v any, form *Form) bool {
	err := validate.Struct(v)
	if err == nil {
		return form.Valid()
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		form.AddError("", err.Error())
		return false
	}
	for _, fe := range fieldErrs {
		form.AddError(fe.Field(), message(fe))
	}
	return false
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return "Ensure this value has at least " + fe.Param() + " characters."
	case "max":
		return "Ensure this value has at most " + fe.Param() + " characters."
	case "url":
		return "Enter a valid URL."
	default:
		return "Enter a valid value."
	}
}
