package forms

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrFieldRequired is returned when a model instance field is empty.
	ErrFieldRequired = errors.New("forms: this field is required")
	// ErrInvalidChoice is returned when the submitted id matches no instance.
	ErrInvalidChoice = errors.New("forms: select a valid choice")
)

// Styler applies install-wide defaults to forms.
type Styler struct {
	// DefaultInputClass is used when SetInputAttrs receives no class.
	DefaultInputClass string
}

// SetInputAttrs sets the class attribute on every text-style field.
func (s Styler) SetInputAttrs(form *Form, attrs map[string]string) {
	class, ok := attrs["class"]
	if !ok {
		class = s.DefaultInputClass
	}
	for _, field := range form.Fields() {
		if field.TextStyle {
			field.SetAttr("class", class)
		}
	}
}

// SetInputPlaceholderLabels uses each text-style field's label as placeholder.
func SetInputPlaceholderLabels(form *Form) {
	for _, field := range form.Fields() {
		if field.TextStyle {
			field.SetAttr("placeholder", field.Label)
		}
	}
}

// LookupFunc loads a model instance by primary key. A nil result without
// error means no instance exists.
type LookupFunc[T any] func(ctx context.Context, id int64) (*T, error)

// CleanModelInstanceField resolves the id submitted in the named field to a
// model instance. Field errors are recorded on the form as well as returned.
func CleanModelInstanceField[T any](ctx context.Context, form *Form, name string, lookup LookupFunc[T]) (*T, error) {
	raw := strings.TrimSpace(form.Value(name))
	if raw == "" {
		form.AddError(name, "This field is required.")
		return nil, ErrFieldRequired
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		form.AddError(name, "Select a valid choice.")
		return nil, fmt.Errorf("%w: %q", ErrInvalidChoice, raw)
	}
	instance, err := lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		form.AddError(name, "Select a valid choice.")
		return nil, fmt.Errorf("%w: id %d", ErrInvalidChoice, id)
	}
	return instance, nil
}
