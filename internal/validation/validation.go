// Package validation wraps go-playground/validator with readable messages.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their serialized names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "yaml"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// Error lists every field-level violation found in one struct.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// IsValidation reports whether err is (or wraps) a validation Error.
func IsValidation(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

// Struct validates s against its validate tags.
func Struct(s any) error {
	if err := validate.Struct(s); err != nil {
		return format(err)
	}
	return nil
}

// Problemf builds a single-problem validation Error for checks tags cannot express.
func Problemf(format string, args ...any) *Error {
	return &Error{Problems: []string{fmt.Sprintf(format, args...)}}
}

func format(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &Error{}
	for _, fe := range fieldErrs {
		out.Problems = append(out.Problems, formatFieldError(fe))
	}
	return out
}

func formatFieldError(e validator.FieldError) string {
	field := fieldPath(e.Namespace())

	switch e.Tag() {
	case "required", "required_unless":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be > %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
