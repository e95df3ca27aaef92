// Package validator wraps go-playground/validator with the rules shared by
// request payloads. Field names in failures follow the json tags.
package validator

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// addressPattern is the permissive e-mail shape accepted for accounts.
var addressPattern = regexp.MustCompile(`.+@.+\..+`)

var (
	once     sync.Once
	validate *validator.Validate
)

// ValidationError is one failed rule on one field.
type ValidationError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

func (e ValidationError) rule() string {
	if e.Param == "" {
		return e.Tag
	}
	return e.Tag + "=" + e.Param
}

// ValidationErrors collects failures in struct field order.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(v))
	for i, err := range v {
		parts[i] = err.Field + " failed on " + err.rule()
	}
	return strings.Join(parts, "; ")
}

// HasTag reports whether any failure was raised by tag.
func (v ValidationErrors) HasTag(tag string) bool {
	for _, err := range v {
		if err.Tag == tag {
			return true
		}
	}
	return false
}

// Fields maps each failing field to its first failed rule, e.g.
// {"password": "min=8"}.
func (v ValidationErrors) Fields() map[string]string {
	if len(v) == 0 {
		return nil
	}
	fields := make(map[string]string, len(v))
	for _, err := range v {
		if _, seen := fields[err.Field]; !seen {
			fields[err.Field] = err.rule()
		}
	}
	return fields
}

// ValidateStruct validates s. Rule failures come back as ValidationErrors;
// anything else (a nil or non-struct argument) is returned unchanged.
func ValidateStruct(s interface{}) error {
	err := instance().Struct(s)
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}

	failures := make(ValidationErrors, len(ve))
	for i, fe := range ve {
		failures[i] = ValidationError{Field: fe.Field(), Tag: fe.Tag(), Param: fe.Param()}
	}
	return failures
}

// IsEmailAddress applies the "address" rule outside struct validation.
func IsEmailAddress(value string) bool {
	return addressPattern.MatchString(strings.TrimSpace(value))
}

// RegisterValidation adds a custom rule to the shared validator.
func RegisterValidation(tag string, fn validator.Func) error {
	return instance().RegisterValidation(tag, fn)
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return fld.Name
	}
	return name
}

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
		_ = validate.RegisterValidation("address", func(fl validator.FieldLevel) bool {
			return IsEmailAddress(fl.Field().String())
		})
		// notblank rejects values that are only whitespace.
		_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})
	})
	return validate
}
