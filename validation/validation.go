// Package validation collects field violations as translation codes.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Basic validators
func NonNegativeFloat(field string, val float64, v Violations) {
	if val < 0 {
		v[field] = "must_not_be_negative"
	}
}

// MaxBytes flags values longer than n bytes. Unlike the `max` tag it counts
// bytes, not runes.
func MaxBytes(field, value string, n int, v Violations) {
	if _, exists := v[field]; !exists && len(value) > n {
		v[field] = "too_long"
	}
}

// Email only checks for an "@" between two non-empty parts; deliverability is not our concern.
func Email(field, value string, v Violations) {
	value = strings.TrimSpace(value)
	if value == "" {
		v[field] = "required"
		return
	}
	at := strings.Index(value, "@")
	if at <= 0 || at == len(value)-1 {
		v[field] = "invalid_email"
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func engine() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// report json names so violations match request fields
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Struct validates s using its `validate` tags and merges failures into v.
func Struct(s any, v Violations) error {
	err := engine().Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	for _, fe := range ve {
		field := fe.Field()
		if _, exists := v[field]; exists {
			continue
		}
		v[field] = codeFor(fe.Tag())
	}
	return nil
}

func codeFor(tag string) string {
	switch tag {
	case "required":
		return "required"
	case "email":
		return "invalid_email"
	case "min":
		return "too_short"
	case "max":
		return "too_long"
	case "gt":
		return "must_be_positive"
	case "gte":
		return "must_not_be_negative"
	default:
		return "invalid"
	}
}
