// Package validate checks input structs and reports every violated field as
// an apperr.ValidationError. Field names follow the json tags.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"dompet/models"
	"dompet/pkg/apperr"

	"github.com/go-playground/validator/v10"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = val.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		switch c := fl.Field().Interface().(type) {
		case models.Category:
			return c.Valid()
		case string:
			return models.Category(c).Valid()
		}
		return false
	})
	return val
}

// Struct validates s and runs the extra checks against the same error, so
// cross-field rules end up in one field list. It returns nil or an
// *apperr.ValidationError.
func Struct(s any, extra ...func(*apperr.ValidationError)) error {
	out := &apperr.ValidationError{}
	if err := v.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperr.Internal("validation setup", err)
		}
		for _, fe := range verrs {
			out.Fields = append(out.Fields, apperr.FieldError{Field: fe.Field(), Message: message(fe)})
		}
	}
	for _, check := range extra {
		check(out)
	}
	return out.Err()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "category":
		return "must be one of " + CategoryList()
	}
	return "is invalid (" + fe.Tag() + ")"
}

// CategoryList renders the category enumeration for messages.
func CategoryList() string {
	names := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
