package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"pulsemetrics/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	for tag, values := range enumTags {
		values := values
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return values.has(fl.Field().String())
		}); err != nil {
			panic(fmt.Sprintf("schema: register %q: %v", tag, err))
		}
	}
	return v
}

// check runs the struct rules plus any extra violations and folds them into
// a single validation error. It returns nil when nothing is violated.
func check(v any, extra ...apperr.FieldError) error {
	fields := structViolations(v)
	fields = append(fields, extra...)
	if len(fields) == 0 {
		return nil
	}
	return apperr.Validation("invalid input", fields...)
}

func structViolations(v any) []apperr.FieldError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []apperr.FieldError{{Field: "body", Rule: "invalid", Message: err.Error()}}
	}
	out := make([]apperr.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, apperr.FieldError{
			Field:   fieldPath(fe.Namespace()),
			Rule:    fe.Tag(),
			Message: describe(fe),
		})
	}
	return out
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be <= " + fe.Param()
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be >= " + fe.Param()
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "gtfield":
		return "must be after " + fe.Param()
	}
	if allowed := Allowed(fe.Tag()); allowed != nil {
		return "must be one of: " + strings.Join(allowed, ", ")
	}
	return "failed rule " + fe.Tag()
}
