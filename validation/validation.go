// Package validation checks models against their struct tags and reports
// failures as field to message-key maps.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"

	"greenhouse/apperr"
	"greenhouse/models"
)

var (
	identifierPattern = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z_\-$0-9]*$`)
	keyPattern        = regexp.MustCompile(`^[a-zA-Z_$][a-zA-Z_$0-9]*$`)
)

// Validator wraps a configured go-playground validator. It is safe for
// concurrent use.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("identifier", matches(identifierPattern))
	_ = v.RegisterValidation("keyname", matches(keyPattern))
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return slices.Contains(models.Categories, fl.Field().String())
	})
	return &Validator{v: v}
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// Struct validates s. A failure is returned as an apperr validation error
// keyed by the json path of each offending field.
func (val *Validator) Struct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Internal("validate", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe.Namespace())] = message(fe.Tag())
	}
	return apperr.Validation(fields)
}

// fieldPath drops the struct type name validator puts first.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(tag string) string {
	switch tag {
	case "required":
		return "validation.required"
	case "identifier", "keyname":
		return "validation.regex"
	case "oneof", "category", "gte", "lte", "min", "max":
		return "validation.option"
	default:
		return "validation." + tag
	}
}
