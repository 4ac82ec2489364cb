// Package validator wraps go-playground/validator with the rules and field
// naming the HTTP handlers rely on.
package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Validator struct {
	v *validator.Validate
}

// New returns a validator that reports fields by JSON name and knows the
// notblank rule (a string with at least one non-space character).
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	// Registration only fails for an empty tag.
	_ = v.RegisterValidation("notblank", notBlank)
	return &Validator{v: v}
}

func (val *Validator) Struct(s any) error { return val.v.Struct(s) }

func notBlank(fl validator.FieldLevel) bool {
	f := fl.Field()
	if f.Kind() != reflect.String {
		return !f.IsZero()
	}
	return strings.TrimSpace(f.String()) != ""
}

// FieldErrors flattens validation errors into field -> rule pairs for the
// response details. Anything other than a validation failure yields nil.
func FieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if p := fe.Param(); p != "" {
			rule += "=" + p
		}
		// Drop the root struct name: "CreateInspectionRequest.items[0].itemName".
		_, field, found := strings.Cut(fe.Namespace(), ".")
		if !found {
			field = fe.Namespace()
		}
		out[field] = rule
	}
	return out
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}
