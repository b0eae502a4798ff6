package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Validator wraps validator.Validate with decimal-aware tags:
// dgt0 (> 0), dgte0 (>= 0) and dplaces=N (at most N decimal places).
type Validator struct {
	v *validator.Validate
}

// NewValidator constructs a Validator with the custom tags registered.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// decimals are validated through their string form
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.String()
		}
		return nil
	}, decimal.Decimal{})
	_ = v.RegisterValidation("dgt0", func(fl validator.FieldLevel) bool {
		d, ok := decimalValue(fl)
		return ok && d.IsPositive()
	})
	_ = v.RegisterValidation("dgte0", func(fl validator.FieldLevel) bool {
		d, ok := decimalValue(fl)
		return ok && !d.IsNegative()
	})
	_ = v.RegisterValidation("dplaces", func(fl validator.FieldLevel) bool {
		d, ok := decimalValue(fl)
		if !ok {
			return false
		}
		places, err := strconv.ParseInt(fl.Param(), 10, 32)
		return err == nil && shared.FitsPlaces(d, int32(places))
	})
	return &Validator{v: v}
}

// Struct validates s and converts failures into a field error map.
func (val *Validator) Struct(s any) map[string]string {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return map[string]string{"_": err.Error()}
	}
	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fieldPath(fe)] = message(fe)
	}
	return out
}

// ValidationProblem writes a 400 problem listing field errors.
func ValidationProblem(w http.ResponseWriter, fields map[string]string) {
	JSON(w, http.StatusBadRequest, ProblemDetail{
		Type:   "validation",
		Title:  "Validation Failed",
		Status: http.StatusBadRequest,
		Errors: fields,
	})
}

func decimalValue(fl validator.FieldLevel) (decimal.Decimal, bool) {
	if fl.Field().Kind() != reflect.String {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "dgt0":
		return "must be greater than zero"
	case "dgte0":
		return "must not be negative"
	case "gt", "gte", "lt", "lte", "min", "max", "len":
		return fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param())
	case "dplaces":
		return "must have at most " + fe.Param() + " decimal places"
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "is invalid"
}
