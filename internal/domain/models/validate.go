package models

import (
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(DecimalValue, decimal.Decimal{})
	return v
}

// DecimalValue exposes a decimal to validator tags (gte, gt, ...) as float64.
func DecimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

// Validate runs struct-tag validation with the domain type registrations.
func Validate(s interface{}) error {
	return validate.Struct(s)
}
