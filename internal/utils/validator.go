// internal/utils/validator.go
package utils

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/javajoker/imi-licensing/internal/apperrors"
)

var validate *validator.Validate

var durationPattern = regexp.MustCompile(`^(perpetual|[1-9][0-9]*[dmy])$`)

func init() {
	validate = validator.New()
	// min/max/gte apply to decimals through their float value
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	validate.RegisterValidation("license_duration", validateLicenseDuration)
	validate.RegisterValidation("option_map", validateOptionMap)
}

// ValidateStruct checks validate tags and reports failures as a ValidationError
// carrying one entry per field.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	fields := GetValidationErrors(err)
	if len(fields) == 0 {
		return apperrors.Validation("%v", err)
	}
	return apperrors.ValidationFields("invalid input", fields)
}

func validateLicenseDuration(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == "" || durationPattern.MatchString(value)
}

func validateOptionMap(fl validator.FieldLevel) bool {
	iter := fl.Field().MapRange()
	for iter.Next() {
		if strings.TrimSpace(iter.Key().String()) == "" {
			return false
		}
	}
	return true
}

func GetValidationErrors(err error) []apperrors.FieldError {
	var fields []apperrors.FieldError

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			fields = append(fields, apperrors.FieldError{
				Field:   strings.ToLower(e.Field()),
				Message: getValidationMessage(e),
			})
		}
	}

	return fields
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "gt":
		return e.Field() + " must be greater than " + e.Param()
	case "gte":
		return e.Field() + " must be " + e.Param() + " or more"
	case "lte":
		return e.Field() + " must be " + e.Param() + " or less"
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "url":
		return e.Field() + " must be a URL"
	case "license_duration":
		return "Duration must be 'perpetual' or a count followed by d, m or y (e.g. 12m)"
	case "option_map":
		return "Option names must not be blank"
	default:
		return e.Field() + " is invalid"
	}
}
