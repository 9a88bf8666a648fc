package service

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	dottedLegalID = regexp.MustCompile(`^\d{1,2}(\.\d{3}){2}-[\dkK]$`)
	plainLegalID  = regexp.MustCompile(`^\d{7,8}-[\dkK]$`)
)

// NewValidator returns a validator that reports json field names and knows
// the portal specific tags.
func NewValidator(policy EmailPolicy) *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	v.RegisterValidation("institutional_email", func(fl validator.FieldLevel) bool { //nolint:errcheck
		return policy.Accepts(fl.Field().String())
	})
	v.RegisterValidation("legal_id", func(fl validator.FieldLevel) bool { //nolint:errcheck
		return validLegalID(fl.Field().String())
	})
	v.RegisterValidation("year_window", func(fl validator.FieldLevel) bool { //nolint:errcheck
		return withinYearWindow(fl.Field().Int(), fl.Param(), time.Now().Year())
	})
	return v
}

func validLegalID(value string) bool {
	value = strings.TrimSpace(value)
	return dottedLegalID.MatchString(value) || plainLegalID.MatchString(value)
}

// withinYearWindow checks year against "min:ahead", accepting min..current+ahead.
func withinYearWindow(year int64, param string, current int) bool {
	parts := strings.SplitN(param, ":", 2)
	if len(parts) != 2 {
		return false
	}
	minYear, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	ahead, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	return year >= int64(minYear) && year <= int64(current+ahead)
}
