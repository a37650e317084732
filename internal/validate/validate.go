package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var Validate *validator.Validate

var otpPattern = regexp.MustCompile(`^[!-~]{1,32}$`)

func init() {
	Validate = validator.New()

	Validate.RegisterValidation("otpcode", validateOtpCode)
}

// validateOtpCode accepts up to 32 printable ASCII characters without spaces.
// Code length and alphabet are left to the server.
func validateOtpCode(fl validator.FieldLevel) bool {
	return otpPattern.MatchString(fl.Field().String())
}

type ErrorResponse struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Msg   string `json:"message"`
}

func ValidateStruct(s interface{}) []*ErrorResponse {
	var out []*ErrorResponse
	err := Validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []*ErrorResponse{{Tag: "invalid", Msg: err.Error()}}
	}
	for _, err := range verrs {
		var element ErrorResponse
		element.Field = err.Field()
		element.Tag = err.Tag()

		switch err.Tag() {
		case "required":
			element.Msg = fmt.Sprintf("'%s' is required.", element.Field)
		case "min":
			element.Msg = fmt.Sprintf("'%s' must be at least %s.", element.Field, err.Param())
		case "max":
			element.Msg = fmt.Sprintf("'%s' must be at most %s.", element.Field, err.Param())
		case "url":
			element.Msg = fmt.Sprintf("'%s' must be a valid URL.", element.Field)
		case "oneof":
			element.Msg = fmt.Sprintf("'%s' must be one of: %s.", element.Field, err.Param())
		case "timezone":
			element.Msg = fmt.Sprintf("'%s' must be an IANA time zone name.", element.Field)
		case "otpcode":
			element.Msg = fmt.Sprintf("'%s' must be 1 to 32 printable characters without spaces.", element.Field)
		default:
			element.Msg = fmt.Sprintf("'%s' failed validation for tag '%s'.", element.Field, element.Tag)
		}
		out = append(out, &element)
	}
	return out
}

// Struct validates s and folds the failures into one error.
func Struct(s interface{}) error {
	errs := ValidateStruct(s)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Msg)
	}
	return errors.New(strings.Join(msgs, " "))
}

// OTP reports whether code is a well-formed one-time code.
func OTP(code string) error {
	if err := Validate.Var(code, "required,otpcode"); err != nil {
		return fmt.Errorf("otp must be 1 to 32 printable characters without spaces")
	}
	return nil
}
