package handler

import (
    "errors"
    "fmt"
    "reflect"
    "strings"

    "github.com/go-playground/validator/v10"
)

// RequestValidator plugs go-playground/validator into echo (e.Validator).
// Besides the built-in tags it knows has_upper and has_digit, which together
// with min=8 make up the password policy.
type RequestValidator struct {
    v *validator.Validate
}

// NewValidator builds the validator with the custom password tags.
func NewValidator() *RequestValidator {
    v := validator.New(validator.WithRequiredStructEnabled())
    v.RegisterTagNameFunc(func(f reflect.StructField) string {
        name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
        if name == "-" {
            return ""
        }
        return name
    })
    _ = v.RegisterValidation("has_upper", func(fl validator.FieldLevel) bool {
        return strings.IndexFunc(fl.Field().String(), func(r rune) bool { return r >= 'A' && r <= 'Z' }) >= 0
    })
    _ = v.RegisterValidation("has_digit", func(fl validator.FieldLevel) bool {
        return strings.ContainsAny(fl.Field().String(), "0123456789")
    })
    return &RequestValidator{v: v}
}

// ValidationError lists every failed field as "field: problem", comma
// separated.
type ValidationError struct {
    Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i interface{}) error {
    err := rv.v.Struct(i)
    if err == nil {
        return nil
    }
    var fields validator.ValidationErrors
    if !errors.As(err, &fields) {
        return err
    }
    msgs := make([]string, 0, len(fields))
    for _, fe := range fields {
        msgs = append(msgs, fe.Field()+": "+describe(fe))
    }
    return &ValidationError{Message: strings.Join(msgs, ", ")}
}

func describe(fe validator.FieldError) string {
    switch fe.Tag() {
    case "required":
        return "is required"
    case "email":
        return "must be a valid email"
    case "min":
        return fmt.Sprintf("must be at least %s characters", fe.Param())
    case "has_upper":
        return "must contain at least one uppercase letter"
    case "has_digit":
        return "must contain at least one digit"
    case "oneof":
        return "must be one of '" + strings.Join(strings.Fields(fe.Param()), "', '") + "'"
    default:
        return "is invalid"
    }
}
