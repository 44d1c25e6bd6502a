package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidContext wraps every EvaluationContext validation failure.
var ErrInvalidContext = errors.New("invalid evaluation context")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxMessageContentLen
	})
	return v
}

// ValidateContext checks an EvaluationContext before it reaches the evaluator.
// The returned error wraps ErrInvalidContext and names every failing field.
func ValidateContext(ec EvaluationContext) error {
	if err := validate.Struct(ec); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrInvalidContext, err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describe(fe))
		}
		return fmt.Errorf("%w: %s", ErrInvalidContext, strings.Join(msgs, "; "))
	}
	return nil
}

// ValidateTokenRequest checks the body of POST /auth/token.
func ValidateTokenRequest(req AuthTokenRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("client_id and api_key are required")
	}
	return ValidateClientID(req.ClientID)
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "maxbytes":
		return fmt.Sprintf("%s exceeds %d bytes", field, MaxMessageContentLen)
	case "max":
		return fmt.Sprintf("%s exceeds maximum of %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
