package services

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"museum-ticketing-platform/internal/models"
)

var validate = validator.New()

// validateStruct runs struct tag validation and converts failures into a
// VALIDATION_ERROR whose details map field names to the failed rule.
func validateStruct(message string, s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return models.NewValidationError(message, nil)
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldPath(fe.Namespace())] = fe.Tag()
	}
	return models.NewValidationError(message, details)
}

// fieldPath drops the struct name from a validator namespace: "Input.UserDetails.Email" -> "userDetails.email"
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToLower(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, ".")
}
