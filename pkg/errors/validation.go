package errors

import (
	"fmt"
	"time"
)

// ValidationErrorData contains structured data for validation errors
type ValidationErrorData struct {
	Field      string      `json:"field"`
	Value      interface{} `json:"value,omitempty"`
	Expected   string      `json:"expected"`
	Constraint string      `json:"constraint,omitempty"`
}

// Validation creates the error for a request rejected on the client before
// it was sent. Such errors never reach the retry loop.
func Validation(message string, cause error) *SdkError {
	return &SdkError{
		kind:    UnknownError,
		message: message,
		cause:   cause,
	}
}

// Validationf creates a validation error with formatting
func Validationf(format string, args ...interface{}) *SdkError {
	return Validation(fmt.Sprintf(format, args...), nil)
}

// InvalidField creates a validation error for a single request field
func InvalidField(field string, value interface{}, expected string) *SdkError {
	return Validation(
		fmt.Sprintf("invalid %s: expected %s", field, expected),
		nil,
	).withData(&ValidationErrorData{
		Field:    field,
		Value:    value,
		Expected: expected,
	})
}

// ValidateResourceName checks a cache or topic name
func ValidateResourceName(field, name string) *SdkError {
	if name == "" {
		return InvalidField(field, name, "a non-empty name")
	}
	for _, r := range name {
		if r == ' ' || r == '\t' || r == '\n' {
			return InvalidField(field, name, "a name without whitespace")
		}
	}
	return nil
}

// ValidateKey checks a cache key
func ValidateKey(key []byte) *SdkError {
	if len(key) == 0 {
		return InvalidField("key", key, "a non-empty key")
	}
	return nil
}

// ValidateTTL checks an optional time-to-live; zero means the server default
func ValidateTTL(ttl time.Duration) *SdkError {
	if ttl < 0 {
		return InvalidField("ttl", ttl, "a non-negative duration")
	}
	return nil
}
