package util

import "fmt"

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// RequireString returns m[field] as a string or a ValidationError when the key
// is missing or holds another type.
func RequireString(m map[string]any, field string) (string, error) {
	v, ok := m[field]
	if !ok {
		return "", &ValidationError{Field: field, Message: "required field is missing"}
	}

	s, ok := v.(string)
	if !ok {
		return "", &ValidationError{Field: field, Value: v, Message: fmt.Sprintf("expected string, got %T", v)}
	}

	return s, nil
}

// OptionalObject returns m[field] as an object. Missing keys are reported,
// explicit null yields an empty object.
func OptionalObject(m map[string]any, field string) (map[string]any, error) {
	v, ok := m[field]
	if !ok {
		return nil, &ValidationError{Field: field, Message: "required field is missing"}
	}

	switch t := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	default:
		return nil, &ValidationError{Field: field, Value: v, Message: fmt.Sprintf("expected object, got %T", v)}
	}
}
