package models

import (
	"errors"
	"strings"
)

// ErrServerNotFound is returned by lookups with no matching server record.
var ErrServerNotFound = errors.New("server not found")

// ValidationError reports which request fields failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid fields: " + strings.Join(e.Fields, ", ")
}

// NewValidationError creates a ValidationError for the named fields.
func NewValidationError(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}
