package maintenance

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates no stored definition for the identifier.
	ErrNotFound = errors.New("maintenance: event not found")
	// ErrEventDisabled indicates the definition exists but no runtime is
	// loaded for it, so state operations cannot be applied.
	ErrEventDisabled = errors.New("maintenance: event runtime not loaded")
)

// FieldError attributes a validation message to one definition field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every field violation found while validating a
// definition, so callers can report them all at once.
type ValidationError struct {
	Fields []FieldError
}

// Add appends a field violation.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// AddError appends a field violation from an error.
func (e *ValidationError) AddError(field string, err error) {
	if err == nil {
		return
	}
	e.Add(field, err.Error())
}

// HasErrors reports whether any violation was recorded.
func (e *ValidationError) HasErrors() bool {
	return e != nil && len(e.Fields) > 0
}

// Err returns the collected error, or nil when validation passed.
func (e *ValidationError) Err() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// Error implements error.
func (e *ValidationError) Error() string {
	if !e.HasErrors() {
		return "maintenance: validation passed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field.Field, field.Message))
	}
	return "maintenance: invalid definition: " + strings.Join(parts, "; ")
}
