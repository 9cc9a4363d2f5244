package auth

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrInvalidToken = errors.New("auth: invalid token")
)

// PermissionError reports a caller lacking a required capability. It carries
// the denied capability and the caller subject so the boundary layer can log
// and audit the denial.
type PermissionError struct {
	Subject    string
	Capability string
}

// NewPermissionError constructs a PermissionError.
func NewPermissionError(subject, capability string) *PermissionError {
	return &PermissionError{Subject: subject, Capability: capability}
}

// Error implements error.
func (e *PermissionError) Error() string {
	return fmt.Sprintf("auth: subject %q denied capability %q", e.Subject, e.Capability)
}
