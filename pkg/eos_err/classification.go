// pkg/eos_err/classification.go
//
// Error classification with exit codes.

package eos_err

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies errors for appropriate handling
type ErrorCategory int

const (
	// CategorySystem - OS/filesystem issues (exit 1)
	CategorySystem ErrorCategory = iota
	// CategoryValidation - Input/config validation failures (exit 2)
	CategoryValidation
	// CategoryNetwork - Network/connectivity issues (exit 1)
	CategoryNetwork
	// CategoryUser - User cancelled/interrupted (exit 130)
	CategoryUser
	// CategoryInternal - Bugs in credsync itself (exit 3)
	CategoryInternal
	// CategoryDependency - Missing dependencies (exit 1)
	CategoryDependency
	// CategoryPermission - Permission denied (exit 1)
	CategoryPermission
)

func (c ErrorCategory) String() string {
	switch c {
	case CategorySystem:
		return "system"
	case CategoryValidation:
		return "validation"
	case CategoryNetwork:
		return "network"
	case CategoryUser:
		return "user"
	case CategoryInternal:
		return "internal"
	case CategoryDependency:
		return "dependency"
	case CategoryPermission:
		return "permission"
	default:
		return "unknown"
	}
}

// ExitCoder is implemented by errors that choose their own process exit code.
type ExitCoder interface {
	ExitCode() int
}

// ClassifiedError wraps an error with category and remediation info
type ClassifiedError struct {
	Category    ErrorCategory
	Message     string
	Cause       error
	Remediation []string
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	var sb strings.Builder

	sb.WriteString(e.Message)

	if e.Cause != nil && e.Cause.Error() != e.Message {
		sb.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Remediation) > 0 {
		sb.WriteString("\n\nHow to fix:")
		for i, step := range e.Remediation {
			sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, step))
		}
	}

	return sb.String()
}

// Unwrap returns the underlying error
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error category
func (e *ClassifiedError) ExitCode() int {
	switch e.Category {
	case CategoryUser:
		return 130 // Standard for SIGINT (Ctrl-C)
	case CategoryValidation:
		return 2
	case CategoryInternal:
		return 3
	default:
		return 1
	}
}

// GetExitCode extracts exit code from any error.
// Returns 0 for nil, the error's own code when it carries one, 1 otherwise.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var coder ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}

	return 1
}

// NewValidationError creates an error for input validation failures
func NewValidationError(message string, remediation ...string) error {
	return &ClassifiedError{
		Category:    CategoryValidation,
		Message:     message,
		Remediation: remediation,
	}
}

// NewDependencyError creates an error for missing dependencies
func NewDependencyError(dependency, operation string, remediation ...string) error {
	return &ClassifiedError{
		Category: CategoryDependency,
		Message: fmt.Sprintf("%s is required for %s but not found",
			dependency, operation),
		Remediation: remediation,
	}
}

// NewFilesystemError creates an error for filesystem issues
func NewFilesystemError(message string, cause error, remediation ...string) error {
	return &ClassifiedError{
		Category:    CategorySystem,
		Message:     message,
		Cause:       cause,
		Remediation: remediation,
	}
}

// NewPermissionError creates an error for permission issues
func NewPermissionError(resource, operation string, remediation ...string) error {
	return &ClassifiedError{
		Category: CategoryPermission,
		Message: fmt.Sprintf("permission denied: cannot %s %s",
			operation, resource),
		Remediation: remediation,
	}
}

// NewNetworkError creates an error for network issues
func NewNetworkError(message string, cause error, remediation ...string) error {
	return &ClassifiedError{
		Category:    CategoryNetwork,
		Message:     message,
		Cause:       cause,
		Remediation: remediation,
	}
}

// NewInternalError creates an error for credsync bugs
func NewInternalError(message string, cause error) error {
	return &ClassifiedError{
		Category: CategoryInternal,
		Message:  message,
		Cause:    cause,
		Remediation: []string{
			"This is likely a bug in credsync",
			"Re-run with LOG_LEVEL=DEBUG and include the log file in the report",
		},
	}
}

// CategoryOf returns the category of a classified error, or CategorySystem.
func CategoryOf(err error) ErrorCategory {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Category
	}
	return CategorySystem
}
