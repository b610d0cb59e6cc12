// Package errors provides a lightweight structured error type (BotError)
// for category-based classification across handlers, store and scheduler.
package errors

import (
	"fmt"
)

// ErrorCategory represents the category of a checklistbot error for classification
type ErrorCategory string

const (
	// User-facing input and entitlement errors
	CategoryValidation ErrorCategory = "validation"
	CategoryCapability ErrorCategory = "capability"
	CategoryNotFound   ErrorCategory = "not_found"

	// Persistence errors
	CategoryCorruptData ErrorCategory = "corrupt_data"
	CategoryIO          ErrorCategory = "io"

	// Runtime and infrastructure errors
	CategoryConfig   ErrorCategory = "config"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// BotError is a structured error with category, severity, and context
type BotError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for BotError
type ContextFields map[string]any

// Error implements the error interface
func (e *BotError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *BotError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *BotError) WithContext(key string, value any) *BotError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new BotError
func New(category ErrorCategory, severity ErrorSeverity, message string) *BotError {
	return &BotError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new BotError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *BotError {
	return &BotError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if be, ok := err.(*BotError); ok {
		return be.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a BotError
func GetCategory(err error) ErrorCategory {
	if be, ok := err.(*BotError); ok {
		return be.Category
	}
	return CategoryInternal
}

// ValidationError creates a new validation error (rejected input, state unchanged)
func ValidationError(message string) *BotError {
	return &BotError{
		Category: CategoryValidation,
		Severity: SeverityWarning,
		Message:  message,
	}
}

// CapabilityError creates a new capability error (premium-gated operation denied)
func CapabilityError(message string) *BotError {
	return &BotError{
		Category: CategoryCapability,
		Severity: SeverityInfo,
		Message:  message,
	}
}

// NotFoundError creates a new not-found error (unknown checklist, task or user)
func NotFoundError(message string) *BotError {
	return &BotError{
		Category: CategoryNotFound,
		Severity: SeverityWarning,
		Message:  message,
	}
}

// CorruptDataError wraps a parse failure of the persisted store
func CorruptDataError(err error, message string) *BotError {
	return &BotError{
		Category: CategoryCorruptData,
		Severity: SeverityError,
		Message:  message,
		Cause:    err,
	}
}

// IOError wraps a filesystem failure during load or save
func IOError(err error, message string) *BotError {
	return &BotError{
		Category: CategoryIO,
		Severity: SeverityError,
		Message:  message,
		Cause:    err,
	}
}
