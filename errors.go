package trifleachievements

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind identifies one of the classified failure kinds.
type ErrorKind int

const (
	KindStorage ErrorKind = iota
	KindQuotaExceeded
	KindImportValidation
	KindConfiguration
	KindSync
)

// Machine-readable error codes.
const (
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeImportValidation = "IMPORT_VALIDATION_ERROR"
	CodeStorage          = "STORAGE_ERROR"
	CodeConfiguration    = "CONFIGURATION_ERROR"
	CodeSync             = "SYNC_ERROR"
)

func (k ErrorKind) String() string {
	switch k {
	case KindQuotaExceeded:
		return "QuotaExceeded"
	case KindImportValidation:
		return "ImportValidation"
	case KindConfiguration:
		return "Configuration"
	case KindSync:
		return "Sync"
	default:
		return "Storage"
	}
}

// Code returns the machine-readable code for the kind.
func (k ErrorKind) Code() string {
	switch k {
	case KindQuotaExceeded:
		return CodeQuotaExceeded
	case KindImportValidation:
		return CodeImportValidation
	case KindConfiguration:
		return CodeConfiguration
	case KindSync:
		return CodeSync
	default:
		return CodeStorage
	}
}

// Error is a classified storage failure. It is created at the point of failure
// and never mutated afterwards.
type Error struct {
	Kind        ErrorKind
	Code        string
	Message     string
	Recoverable bool
	Remedy      string
	Cause       error

	// BytesNeeded is set for KindQuotaExceeded.
	BytesNeeded int64
	// ValidationErrors is set for KindImportValidation.
	ValidationErrors []string
	// StatusCode is set for KindSync when a response was received.
	StatusCode int
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a classified error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// NewQuotaExceededError reports that local persistence ran out of space.
func NewQuotaExceededError(bytesNeeded int64, cause error) *Error {
	return &Error{
		Kind:        KindQuotaExceeded,
		Code:        CodeQuotaExceeded,
		Message:     fmt.Sprintf("Storage quota exceeded. Need %d more bytes.", bytesNeeded),
		Recoverable: true,
		Remedy:      "Clear old achievement data or free up storage space.",
		Cause:       cause,
		BytesNeeded: bytesNeeded,
	}
}

// NewImportValidationError reports that supplied import data failed validation.
func NewImportValidationError(validationErrors []string) *Error {
	msgs := append([]string(nil), validationErrors...)
	return &Error{
		Kind:             KindImportValidation,
		Code:             CodeImportValidation,
		Message:          "Import validation failed: " + strings.Join(msgs, ", "),
		Recoverable:      true,
		Remedy:           "Check that the imported data was exported from a compatible version.",
		ValidationErrors: msgs,
	}
}

// NewStorageError reports a generic persistence failure.
func NewStorageError(message string, cause error) *Error {
	return &Error{
		Kind:        KindStorage,
		Code:        CodeStorage,
		Message:     message,
		Recoverable: true,
		Remedy:      "Check storage availability and retry.",
		Cause:       cause,
	}
}

// NewConfigurationError reports an invalid setup. It is never retried.
func NewConfigurationError(message string) *Error {
	return &Error{
		Kind:        KindConfiguration,
		Code:        CodeConfiguration,
		Message:     message,
		Recoverable: false,
		Remedy:      "Fix the storage configuration before retrying.",
	}
}

// NewSyncError reports a network or remote failure. statusCode is zero when no
// response was received.
func NewSyncError(message string, statusCode int, cause error) *Error {
	return &Error{
		Kind:        KindSync,
		Code:        CodeSync,
		Message:     message,
		Recoverable: true,
		Remedy:      "Check your connection; changes will sync when the server is reachable.",
		Cause:       cause,
		StatusCode:  statusCode,
	}
}

// AsError extracts a classified error from err's chain.
func AsError(err error) (*Error, bool) {
	var classified *Error
	if errors.As(err, &classified) && classified != nil {
		return classified, true
	}
	return nil, false
}

// IsAchievementError reports whether err is a classified error.
func IsAchievementError(err error) bool {
	_, ok := AsError(err)
	return ok
}

// IsRecoverable reports whether err is a classified error that may be retried.
func IsRecoverable(err error) bool {
	classified, ok := AsError(err)
	return ok && classified.Recoverable
}

// classify passes classified errors through unchanged and wraps anything else
// as a Storage error.
func classify(err error, message string) *Error {
	if err == nil {
		return nil
	}
	if classified, ok := AsError(err); ok {
		return classified
	}
	if message == "" {
		message = err.Error()
	}
	return NewStorageError(message, err)
}
