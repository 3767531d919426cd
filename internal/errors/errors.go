package errors

import (
	stderrors "errors"
	"fmt"

	"ptscore/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context, keeping the code of a wrapped AppError
// or deriving one from the domain sentinel it carries.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    GetCode(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the code of the outermost AppError in the chain, or a code
// derived from the domain sentinel errors.
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case err == nil:
		return ""
	case core.IsNotFoundError(err):
		return CodeNotFound
	case stderrors.Is(err, core.ErrMissingField), stderrors.Is(err, core.ErrMissingColumn):
		return CodeMissingField
	case stderrors.Is(err, core.ErrEmptyDataset):
		return CodeEmptyDataset
	case stderrors.Is(err, core.ErrNoUsableObservations):
		return CodeNoObservations
	case stderrors.Is(err, core.ErrInvalidValue), stderrors.Is(err, core.ErrUnsupportedFileFormat):
		return CodeInvalidInput
	}
	return CodeInternalError
}

// ExitCode maps an error to a process exit status: 2 for input problems,
// 3 for configuration, 1 for everything else.
func ExitCode(err error) int {
	switch GetCode(err) {
	case "":
		return 0
	case CodeMissingField, CodeEmptyDataset, CodeNoObservations, CodeInvalidInput:
		return 2
	case CodeConfigInvalid:
		return 3
	}
	return 1
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeStorageError    = "STORAGE_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeMissingField    = "MISSING_FIELD"
	CodeEmptyDataset    = "EMPTY_DATASET"
	CodeNoObservations  = "NO_USABLE_OBSERVATIONS"
	CodeExternalService = "EXTERNAL_SERVICE_ERROR"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{Code: CodeDatabaseError, Message: message, Cause: cause}
}

func StorageError(message string, cause error) *AppError {
	return &AppError{Code: CodeStorageError, Message: message, Cause: cause}
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code:    CodeExternalService,
		Message: fmt.Sprintf("%s service error", service),
		Cause:   cause,
	}
}
