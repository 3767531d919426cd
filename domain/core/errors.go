package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrReportNotFound = fmt.Errorf("%w: report", ErrNotFound)

	// Input errors (abort the run)
	ErrEmptyDataset          = errors.New("input dataset is empty")
	ErrMissingField          = errors.New("required field missing")
	ErrMissingColumn         = errors.New("required column missing")
	ErrInvalidValue          = errors.New("invalid value")
	ErrNoUsableObservations  = errors.New("no usable observations")
	ErrUnsupportedFileFormat = errors.New("unsupported file format")
)

// NewMissingFieldError reports a record that lacks a required field.
func NewMissingFieldError(field string, row int) error {
	return fmt.Errorf("%w: %s (record %d)", ErrMissingField, field, row)
}

// NewMissingColumnError reports a tabular source without a required column.
func NewMissingColumnError(column string) error {
	return fmt.Errorf("%w: %s", ErrMissingColumn, column)
}

// NewInvalidValueError reports a cell that could not be interpreted.
func NewInvalidValueError(column string, row int, value string) error {
	return fmt.Errorf("%w: column %s row %d: %q", ErrInvalidValue, column, row, value)
}

// NewNoUsableObservationsError reports an analyte whose results are all absent.
func NewNoUsableObservationsError(analyte string, excluded int) error {
	return fmt.Errorf("%w for analyte %q (%d records without result)", ErrNoUsableObservations, analyte, excluded)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInputError reports whether err was caused by the input snapshot rather than the system.
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptyDataset) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrMissingColumn) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrNoUsableObservations)
}
