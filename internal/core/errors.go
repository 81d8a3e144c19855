package core

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownOperation = errors.New("unknown import operation")
	ErrConfig           = errors.New("invalid operation configuration")
	ErrNoProcessor      = errors.New("no row processor defined")
	ErrRunNotStarted    = errors.New("import run not started")
	ErrRunFinished      = errors.New("import run already finished")
	ErrBeforeImport     = errors.New("before-import hook rejected the run")
	ErrEntityNotFound   = errors.New("entity not found")
	ErrDuplicateEntity  = errors.New("entity already exists")
	ErrFileNotFound     = errors.New("uploaded file not found")
	ErrTooManyBatches   = errors.New("too many concurrent batches, please try again later")
	ErrInvalidOffset    = errors.New("invalid batch offset")
	ErrRemoteFetch      = errors.New("remote file could not be fetched")
)

// ErrorCode classifies a row-scoped failure.
type ErrorCode string

const (
	CodeRequired        ErrorCode = "required_field"
	CodeInvalidNumber   ErrorCode = "invalid_number"
	CodeInvalidInteger  ErrorCode = "invalid_integer"
	CodeInvalidEmail    ErrorCode = "invalid_email"
	CodeInvalidURL      ErrorCode = "invalid_url"
	CodeInvalidCurrency ErrorCode = "invalid_currency"
	CodeBelowMinimum    ErrorCode = "below_minimum"
	CodeAboveMaximum    ErrorCode = "above_maximum"
	CodeTooShort        ErrorCode = "too_short"
	CodeTooLong         ErrorCode = "too_long"
	CodeInvalidOption   ErrorCode = "invalid_option"
	CodeInvalidPattern  ErrorCode = "invalid_pattern"
	CodeNotFound        ErrorCode = "not_found"
	CodeValidation      ErrorCode = "validation_failed"
	CodeProcessing      ErrorCode = "processing_failed"
)

// FieldError is a failure attributable to a single field value.
type FieldError struct {
	Code    ErrorCode
	Field   string
	Label   string
	Value   any
	Message string
	Err     error
}

func (e *FieldError) Error() string { return e.Message }

func (e *FieldError) Unwrap() error { return e.Err }

func fieldErrorf(f FieldDefinition, code ErrorCode, value any, format string, args ...any) *FieldError {
	return &FieldError{
		Code:    code,
		Field:   f.Key,
		Label:   f.DisplayLabel(),
		Value:   value,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsNotFound reports whether err is an entity-not-found field failure.
func IsNotFound(err error) bool {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Code == CodeNotFound
	}
	return errors.Is(err, ErrEntityNotFound)
}

// IsRowError reports whether err fails only the current row rather than the batch.
func IsRowError(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe)
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}
