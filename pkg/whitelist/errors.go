package whitelist

import (
	"errors"
	"fmt"
)

// Error categories surfaced to transport shells.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrStorage           = errors.New("storage failure")
	ErrPartialSuccess    = errors.New("partial success")
)

// Domain-level error values returned by the services.
var (
	ErrInvalidRegion        = fmt.Errorf("%w: invalid region", ErrValidation)
	ErrInvalidUID           = fmt.Errorf("%w: invalid uid", ErrValidation)
	ErrInvalidTTL           = fmt.Errorf("%w: invalid ttl", ErrValidation)
	ErrInvalidUserID        = fmt.Errorf("%w: invalid user id", ErrValidation)
	ErrInvalidCoinAmount    = fmt.Errorf("%w: invalid coin amount", ErrValidation)
	ErrInvalidReason        = fmt.Errorf("%w: invalid reason", ErrValidation)
	ErrUIDNotFound          = fmt.Errorf("%w: uid not in partition", ErrNotFound)
	ErrMalformedRecord      = fmt.Errorf("%w: malformed record", ErrStorage)
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// StorageError marks err as a persistence failure unless it already is one.
func StorageError(subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return WrapError(errorOperationStore, subject, code, err)
	}
	return WrapError(errorOperationStore, subject, code, fmt.Errorf("%w: %w", ErrStorage, err))
}

// PartialSuccessError reports a paid add whose whitelist write landed but whose
// debit did not. The entry stays active and the caller was not charged.
type PartialSuccessError struct {
	Entry       Entry
	Whitelisted bool
	Charged     bool
	Cause       error
}

// Error returns the formatted error message.
func (partialError *PartialSuccessError) Error() string {
	return fmt.Sprintf("%v: uid %s whitelisted in %s (whitelisted=%t charged=%t): %v",
		ErrPartialSuccess, partialError.Entry.UID, partialError.Entry.Region, partialError.Whitelisted, partialError.Charged, partialError.Cause)
}

// Unwrap returns the debit failure.
func (partialError *PartialSuccessError) Unwrap() error {
	return partialError.Cause
}

// Is matches ErrPartialSuccess.
func (partialError *PartialSuccessError) Is(target error) bool {
	return target == ErrPartialSuccess
}
