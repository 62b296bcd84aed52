package errs

import (
	"errors"
	"fmt"
	"time"
)

type ErrorMessage struct {
	Message string
}

func (e *ErrorMessage) Error() string { return e.Message }

type NotFoundError struct {
	ErrorMessage
}

type AlreadyExistsError struct {
	ErrorMessage
}

type ValidationError struct {
	ErrorMessage
}

// ConfigurationError marks a connection that cannot sync until the user fixes
// its credentials or settings.
type ConfigurationError struct {
	ErrorMessage
}

type DatabaseError struct {
	Operation string
	Message   string
	Err       error
}

func (e *DatabaseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Operation, e.Message, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// ExternalServiceError wraps a failed upstream call (plaid, vertex, ...).
// StatusCode is the HTTP status when the upstream reported one; RetryAfter is
// the provider supplied delay when present.
type ExternalServiceError struct {
	Service    string
	Message    string
	StatusCode int
	Transient  bool
	RetryAfter time.Duration
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %d %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

type EncryptionError struct {
	Message string
	Err     error
}

func (e *EncryptionError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *EncryptionError) Unwrap() error { return e.Err }

func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewAlreadyExistsError(message string) *AlreadyExistsError {
	return &AlreadyExistsError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewConfigurationError(message string) *ConfigurationError {
	return &ConfigurationError{
		ErrorMessage: ErrorMessage{Message: message},
	}
}

func NewDatabaseError(operation, message string, err error) *DatabaseError {
	return &DatabaseError{Operation: operation, Message: message, Err: err}
}

func NewExternalServiceError(service, message string, statusCode int, transient bool, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:    service,
		Message:    message,
		StatusCode: statusCode,
		Transient:  transient,
		Err:        err,
	}
}

func NewEncryptionError(message string, err error) *EncryptionError {
	return &EncryptionError{Message: message, Err: err}
}

// ErrNoChange is returned from an update callback to abort without writing.
var ErrNoChange = errors.New("no change")
