package helpers

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type RelayError struct {
	Message string
	Cause   error
}

func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

// Distinct error types so callers can branch with errors.As
type DecodeError struct{ RelayError }
type UpstreamConnectionError struct{ RelayError }
type SubscriberWriteError struct{ RelayError }
type SubscriberTimeoutError struct{ RelayError }
type ConfigurationError struct{ RelayError }

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

func NewDecodeError(msg string, cause error) error {
	return &DecodeError{RelayError{Message: msg, Cause: cause}}
}

func NewUpstreamConnectionError(msg string, cause error) error {
	return &UpstreamConnectionError{RelayError{Message: msg, Cause: cause}}
}

func NewSubscriberWriteError(sessionID string, cause error) error {
	return &SubscriberWriteError{RelayError{Message: fmt.Sprintf("write to session %s failed", sessionID), Cause: cause}}
}

func NewSubscriberTimeoutError(sessionID string) error {
	return &SubscriberTimeoutError{RelayError{Message: fmt.Sprintf("write to session %s timed out", sessionID)}}
}

func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{RelayError{Message: fmt.Sprintf(format, args...)}}
}

// -----------------------------------------------------------------------------
// Sentinels
// -----------------------------------------------------------------------------

var (
	ErrAlreadyStarted = errors.New("relay already started")
	ErrHubClosed      = errors.New("fan-out hub is closed")
)

// -----------------------------------------------------------------------------
// Classification helpers
// -----------------------------------------------------------------------------

func IsDecodeError(err error) bool {
	var target *DecodeError
	return errors.As(err, &target)
}

func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsSubscriberTimeout(err error) bool {
	var target *SubscriberTimeoutError
	return errors.As(err, &target)
}
