package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedModel is returned by Resolve when no registered provider
	// can serve a backend's model.
	ErrUnsupportedModel = errors.New("unsupported model")
	// ErrRetriesExhausted wraps the last transient error once the retry
	// policy gives up.
	ErrRetriesExhausted = errors.New("retries exhausted")
	// ErrIncompleteStream is returned when a stream closes without a final
	// delta. It is transient.
	ErrIncompleteStream = &ProviderError{Class: Transient, Message: "stream ended before completion"}
)

// ErrorClass decides whether a provider failure is retried.
type ErrorClass int

const (
	// Transient failures (timeouts, rate limits, transport and 5xx errors)
	// are retried with backoff.
	Transient ErrorClass = iota
	// Fatal failures (authentication, malformed requests) are never retried.
	Fatal
)

func (c ErrorClass) String() string {
	if c == Fatal {
		return "fatal"
	}
	return "transient"
}

// ProviderError is a classified failure reported by a provider.
type ProviderError struct {
	Provider   ProviderID
	Class      ErrorClass
	StatusCode int
	Auth       bool
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	var msg string
	switch {
	case e.Auth:
		msg = "authentication error"
	case e.StatusCode != 0:
		msg = fmt.Sprintf("API error (status %d)", e.StatusCode)
	default:
		msg = e.Class.String() + " error"
	}
	if e.Provider != "" {
		msg = string(e.Provider) + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewTransient builds a retryable provider error.
func NewTransient(provider ProviderID, status int, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Class: Transient, StatusCode: status, Message: message, Err: err}
}

// NewFatal builds a non-retryable provider error.
func NewFatal(provider ProviderID, status int, message string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Class: Fatal, StatusCode: status, Message: message, Err: err}
}

// NewAuthError builds a fatal authentication error.
func NewAuthError(provider ProviderID, status int, message string) *ProviderError {
	return &ProviderError{Provider: provider, Class: Fatal, StatusCode: status, Auth: true, Message: message}
}

// IsTransient reports whether err is a retryable provider error.
func IsTransient(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Class == Transient
}

// IsFatal reports whether err is a non-retryable provider error.
func IsFatal(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Class == Fatal
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Auth
}
