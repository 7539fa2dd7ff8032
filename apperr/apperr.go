// Package apperr classifies the failures a registration attempt can hit.
// Every failure ends at the screen; Kind is used for logs and retry decisions.
package apperr

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotVerified      = errors.New("mobile number not verified")
	ErrBusy             = errors.New("operation already in progress")
	ErrSuperseded       = errors.New("superseded by a newer input")
	ErrPaymentCancelled = errors.New("payment cancelled")
	ErrPaymentFailed    = errors.New("payment failed")
	ErrCompletionFailed = errors.New("registration completion failed")
)

// ValidationError is a client-side input problem caught before any network call
type ValidationError struct {
	Field    string
	Message  string
	Problems []string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid returns a ValidationError for a single field
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InvalidForm returns a ValidationError listing every form problem
func InvalidForm(problems []string) error {
	return &ValidationError{
		Field:    "form",
		Message:  "Please fix the following issues: " + strings.Join(problems, ", "),
		Problems: problems,
	}
}

// PaymentFailure carries the widget's own description of a declined payment
type PaymentFailure struct {
	Description string
}

func (e *PaymentFailure) Error() string {
	if e.Description == "" {
		return "Payment failed"
	}
	return e.Description
}

func (e *PaymentFailure) Unwrap() error { return ErrPaymentFailed }

// Messenger is implemented by errors that carry a user-facing message
type Messenger interface {
	UserMessage() string
}

// UserMessage picks the text shown to the user for err
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var m Messenger
	if errors.As(err, &m) && m.UserMessage() != "" {
		return m.UserMessage()
	}
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Message
	}
	var pf *PaymentFailure
	if errors.As(err, &pf) {
		return pf.Error()
	}
	switch {
	case errors.Is(err, ErrPaymentCancelled):
		return "Payment cancelled"
	case errors.Is(err, ErrNotVerified):
		return "Please verify your mobile number first"
	}
	return fallback
}

func Kind(err error) string {
	var m Messenger
	switch {
	case err == nil:
		return ""

	case errors.Is(err, ErrValidation):
		return "validation"

	case errors.Is(err, ErrNotVerified):
		return "not_verified"

	case errors.Is(err, ErrBusy):
		return "busy"

	case errors.Is(err, ErrSuperseded):
		return "superseded"

	case errors.Is(err, ErrPaymentCancelled):
		return "payment_cancelled"

	case errors.Is(err, ErrPaymentFailed):
		return "payment_failed"

	case errors.Is(err, ErrCompletionFailed):
		return "completion_failed"

	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"

	case errors.Is(err, context.Canceled):
		return "canceled"

	case errors.As(err, &m):
		return "backend"

	default:
		return "internal"
	}
}
