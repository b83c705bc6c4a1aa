package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	DuplicateIntent         Kind = "duplicate_intent"
	OrderNotFound           Kind = "order_not_found"
	ProviderUnavailable     Kind = "provider_unavailable"
	ProviderRejected        Kind = "provider_rejected"
	InvalidPhoneNumber      Kind = "invalid_phone_number"
	IncompleteCheckoutData  Kind = "incomplete_checkout_data"
	InvalidState            Kind = "invalid_state"
	InvalidTransition       Kind = "invalid_transition"
	WebhookValidationFailed Kind = "webhook_validation_failed"
	NotFound                Kind = "not_found"
	Invalid                 Kind = "invalid"
	Internal                Kind = "internal"
)

// Error carries a Kind for callers and a message that is safe to show.
type Error struct {
	Kind    Kind
	Message string
	Field   string // offending input field, if any
	Err     error  // internal cause, logged only
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func MissingField(field string) *Error {
	return &Error{Kind: IncompleteCheckoutData, Message: "missing required field: " + field, Field: field}
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns Internal for errors that carry no Kind.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

// Retryable reports whether repeating the same call may succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ProviderUnavailable, Internal:
		return true
	}
	return false
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case DuplicateIntent, InvalidState, InvalidTransition:
		return http.StatusConflict
	case OrderNotFound, NotFound:
		return http.StatusNotFound
	case InvalidPhoneNumber, IncompleteCheckoutData, Invalid:
		return http.StatusBadRequest
	case WebhookValidationFailed:
		return http.StatusUnauthorized
	case ProviderRejected:
		return http.StatusBadGateway
	case ProviderUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func PublicMessage(err error) string {
	if e, ok := As(err); ok && e.Kind != Internal && e.Message != "" {
		return e.Message
	}
	return "internal error"
}
