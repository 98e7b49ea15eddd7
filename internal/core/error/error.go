package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "record not found"
	// StorageErrorMessage describes persistence failures of any backend.
	StorageErrorMessage = "storage operation failed"
	// ProviderErrorMessage describes failures of the conversational provider.
	ProviderErrorMessage = "assistant unavailable"
	// VerificationRejectedMessage is the single message returned for every
	// failed code check, whatever the underlying reason.
	VerificationRejectedMessage = "invalid or expired code"
	// RateLimitedMessage is returned when a per-phone limit is exhausted.
	RateLimitedMessage = "too many attempts, try again later"
	// DeliveryErrorMessage describes failures to deliver a code to the user.
	DeliveryErrorMessage = "could not deliver verification code"
)

// Kind is the machine-readable error category surfaced to transport callers.
type Kind string

const (
	KindInternal             Kind = "internal"
	KindValidation           Kind = "validation"
	KindInvalidTransition    Kind = "invalid_transition"
	KindStorage              Kind = "storage"
	KindProvider             Kind = "provider"
	KindVerificationRejected Kind = "verification_rejected"
	KindRateLimited          Kind = "rate_limited"
	KindDelivery             Kind = "delivery"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
)

// FieldError is a human-readable message bound to one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError wraps an underlying error with a kind, an HTTP status and a safe message.
type AppError struct {
	Err     error
	Kind    Kind
	Status  int
	Message string
	Fields  []FieldError
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Kind:    kindForStatus(status),
		Status:  status,
		Message: message,
	}
}

// Validation reports malformed or missing input. It is always recoverable.
func Validation(message string, fields ...FieldError) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Status:  http.StatusUnprocessableEntity,
		Message: message,
		Fields:  fields,
	}
}

// InvalidTransition reports an action that the current conversation state
// does not accept.
func InvalidTransition(message string) *AppError {
	return &AppError{
		Kind:    KindInvalidTransition,
		Status:  http.StatusConflict,
		Message: message,
	}
}

// Storage wraps a persistence failure.
func Storage(err error) *AppError {
	return &AppError{
		Err:     err,
		Kind:    KindStorage,
		Status:  http.StatusServiceUnavailable,
		Message: StorageErrorMessage,
	}
}

// Provider wraps a failure of the conversational-response capability.
func Provider(err error) *AppError {
	return &AppError{
		Err:     err,
		Kind:    KindProvider,
		Status:  http.StatusBadGateway,
		Message: ProviderErrorMessage,
	}
}

// VerificationRejected is returned for wrong, expired or consumed codes.
func VerificationRejected() *AppError {
	return &AppError{
		Kind:    KindVerificationRejected,
		Status:  http.StatusUnauthorized,
		Message: VerificationRejectedMessage,
	}
}

// RateLimited reports an exhausted per-phone budget.
func RateLimited() *AppError {
	return &AppError{
		Kind:    KindRateLimited,
		Status:  http.StatusTooManyRequests,
		Message: RateLimitedMessage,
	}
}

// Delivery wraps a failure to hand a code to the SMS provider.
func Delivery(err error) *AppError {
	return &AppError{
		Err:     err,
		Kind:    KindDelivery,
		Status:  http.StatusBadGateway,
		Message: DeliveryErrorMessage,
	}
}

// NotFound reports a missing resource such as an expired session.
func NotFound(message string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Status:  http.StatusNotFound,
		Message: message,
	}
}

// Conflict reports a write that collides with an existing, different record.
func Conflict(message string) *AppError {
	return &AppError{
		Kind:    KindConflict,
		Status:  http.StatusConflict,
		Message: message,
	}
}

// KindOf extracts the error kind from any error chain. Unknown errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return t.Kind == e.Kind
	}
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return errors.As(e.Err, target)
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusConflict:
		return KindInvalidTransition
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return KindStorage
	default:
		return KindInternal
	}
}
