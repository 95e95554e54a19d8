package model

import "fmt"

// Standard error codes.
const (
	ErrBadRequest        = "BAD_REQUEST"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrForbidden         = "FORBIDDEN"
	ErrNotFound          = "NOT_FOUND"
	ErrConflict          = "CONFLICT"
	ErrValidationError   = "VALIDATION_ERROR"
	ErrInvalidTransition = "INVALID_TRANSITION"
	ErrDeliveryError     = "DELIVERY_ERROR"
	ErrInternalError     = "INTERNAL_ERROR"
)

// Token gate error codes. All three surface the same generic message so an
// unauthorized caller cannot probe for document existence; the code is kept
// for logs and metrics.
const (
	ErrTokenInvalid  = "TOKEN_INVALID"
	ErrTokenExpired  = "TOKEN_EXPIRED"
	ErrTokenConsumed = "TOKEN_CONSUMED"
)

const tokenDeniedMessage = "This link is invalid or has expired"

// ErrorEnvelope is the standard error response envelope. It implements the
// error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error. Callers receiving it must
// re-fetch current state before retrying.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "One or more fields are invalid",
		Details: details,
	}
}

// NewInvalidTransitionError returns an INVALID_TRANSITION error for a
// request that does not match the document's current workflow state.
func NewInvalidTransitionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidTransition, Message: msg}
}

// NewDeliveryError returns a DELIVERY_ERROR for a notification that could
// not be handed off. The transition it followed is already committed.
func NewDeliveryError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrDeliveryError, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "An unexpected error occurred",
	}
}

// NewTokenInvalidError returns a TOKEN_INVALID error with the generic
// denied message.
func NewTokenInvalidError() *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrTokenInvalid, Message: tokenDeniedMessage}
}

// NewTokenExpiredError returns a TOKEN_EXPIRED error with the generic
// denied message.
func NewTokenExpiredError() *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrTokenExpired, Message: tokenDeniedMessage}
}

// NewTokenConsumedError returns a TOKEN_CONSUMED error with the generic
// denied message.
func NewTokenConsumedError() *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrTokenConsumed, Message: tokenDeniedMessage}
}

// IsCode reports whether err is an *ErrorEnvelope carrying the given code.
func IsCode(err error, code string) bool {
	ee, ok := err.(*ErrorEnvelope)
	return ok && ee.Code == code
}
