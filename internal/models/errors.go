package models

import (
	"errors"
	"fmt"
)

// Common errors used throughout the application
var (
	ErrCartItemNotFound     = errors.New("cart item not found")
	ErrTimeSlotNotFound     = errors.New("time slot not found")
	ErrPaymentOrderNotFound = errors.New("payment order not found")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrTicketNotFound       = errors.New("ticket not found")
	ErrPriceNotFound        = errors.New("ticket price not found")
	ErrInsufficientSeats    = errors.New("insufficient seats available")
	ErrOrderAlreadyPaid     = errors.New("payment order already paid")
	ErrOrderClosed          = errors.New("payment order is no longer open")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrDuplicateReference   = errors.New("duplicate reference")
	ErrWebhookEventNotFound = errors.New("webhook event not found")
	ErrDuplicateWebhook     = errors.New("webhook event already recorded")
	ErrInvalidInput         = errors.New("invalid input")
)

// ErrorKind classifies an AppError for transport mapping.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindAuth         ErrorKind = "auth"
	KindSignature    ErrorKind = "signature"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindCapacity     ErrorKind = "capacity"
	KindPartialBatch ErrorKind = "partial_batch"
	KindUpstream     ErrorKind = "upstream"
	KindInternal     ErrorKind = "internal"
)

// Error codes surfaced to API clients and per-item materialization results
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeAuth                = "AUTH_ERROR"
	CodeSignature           = "SIGNATURE_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeCapacityExceeded    = "CAPACITY_EXCEEDED"
	CodePartialBatch        = "PARTIAL_BATCH_ERROR"
	CodeUpstream            = "UPSTREAM_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
	CodeTimeSlotNotFound    = "TIME_SLOT_NOT_FOUND"
	CodeBookingInsertFailed = "BOOKING_INSERT_FAILED"
	CodeTicketInsertFailed  = "TICKET_INSERT_FAILED"
	CodeReferenceConflict   = "REFERENCE_CONFLICT"
	CodeRateLimited         = "RATE_LIMITED"
	CodeLateCapture         = "LATE_CAPTURE"
)

// AppError is the error type services hand to handlers
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details interface{}
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a VALIDATION_ERROR
func NewValidationError(message string, details interface{}) *AppError {
	return &AppError{Kind: KindValidation, Code: CodeValidation, Message: message, Details: details}
}

// NewAuthError creates an AUTH_ERROR
func NewAuthError(message string) *AppError {
	return &AppError{Kind: KindAuth, Code: CodeAuth, Message: message}
}

// NewSignatureError creates a SIGNATURE_ERROR
func NewSignatureError(message string) *AppError {
	return &AppError{Kind: KindSignature, Code: CodeSignature, Message: message}
}

// NewNotFoundError creates a NOT_FOUND error wrapping the repository sentinel
func NewNotFoundError(message string, err error) *AppError {
	return &AppError{Kind: KindNotFound, Code: CodeNotFound, Message: message, Err: err}
}

// NewConflictError creates a CONFLICT error
func NewConflictError(message string, err error) *AppError {
	return &AppError{Kind: KindConflict, Code: CodeConflict, Message: message, Err: err}
}

// NewCapacityError creates a CAPACITY_EXCEEDED error
func NewCapacityError(message string, err error) *AppError {
	return &AppError{Kind: KindCapacity, Code: CodeCapacityExceeded, Message: message, Err: err}
}

// NewPartialBatchError reports per-item materialization failures
func NewPartialBatchError(message string, itemErrors []ItemError) *AppError {
	return &AppError{Kind: KindPartialBatch, Code: CodePartialBatch, Message: message, Details: itemErrors}
}

// NewUpstreamError creates an UPSTREAM_ERROR for gateway failures
func NewUpstreamError(message string, err error) *AppError {
	return &AppError{Kind: KindUpstream, Code: CodeUpstream, Message: message, Err: err}
}

// NewInternalError wraps an unexpected failure
func NewInternalError(message string, err error) *AppError {
	return &AppError{Kind: KindInternal, Code: CodeInternal, Message: message, Err: err}
}

// AsAppError extracts an AppError from err, if there is one.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Kind == kind
}

// ItemError records a failure for one cart line item during materialization.
type ItemError struct {
	CartItemID string `json:"cartItemId"`
	TimeSlotID string `json:"timeSlotId"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}
