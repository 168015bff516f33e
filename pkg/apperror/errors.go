package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses. Policy denials
// are NOT AppErrors: a denial is a normal, cached decision outcome and flows
// through the response body with status DENIED.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----
// Malformed input is rejected before any store access, never cached, and
// always safely retryable after correction.

// Validation returns a generic malformed-input error.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAddress(addr string) *AppError {
	return New("VAL_002", fmt.Sprintf("invalid wallet address %q: expected 0x followed by 40 hex characters", addr), http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("VAL_003", "amount must be a positive, finite decimal", http.StatusBadRequest)
}

func ErrInvalidIdempotencyKey() *AppError {
	return New("VAL_004", "idempotency key must be a non-empty string of at most 128 characters", http.StatusBadRequest)
}

func ErrMissingVendor() *AppError {
	return New("VAL_005", "vendor identifier is required", http.StatusBadRequest)
}

// ---- Agent Registry (AGT) ----

func ErrAgentNotFound(id string) *AppError {
	return New("AGT_001", fmt.Sprintf("agent %s not found", id), http.StatusNotFound)
}

func ErrAddressTaken(addr string) *AppError {
	return New("AGT_002", fmt.Sprintf("wallet address %s is already bound to an agent", addr), http.StatusConflict)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- Infrastructure (SYS) ----
// Storage faults never leave partial state: a commit either durably applied
// or did not start, so blind retry with the same idempotency key is safe.

func ErrStoreUnavailable(err error) *AppError {
	return Wrap("SYS_001", "Ledger store unavailable, retry with the same idempotency key", http.StatusServiceUnavailable, err)
}

// InternalError wraps an unexpected internal error.
func InternalError(err error) *AppError {
	return Wrap("SYS_002", "Internal server error", http.StatusInternalServerError, err)
}

// ErrPrecisionViolation reports a broken arithmetic invariant (tax+net must
// equal gross). This is a programming error and fails the operation loudly.
func ErrPrecisionViolation(err error) *AppError {
	return Wrap("SYS_003", "Monetary precision invariant violated", http.StatusInternalServerError, err)
}
