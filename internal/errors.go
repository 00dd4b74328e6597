package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized    ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden       ErrorType = "FORBIDDEN"
	ErrorTypeConflict        ErrorType = "CONFLICT"
	ErrorTypeState           ErrorType = "STATE_ERROR"
	ErrorTypeTooManyRequests ErrorType = "TOO_MANY_REQUESTS"
	ErrorTypeInternal        ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal        ErrorType = "EXTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount       ErrorCode = "INVALID_AMOUNT"
	ErrCodeAmountTooLow        ErrorCode = "AMOUNT_TOO_LOW"
	ErrCodeAmountTooHigh       ErrorCode = "AMOUNT_TOO_HIGH"
	ErrCodeInvalidPhone        ErrorCode = "INVALID_PHONE"
	ErrCodeUnsupportedProvider ErrorCode = "UNSUPPORTED_PROVIDER"
	ErrCodeInvalidWebhook      ErrorCode = "INVALID_WEBHOOK"

	ErrCodeAppointmentNotFound      ErrorCode = "APPOINTMENT_NOT_FOUND"
	ErrCodePayerNotFound            ErrorCode = "PAYER_NOT_FOUND"
	ErrCodePaymentNotFound          ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeAppointmentPayerMismatch ErrorCode = "APPOINTMENT_PAYER_MISMATCH"
	ErrCodePayerNotCaller           ErrorCode = "PAYER_NOT_CALLER"

	ErrCodeDuplicatePayment   ErrorCode = "DUPLICATE_PAYMENT"
	ErrCodeDuplicateReference ErrorCode = "DUPLICATE_REFERENCE"

	ErrCodeGatewayError        ErrorCode = "GATEWAY_ERROR"
	ErrCodeInvalidPaymentState ErrorCode = "INVALID_PAYMENT_STATE"
	ErrCodeRefreshThrottled    ErrorCode = "REFRESH_THROTTLED"

	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// GatewayDetails is attached to gateway failures so callers can see which
// provider answered and with what status.
type GatewayDetails struct {
	Provider       string `json:"provider"`
	UpstreamStatus int    `json:"upstream_status"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewStateError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeState,
		Code:       ErrCodeInvalidPaymentState,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NewTooManyRequestsError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeTooManyRequests,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

// NewGatewayError surfaces an upstream failure with the upstream status code.
// A zero or non-error status collapses to 503.
func NewGatewayError(message string, upstreamStatus int, provider string) *AppError {
	status := upstreamStatus
	if status < http.StatusBadRequest {
		status = http.StatusServiceUnavailable
	}
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       ErrCodeGatewayError,
		Message:    message,
		StatusCode: status,
		Details: GatewayDetails{
			Provider:       provider,
			UpstreamStatus: upstreamStatus,
		},
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrPaymentNotFound     = NewNotFoundError("Payment not found", ErrCodePaymentNotFound)
	ErrAppointmentNotFound = NewNotFoundError("Appointment not found", ErrCodeAppointmentNotFound)
	ErrPayerNotFound       = NewNotFoundError("Payer not found", ErrCodePayerNotFound)

	ErrInvalidToken = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
)

// IsAppError unwraps err until it finds an *AppError.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
