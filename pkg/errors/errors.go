package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents an error code
type ErrorCode string

const (
	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"

	// Signaling errors
	ErrCodeSignalingProtocol        ErrorCode = "SIGNALING_PROTOCOL_ERROR"
	ErrCodeSignalingTransportClosed ErrorCode = "SIGNALING_TRANSPORT_CLOSED"
	ErrCodeSignalingMalformed       ErrorCode = "SIGNALING_MALFORMED_MESSAGE"
	ErrCodeSignalingState           ErrorCode = "SIGNALING_INVALID_STATE"

	// Session errors
	ErrCodeSessionClosed     ErrorCode = "SESSION_CLOSED"
	ErrCodeNegotiationFailed ErrorCode = "NEGOTIATION_FAILED"
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"

	// Media errors
	ErrCodeFrameInvalid   ErrorCode = "FRAME_INVALID"
	ErrCodeFrameTooLarge  ErrorCode = "FRAME_TOO_LARGE"
	ErrCodeQueueFull      ErrorCode = "QUEUE_FULL"
	ErrCodeChannelClosed  ErrorCode = "CHANNEL_CLOSED"
	ErrCodeEndOfStream    ErrorCode = "END_OF_STREAM"
	ErrCodeFramingCorrupt ErrorCode = "FRAMING_CORRUPT"

	// Tracking errors
	ErrCodeFeedbackParse ErrorCode = "FEEDBACK_PARSE_ERROR"
	ErrCodeRenderFailed  ErrorCode = "RENDER_FAILED"

	// Configuration errors
	ErrCodeInvalidConfig  ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
)

// AppError represents an application error
type AppError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: getHTTPStatus(code),
	}
}

// NewAppErrorf creates a new application error with formatting
func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: getHTTPStatus(code),
	}
}

// getHTTPStatus returns the HTTP status code for an error code
func getHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound, ErrCodeConfigNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidInput, ErrCodeSignalingMalformed, ErrCodeFeedbackParse, ErrCodeFrameInvalid, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeSessionClosed, ErrCodeChannelClosed, ErrCodeEndOfStream, ErrCodeSignalingTransportClosed:
		return http.StatusGone
	case ErrCodeConnectionTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeConnectionFailed, ErrCodeNegotiationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// AsAppError converts an error to AppError
func AsAppError(err error) (*AppError, bool) {
	appErr, ok := err.(*AppError)
	return appErr, ok
}

// WrapError wraps a standard error as an AppError
func WrapError(code ErrorCode, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    err.Error(),
		HTTPStatus: getHTTPStatus(code),
		Cause:      err,
	}
}
