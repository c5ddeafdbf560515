package utils

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeTimeout         Code = "TIMEOUT"
	CodeInternal        Code = "INTERNAL"

	// assistant engine
	CodePermissionDenied     Code = "PERMISSION_DENIED"
	CodeCaptureUnavailable   Code = "CAPTURE_UNAVAILABLE"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeProviderFailure      Code = "PROVIDER_FAILURE"
	CodeSynthesisFailure     Code = "SYNTHESIS_FAILURE"
	CodeToolExecution        Code = "TOOL_EXECUTION_FAILURE"
	CodeConfirmationRequired Code = "CONFIRMATION_REQUIRED"
	CodeInvalidState         Code = "INVALID_STATE"
)

// Rate-limit denial reasons.
const (
	ReasonTooSoon        = "too soon"
	ReasonQuotaExhausted = "quota exhausted"
)

// AppError is the unified error contract across layers.
type AppError struct {
	Code    Code
	Op      string // operation name, ex: "Dispatcher.Process"
	Message string // safe message
	Err     error  // wrapped error
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Op != "" && e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Op != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "error"
	}
}

func (e *AppError) Unwrap() error { return e.Err }

func E(code Code, op, msg string, err error) error {
	return &AppError{Code: code, Op: op, Message: msg, Err: err}
}

// RateLimited builds a RATE_LIMITED error whose Message is the denial reason.
func RateLimited(op, reason string) error {
	return &AppError{Code: CodeRateLimited, Op: op, Message: reason}
}

func IsCode(err error, code Code) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

func CodeOf(err error) Code {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// RateLimitReason returns the denial reason carried by a RATE_LIMITED error.
func RateLimitReason(err error) string {
	var ae *AppError
	if errors.As(err, &ae) && ae.Code == CodeRateLimited {
		return ae.Message
	}
	return ""
}

// UserMessage is the short text shown to the user as Session.lastError.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch CodeOf(err) {
	case CodePermissionDenied:
		return "I need microphone access to hear you."
	case CodeCaptureUnavailable:
		return "Voice input isn't available on this device."
	case CodeRateLimited:
		if RateLimitReason(err) == ReasonQuotaExhausted {
			return "You've reached today's assistant limit. Try again tomorrow."
		}
		return "One moment, please wait a few seconds before asking again."
	case CodeProviderFailure:
		return "I'm having trouble connecting right now."
	case CodeSynthesisFailure:
		return "I couldn't play the response."
	case CodeToolExecution:
		return "I couldn't complete that action."
	case CodeConfirmationRequired:
		return "Please confirm or cancel the pending action."
	case CodeInvalidState:
		return "The assistant is busy right now."
	default:
		return "Something went wrong."
	}
}

func HTTPStatus(err error) int {
	var ae *AppError
	if errors.As(err, &ae) {
		switch ae.Code {
		case CodeInvalidArgument:
			return http.StatusBadRequest
		case CodeUnauthorized:
			return http.StatusUnauthorized
		case CodeForbidden, CodePermissionDenied:
			return http.StatusForbidden
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict, CodeInvalidState, CodeConfirmationRequired:
			return http.StatusConflict
		case CodeRateLimited:
			return http.StatusTooManyRequests
		case CodeCaptureUnavailable:
			return http.StatusNotImplemented
		case CodeUnavailable, CodeProviderFailure, CodeSynthesisFailure:
			return http.StatusServiceUnavailable
		case CodeTimeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusInternalServerError
		}
	}
	// fallback
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Backward-compatible sentinel errors
var (
	ErrNotFound = errors.New("not found")
)
