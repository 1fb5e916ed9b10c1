package models

import (
	"errors"
	"fmt"
)

// Error codes used in records, API responses and internal error handling.
const (
	// Per-listing, terminal.
	ErrCodePageNotFound      = "PAGE_NOT_FOUND"
	ErrCodeNavigationTimeout = "NAVIGATION_TIMEOUT"
	ErrCodeNavigation        = "NAVIGATION_FAILED"

	// Recoverable only by an operator.
	ErrCodeBlocked = "BLOCKED_OR_CAPTCHA"

	// Per-field, non-fatal: the field is stored as absent.
	ErrCodeSelectorMiss       = "SELECTOR_MISS"
	ErrCodeTooltipAbsent      = "TOOLTIP_ABSENT"
	ErrCodeGeometryDegenerate = "GEOMETRY_DEGENERATE"
	ErrCodeCaptureFailed      = "CAPTURE_FAILED"
	ErrCodePriceUnparsed      = "PRICE_UNPARSED"

	// Service-level.
	ErrCodeBrowserCrash = "BROWSER_CRASH"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in records and API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ExtractError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ExtractError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// NewExtractError creates a new ExtractError.
func NewExtractError(code, message string, err error) *ExtractError {
	return &ExtractError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to a record-facing ErrorDetail.
func (e *ExtractError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// IsCode reports whether any ExtractError in err's chain carries code.
func IsCode(err error, code string) bool {
	var ee *ExtractError
	for err != nil {
		if !errors.As(err, &ee) {
			return false
		}
		if ee.Code == code {
			return true
		}
		err = ee.Err
	}
	return false
}

// Detail returns the ErrorDetail for err, wrapping unknown errors as internal.
func Detail(err error) *ErrorDetail {
	var ee *ExtractError
	if errors.As(err, &ee) {
		return ee.ToDetail()
	}
	return &ErrorDetail{Code: ErrCodeInternal, Message: err.Error()}
}
