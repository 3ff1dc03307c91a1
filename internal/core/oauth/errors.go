package oauth

import (
	"errors"
	"fmt"
)

// Error codes returned to OAuth clients (RFC 6749 section 4.1.2.1 and 5.2).
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidClient           = "invalid_client"
	CodeInvalidGrant            = "invalid_grant"
	CodeAccessDenied            = "access_denied"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeInvalidScope            = "invalid_scope"
	CodeInvalidToken            = "invalid_token"
	CodeServerError             = "server_error"
)

// Error is a protocol error carrying an OAuth error code. Two errors match
// with errors.Is when their codes are equal, so callers can compare against
// the sentinels below regardless of the description.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Protocol error sentinels
var (
	ErrInvalidRequest          = &Error{Code: CodeInvalidRequest}
	ErrInvalidClient           = &Error{Code: CodeInvalidClient}
	ErrInvalidGrant            = &Error{Code: CodeInvalidGrant}
	ErrAccessDenied            = &Error{Code: CodeAccessDenied}
	ErrUnsupportedGrantType    = &Error{Code: CodeUnsupportedGrantType}
	ErrUnsupportedResponseType = &Error{Code: CodeUnsupportedResponseType}
	ErrInvalidScope            = &Error{Code: CodeInvalidScope}
	ErrInvalidToken            = &Error{Code: CodeInvalidToken}
)

// Repository errors
var (
	ErrClientNotFound  = errors.New("oauth client not found")
	ErrCodeNotFound    = errors.New("authorization code not found")
	ErrTokenNotFound   = errors.New("token not found")
	ErrConsentNotFound = errors.New("consent not found")
	// ErrCodeAlreadyConsumed is returned by a store when the compare-and-set on
	// consumed_at loses a race.
	ErrCodeAlreadyConsumed = errors.New("authorization code already consumed")
)

// Descriptions shared between call sites. The grant description is deliberately
// identical for expired, consumed and mismatched codes.
const (
	descRedirectMismatch = "redirect_uri_mismatch"
	descInvalidGrant     = "authorization grant is invalid, expired, or was issued to another client"
	descClientAuth       = "client authentication failed"
	descInvalidToken     = "access token is invalid or expired"
)

func newError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

func invalidRequest(format string, args ...interface{}) *Error {
	return newError(CodeInvalidRequest, fmt.Sprintf(format, args...))
}

// ValidationError reports an invalid field on a client management request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ErrorCode returns the OAuth error code for err, or server_error when err
// is not a protocol error.
func ErrorCode(err error) string {
	var oerr *Error
	if errors.As(err, &oerr) {
		return oerr.Code
	}
	if IsValidationError(err) {
		return CodeInvalidRequest
	}
	return CodeServerError
}

// ErrorDescription returns the client-safe description for err.
func ErrorDescription(err error) string {
	var oerr *Error
	if errors.As(err, &oerr) {
		return oerr.Description
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	return "an internal error occurred"
}

func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrCodeNotFound) ||
		errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrConsentNotFound)
}
