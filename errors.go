package session

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeSessionExpired     = "SESSION_EXPIRED"
	textCodeTransportFailure   = "TRANSPORT_FAILURE"
	textCodeRemoteValidation   = "REMOTE_VALIDATION_FAILED"
	textCodeMalformedResponse  = "MALFORMED_RESPONSE"
)

// ErrInvalidCredentials is returned when the token endpoint rejects a login.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionExpired is returned when the identity fetch fails after a token
// was present. Any such failure is presumed to mean the credential is no
// longer valid.
var ErrSessionExpired = goerrors.New("session expired, please sign in", goerrors.CategoryAuth).
	WithTextCode(textCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTransport is returned when the identity service cannot be reached at all.
var ErrTransport = goerrors.New("identity service unreachable, try again", goerrors.CategoryOperation).
	WithTextCode(textCodeTransportFailure).
	WithCode(goerrors.CodeInternal)

// ErrMalformedResponse is returned when a success response body cannot be decoded.
var ErrMalformedResponse = goerrors.New("unable to parse identity service response", goerrors.CategoryInternal).
	WithTextCode(textCodeMalformedResponse).
	WithCode(goerrors.CodeInternal)

// IsTransportError reports whether err is a network-level failure reaching
// the identity service.
func IsTransportError(err error) bool {
	return hasTextCode(err, textCodeTransportFailure)
}

// IsSessionExpiredError reports whether err represents a rejected or expired
// credential.
func IsSessionExpiredError(err error) bool {
	return hasTextCode(err, textCodeSessionExpired)
}

// IsValidationError reports whether err carries field-level detail from the
// remote service.
func IsValidationError(err error) bool {
	return hasTextCode(err, textCodeRemoteValidation)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// ErrorMessage extracts the user-facing message from a session error,
// falling back when the server gave no detail.
func ErrorMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// FieldMessages returns the per-field messages attached to a validation-style
// remote error, or nil when err carries none.
func FieldMessages(err error) map[string]string {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Metadata == nil {
		return nil
	}
	fields, ok := richErr.Metadata["fields"].(map[string]string)
	if !ok {
		return nil
	}
	return fields
}
