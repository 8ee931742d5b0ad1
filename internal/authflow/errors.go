package authflow

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyStarted is returned by Start when the flow has left Idle.
	ErrAlreadyStarted = errors.New("authentication flow already started")

	// ErrFlowNotFound is returned by a FlowStore when no flow is stored
	// under a correlation token, including when it was already taken.
	ErrFlowNotFound = errors.New("authentication flow not found")

	// ErrUserCancelled is reported by Outcome.Err for cancelled flows.
	ErrUserCancelled = errors.New("authentication cancelled by user")

	// ErrDetached is returned by operations on a coordinator whose flow has
	// been handed to a FlowStore.
	ErrDetached = errors.New("coordinator detached from its flow")
)

// ErrorKind classifies an AuthError.
type ErrorKind int

const (
	// KindConfiguration means the initial URL could not be computed.
	KindConfiguration ErrorKind = iota

	// KindTransport means a navigation or network failure.
	KindTransport

	// KindProvider means the identity provider answered with an error
	// (e.g. OAuth2 error=access_denied or a non-success SAML status).
	KindProvider

	// KindExtraction means a payload was present but could not be decoded
	// or validated.
	KindExtraction

	// KindExtractionTimeout means the expected payload never arrived.
	KindExtractionTimeout
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration_error"
	case KindTransport:
		return "transport_error"
	case KindProvider:
		return "provider_error"
	case KindExtraction:
		return "extraction_error"
	case KindExtractionTimeout:
		return "extraction_timeout"
	default:
		return "unknown_error"
	}
}

// AuthError is the payload of a Failed outcome.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain inspection.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Is matches another *AuthError of the same kind, so that
// errors.Is(err, &AuthError{Kind: KindTransport}) works.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// NewConfigurationError creates an AuthError of kind KindConfiguration.
func NewConfigurationError(message string, cause error) *AuthError {
	return &AuthError{Kind: KindConfiguration, Message: message, Cause: cause}
}

// NewTransportError creates an AuthError of kind KindTransport.
func NewTransportError(cause error) *AuthError {
	return &AuthError{Kind: KindTransport, Message: "navigation failed", Cause: cause}
}

// NewProviderError creates an AuthError of kind KindProvider.
func NewProviderError(message string) *AuthError {
	return &AuthError{Kind: KindProvider, Message: message}
}

// NewExtractionError creates an AuthError of kind KindExtraction.
func NewExtractionError(message string, cause error) *AuthError {
	return &AuthError{Kind: KindExtraction, Message: message, Cause: cause}
}

// NewExtractionTimeout creates an AuthError of kind KindExtractionTimeout.
func NewExtractionTimeout(after time.Duration) *AuthError {
	return &AuthError{
		Kind:    KindExtractionTimeout,
		Message: fmt.Sprintf("no credential payload extracted within %s", after),
	}
}

// AsAuthError converts any error into an *AuthError. Errors that are not
// already classified are treated as transport errors.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return NewTransportError(err)
}

func isKind(err error, kind ErrorKind) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Kind == kind
}

// IsConfigurationError reports whether err is a configuration error.
func IsConfigurationError(err error) bool { return isKind(err, KindConfiguration) }

// IsTransportError reports whether err is a transport error.
func IsTransportError(err error) bool { return isKind(err, KindTransport) }

// IsProviderError reports whether err was reported by the identity provider.
func IsProviderError(err error) bool { return isKind(err, KindProvider) }

// IsExtractionError reports whether err is an extraction error.
func IsExtractionError(err error) bool { return isKind(err, KindExtraction) }

// IsExtractionTimeout reports whether err is an extraction timeout.
func IsExtractionTimeout(err error) bool { return isKind(err, KindExtractionTimeout) }
