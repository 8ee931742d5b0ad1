package authflow

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuthError(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := NewTransportError(cause)

	assert.Equal(t, "navigation failed: dial tcp: timeout", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", err), &AuthError{Kind: KindTransport})
	assert.NotErrorIs(t, err, &AuthError{Kind: KindExtraction})
	assert.True(t, IsTransportError(fmt.Errorf("wrapped: %w", err)))
}

func TestAsAuthError(t *testing.T) {
	assert.Nil(t, AsAuthError(nil))

	plain := AsAuthError(errors.New("boom"))
	assert.Equal(t, KindTransport, plain.Kind)

	typed := NewExtractionError("bad payload", nil)
	assert.Same(t, typed, AsAuthError(fmt.Errorf("ctx: %w", typed)))
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err   *AuthError
		check func(error) bool
		kind  string
	}{
		{NewConfigurationError("x", nil), IsConfigurationError, "configuration_error"},
		{NewTransportError(nil), IsTransportError, "transport_error"},
		{NewProviderError("x"), IsProviderError, "provider_error"},
		{NewExtractionError("x", nil), IsExtractionError, "extraction_error"},
		{NewExtractionTimeout(time.Second), IsExtractionTimeout, "extraction_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.Equal(t, tt.kind, tt.err.Kind.String())
		})
	}
}

func TestOutcome_Err(t *testing.T) {
	assert.NoError(t, Outcome{State: StateCompleted}.Err())
	assert.ErrorIs(t, Outcome{State: StateCancelled}.Err(), ErrUserCancelled)

	failure := NewProviderError("access_denied")
	assert.Same(t, failure, Outcome{State: StateFailed, Error: failure}.Err())
}
