package config

import (
	"fmt"
	"net/url"
	"strings"

	"webauth/pkg/logging"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

func (ve *ValidationErrors) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required", value)
	}
}

func (ve *ValidationErrors) oneOf(field, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	ve.Add(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")), value)
}

func (ve *ValidationErrors) absoluteURL(field, value string) {
	if value == "" {
		return
	}
	u, err := url.Parse(value)
	if err != nil || !u.IsAbs() || u.Host == "" {
		ve.Add(field, "must be an absolute URL", value)
	}
}

// Validate checks cfg and returns a ConfigurationError listing every problem
// found, or nil.
func Validate(cfg Config) error {
	var errs ValidationErrors
	var suggestions []string

	errs.oneOf("protocol", cfg.Protocol, ProtocolOAuth2, ProtocolSAML)
	errs.oneOf("surface.type", cfg.Surface.Type, SurfaceEmbedded, SurfaceSystem)
	errs.oneOf("store.type", cfg.Store.Type, StoreMemory, StoreFile, StoreRedis)
	errs.oneOf("logFormat", cfg.LogFormat, LogFormatText, LogFormatJSON)

	if _, err := logging.ParseLogLevel(cfg.LogLevel); err != nil {
		errs.Add("logLevel", err.Error(), cfg.LogLevel)
	}

	system := cfg.Surface.Type == SurfaceSystem

	switch cfg.Protocol {
	case ProtocolOAuth2:
		o := cfg.OAuth2
		errs.required("oauth2.clientID", o.ClientID)
		if o.AuthorizationEndpoint == "" && o.Issuer == "" {
			errs.Add("oauth2.authorizationEndpoint", "is required when oauth2.issuer is not set")
			suggestions = append(suggestions, "Set oauth2.issuer to discover the endpoints automatically")
		}
		errs.absoluteURL("oauth2.issuer", o.Issuer)
		errs.absoluteURL("oauth2.authorizationEndpoint", o.AuthorizationEndpoint)
		errs.absoluteURL("oauth2.tokenEndpoint", o.TokenEndpoint)
		errs.absoluteURL("oauth2.redirectURI", o.RedirectURI)
		if o.RedirectURI == "" && !system {
			errs.Add("oauth2.redirectURI", "is required with the embedded surface")
		}
		errs.oneOf("oauth2.responseType", o.ResponseType, "code", "token")
		if o.ExchangeCode && o.ResponseType != "code" {
			errs.Add("oauth2.exchangeCode", "requires responseType code")
		}
		if o.ResponseType == "token" && system {
			suggestions = append(suggestions, "Implicit flows over the system browser need a provider that allows http://localhost redirect URIs")
		}

	case ProtocolSAML:
		s := cfg.SAML
		errs.required("saml.ssoURL", s.SSOURL)
		errs.absoluteURL("saml.ssoURL", s.SSOURL)
		errs.absoluteURL("saml.assertionConsumerURL", s.AssertionConsumerURL)
		if s.AssertionConsumerURL == "" && s.AssertionConsumerPattern == "" && !system {
			errs.Add("saml.assertionConsumerURL", "or saml.assertionConsumerPattern is required with the embedded surface")
		}
		if s.AssertionConsumerPattern != "" && system {
			errs.Add("saml.assertionConsumerPattern", "is not supported with the system surface")
		}
	}

	if cfg.Surface.CallbackPort < -1 || cfg.Surface.CallbackPort > 65535 {
		errs.Add("surface.callbackPort", "must be between -1 and 65535", cfg.Surface.CallbackPort)
	}
	if cfg.Store.Type == StoreRedis && cfg.Store.RedisURL == "" {
		errs.Add("store.redisURL", "is required for the redis store")
		suggestions = append(suggestions, "Use redis://localhost:6379/0 for a local Redis")
	}
	if cfg.ExtractionTimeout < 0 {
		errs.Add("extractionTimeout", "must not be negative", cfg.ExtractionTimeout)
	}
	if cfg.MaxRetries < 0 {
		errs.Add("maxRetries", "must not be negative", cfg.MaxRetries)
	}

	if !errs.HasErrors() {
		return nil
	}
	return NewConfigurationErrorWithDetails("", "validation", "invalid configuration", errs.Error(), suggestions)
}
