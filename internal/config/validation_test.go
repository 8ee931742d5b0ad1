package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oauth2Config() Config {
	cfg := GetDefaultConfig()
	cfg.Protocol = ProtocolOAuth2
	cfg.OAuth2.Issuer = "https://login.example.com"
	cfg.OAuth2.ClientID = "webauth-cli"
	return cfg
}

func samlConfig() Config {
	cfg := GetDefaultConfig()
	cfg.Protocol = ProtocolSAML
	cfg.SAML.SSOURL = "https://idp.example.com/sso"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func() Config
		wantErr string
	}{
		{
			name:   "valid oauth2 with system surface",
			mutate: oauth2Config,
		},
		{
			name:   "valid saml with system surface",
			mutate: samlConfig,
		},
		{
			name: "valid saml with embedded surface and pattern",
			mutate: func() Config {
				cfg := samlConfig()
				cfg.Surface.Type = SurfaceEmbedded
				cfg.SAML.AssertionConsumerPattern = "https://sp.example.com/*/acs"
				return cfg
			},
		},
		{
			name: "unknown protocol",
			mutate: func() Config {
				cfg := oauth2Config()
				cfg.Protocol = "kerberos"
				return cfg
			},
			wantErr: "protocol",
		},
		{
			name: "missing client id",
			mutate: func() Config {
				cfg := oauth2Config()
				cfg.OAuth2.ClientID = ""
				return cfg
			},
			wantErr: "oauth2.clientID",
		},
		{
			name: "no endpoint and no issuer",
			mutate: func() Config {
				cfg := oauth2Config()
				cfg.OAuth2.Issuer = ""
				return cfg
			},
			wantErr: "oauth2.authorizationEndpoint",
		},
		{
			name: "embedded oauth2 needs redirect uri",
			mutate: func() Config {
				cfg := oauth2Config()
				cfg.Surface.Type = SurfaceEmbedded
				return cfg
			},
			wantErr: "oauth2.redirectURI",
		},
		{
			name: "exchange requires code flow",
			mutate: func() Config {
				cfg := oauth2Config()
				cfg.OAuth2.ResponseType = "token"
				cfg.OAuth2.ExchangeCode = true
				return cfg
			},
			wantErr: "oauth2.exchangeCode",
		},
		{
			name: "relative issuer",
			mutate: func() Config {
				cfg := oauth2Config()
				cfg.OAuth2.Issuer = "/login"
				return cfg
			},
			wantErr: "absolute URL",
		},
		{
			name: "saml missing sso url",
			mutate: func() Config {
				cfg := samlConfig()
				cfg.SAML.SSOURL = ""
				return cfg
			},
			wantErr: "saml.ssoURL",
		},
		{
			name: "embedded saml needs consumer",
			mutate: func() Config {
				cfg := samlConfig()
				cfg.Surface.Type = SurfaceEmbedded
				return cfg
			},
			wantErr: "saml.assertionConsumerURL",
		},
		{
			name: "redis store needs url",
			mutate: func() Config {
				cfg := oauth2Config()
				cfg.Store.Type = StoreRedis
				return cfg
			},
			wantErr: "store.redisURL",
		},
		{
			name: "port out of range",
			mutate: func() Config {
				cfg := oauth2Config()
				cfg.Surface.CallbackPort = 70000
				return cfg
			},
			wantErr: "surface.callbackPort",
		},
		{
			name: "negative retries",
			mutate: func() Config {
				cfg := oauth2Config()
				cfg.MaxRetries = -1
				return cfg
			},
			wantErr: "maxRetries",
		},
		{
			name: "bad log level",
			mutate: func() Config {
				cfg := oauth2Config()
				cfg.LogLevel = "chatty"
				return cfg
			},
			wantErr: "logLevel",
		},
		{
			name: "bad log format",
			mutate: func() Config {
				cfg := oauth2Config()
				cfg.LogFormat = "xml"
				return cfg
			},
			wantErr: "logFormat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.mutate())
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var cfgErr ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, "validation", cfgErr.ErrorType)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Protocol = ProtocolOAuth2
	cfg.Store.Type = "s3"

	err := Validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "oauth2.clientID")
	assert.Contains(t, msg, "store.type")
	assert.Contains(t, msg, "oauth2.authorizationEndpoint")
}

func TestValidate_Suggestions(t *testing.T) {
	cfg := oauth2Config()
	cfg.OAuth2.Issuer = ""

	var cfgErr ConfigurationError
	require.True(t, errors.As(Validate(cfg), &cfgErr))
	assert.Contains(t, cfgErr.DetailedError(), "oauth2.issuer")
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.False(t, errs.HasErrors())
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("a", "is required")
	assert.Equal(t, "field 'a': is required", errs.Error())

	errs.Add("b", "is wrong", 3)
	assert.True(t, errs.HasErrors())
	assert.Equal(t, 3, errs[1].Value)
	assert.Equal(t, "validation failed: field 'a': is required; field 'b': is wrong", errs.Error())
}
