package config

import "time"

const (
	DefaultExtractionTimeout = 30 * time.Second
	DefaultCallbackPort      = 3000
	DefaultStoreTTL          = 15 * time.Minute
	DefaultMaxRetries        = 2
	DefaultSAMLFieldName     = "SAMLResponse"
)

// GetDefaultConfig returns the configuration used when no file overrides it.
func GetDefaultConfig() Config {
	return Config{
		OAuth2: OAuth2Config{
			ResponseType: "code",
			UsePKCE:      true,
		},
		SAML: SAMLConfig{
			FieldName: DefaultSAMLFieldName,
		},
		ClearCookiesBeforeStart: true,
		ExtractionTimeout:       DefaultExtractionTimeout,
		Surface: SurfaceConfig{
			Type:         SurfaceSystem,
			CallbackPort: DefaultCallbackPort,
		},
		Store: StoreConfig{
			Type: StoreMemory,
			TTL:  DefaultStoreTTL,
		},
		MaxRetries: DefaultMaxRetries,
		LogLevel:   "info",
		LogFormat:  LogFormatText,
	}
}
