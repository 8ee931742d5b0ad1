package config

import "time"

// Protocol values.
const (
	ProtocolOAuth2 = "oauth2"
	ProtocolSAML   = "saml"
)

// Surface types.
const (
	// SurfaceEmbedded drives a browser window through Playwright.
	SurfaceEmbedded = "embedded"

	// SurfaceSystem opens the user's browser and listens on a loopback port.
	SurfaceSystem = "system"
)

// Store types.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the top-level configuration structure for webauth.
type Config struct {
	// Title is shown while the flow runs.
	Title string `yaml:"title,omitempty"`

	// Protocol is "oauth2" or "saml".
	Protocol string `yaml:"protocol"`

	OAuth2 OAuth2Config `yaml:"oauth2,omitempty"`
	SAML   SAMLConfig   `yaml:"saml,omitempty"`

	// ClearCookiesBeforeStart drops the surface's cookies before the first
	// load, so a previous session does not sign the user in silently.
	ClearCookiesBeforeStart bool `yaml:"clearCookiesBeforeStart"`

	// ExtractionTimeout bounds the wait for a scraped SAML response.
	ExtractionTimeout time.Duration `yaml:"extractionTimeout,omitempty"`

	Surface SurfaceConfig `yaml:"surface"`
	Store   StoreConfig   `yaml:"store"`

	// RetryOnTransportError starts a new flow after a transport failure,
	// up to MaxRetries times.
	RetryOnTransportError bool `yaml:"retryOnTransportError"`
	MaxRetries            int  `yaml:"maxRetries"`

	// MetricsAddr serves Prometheus metrics when set (e.g. "127.0.0.1:9090").
	MetricsAddr string `yaml:"metricsAddr,omitempty"`

	LogLevel  string `yaml:"logLevel,omitempty"`
	LogFormat string `yaml:"logFormat,omitempty"`
}

// OAuth2Config configures OAuth2 and OpenID Connect flows.
type OAuth2Config struct {
	// Issuer is used for metadata discovery when AuthorizationEndpoint is
	// not set.
	Issuer                string `yaml:"issuer,omitempty"`
	AuthorizationEndpoint string `yaml:"authorizationEndpoint,omitempty"`
	TokenEndpoint         string `yaml:"tokenEndpoint,omitempty"`

	ClientID     string `yaml:"clientID,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty"`

	// RedirectURI may be empty with the system surface, which serves its
	// own loopback redirect URI.
	RedirectURI string   `yaml:"redirectURI,omitempty"`
	Scopes      []string `yaml:"scopes,omitempty"`

	// ResponseType is "code" or "token".
	ResponseType string `yaml:"responseType,omitempty"`
	UsePKCE      bool   `yaml:"usePKCE"`

	// ExchangeCode trades the authorization code for tokens after the flow
	// completes.
	ExchangeCode bool `yaml:"exchangeCode"`

	ExtraParams map[string]string `yaml:"extraParams,omitempty"`
}

// SAMLConfig configures SAML POST-binding flows.
type SAMLConfig struct {
	SSOURL string `yaml:"ssoURL,omitempty"`

	// AssertionConsumerURL or AssertionConsumerPattern identify the page
	// holding the response. Both may be empty with the system surface.
	AssertionConsumerURL     string `yaml:"assertionConsumerURL,omitempty"`
	AssertionConsumerPattern string `yaml:"assertionConsumerPattern,omitempty"`

	FieldName  string `yaml:"fieldName,omitempty"`
	RelayState string `yaml:"relayState,omitempty"`
}

// SurfaceConfig selects and configures the browser surface.
type SurfaceConfig struct {
	Type string `yaml:"type"`

	// Headless applies to the embedded surface.
	Headless bool `yaml:"headless"`

	// CallbackPort applies to the system surface. -1 picks a free port.
	CallbackPort int `yaml:"callbackPort,omitempty"`
}

// StoreConfig selects where suspended flows are kept.
type StoreConfig struct {
	Type     string        `yaml:"type"`
	Dir      string        `yaml:"dir,omitempty"`
	RedisURL string        `yaml:"redisURL,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
}
