// Package config provides configuration management for webauth.
//
// Configuration is read from a single YAML file. The default location is
// ~/.config/webauth/config.yaml; commands accept --config to point at another
// file. Loading starts from the defaults returned by GetDefaultConfig and
// overlays whatever the file sets, so a file only needs the fields that
// differ.
//
// # Example
//
//	title: Corporate sign-in
//	protocol: oauth2
//	oauth2:
//	  issuer: https://login.example.com
//	  clientID: webauth-cli
//	  scopes: [openid, profile, email]
//	  exchangeCode: true
//	surface:
//	  type: system
//	store:
//	  type: file
//	extractionTimeout: 45s
//
// # Validation
//
// Validate checks protocol-specific requirements and returns a
// ConfigurationError with suggestions when something is missing. A missing
// config file is not an error; the defaults are used.
package config
