// Package oauth provides shared OAuth 2.0 protocol helpers used by the
// authentication flow strategies.
//
// # Core Components
//
//   - Metadata: OAuth/OIDC authorization server metadata (RFC 8414)
//   - Client: metadata discovery with caching and request deduplication
//   - PKCE: Proof Key for Code Exchange generation (RFC 7636)
//   - State and nonce generation for CSRF protection
//
// # Usage
//
//	client := oauth.NewClient(oauth.WithHTTPClient(httpClient))
//	metadata, err := client.DiscoverMetadata(ctx, issuer)
//	pkce, err := oauth.GeneratePKCE()
//
// Discovery is the asynchronous step of an OAuth2 flow's initial URL: the
// authorization endpoint is only known after the issuer's metadata has been
// fetched.
package oauth
