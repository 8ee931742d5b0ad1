package authflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"webauth/pkg/logging"
	pkgoauth "webauth/pkg/oauth"
)

// Flow parameters recorded by the OAuth2 strategy.
const (
	ParamState                 = "state"
	ParamNonce                 = "nonce"
	ParamCodeVerifier          = "code_verifier"
	ParamAuthorizationEndpoint = "authorization_endpoint"
	ParamTokenEndpoint         = "token_endpoint"
)

// Response types understood by the OAuth2 strategy.
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// OAuth2Config configures an OAuth2Strategy.
type OAuth2Config struct {
	// Issuer is used for metadata discovery when AuthorizationEndpoint is
	// empty.
	Issuer string

	AuthorizationEndpoint string
	TokenEndpoint         string

	ClientID     string
	ClientSecret string

	// RedirectURI is where the provider sends the browser when it is done.
	// A navigation to it ends the flow.
	RedirectURI string

	Scopes []string

	// ResponseType is "code" (default) or "token" for the implicit flow.
	ResponseType string

	// UsePKCE adds an S256 code challenge to the authorization request.
	UsePKCE bool

	// ExtraParams are added to the authorization request as-is.
	ExtraParams map[string]string
}

// OAuth2Strategy implements Strategy for OAuth2 and OpenID Connect
// authorization requests.
type OAuth2Strategy struct {
	cfg        OAuth2Config
	redirect   *url.URL
	discovery  *pkgoauth.Client
	httpClient *http.Client
}

// OAuth2Option configures an OAuth2Strategy.
type OAuth2Option func(*OAuth2Strategy)

// WithDiscoveryClient sets the client used for metadata discovery.
func WithDiscoveryClient(client *pkgoauth.Client) OAuth2Option {
	return func(s *OAuth2Strategy) {
		s.discovery = client
	}
}

// WithExchangeHTTPClient sets the HTTP client used for code exchange.
func WithExchangeHTTPClient(client *http.Client) OAuth2Option {
	return func(s *OAuth2Strategy) {
		s.httpClient = client
	}
}

// NewOAuth2Strategy validates cfg and creates the strategy. Validation
// failures are configuration errors.
func NewOAuth2Strategy(cfg OAuth2Config, opts ...OAuth2Option) (*OAuth2Strategy, error) {
	if cfg.ClientID == "" {
		return nil, NewConfigurationError("oauth2 client ID is required", nil)
	}
	if cfg.RedirectURI == "" {
		return nil, NewConfigurationError("oauth2 redirect URI is required", nil)
	}
	redirect, err := url.Parse(cfg.RedirectURI)
	if err != nil || !redirect.IsAbs() || redirect.Host == "" {
		return nil, NewConfigurationError(fmt.Sprintf("oauth2 redirect URI %q is not an absolute URL", cfg.RedirectURI), err)
	}
	if cfg.AuthorizationEndpoint == "" && cfg.Issuer == "" {
		return nil, NewConfigurationError("oauth2 requires an authorization endpoint or an issuer to discover it from", nil)
	}
	switch cfg.ResponseType {
	case "":
		cfg.ResponseType = ResponseTypeCode
	case ResponseTypeCode, ResponseTypeToken:
	default:
		return nil, NewConfigurationError(fmt.Sprintf("unsupported oauth2 response type %q", cfg.ResponseType), nil)
	}

	s := &OAuth2Strategy{
		cfg:      cfg,
		redirect: redirect,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.discovery == nil {
		s.discovery = pkgoauth.NewClient()
	}
	return s, nil
}

// Protocol implements Strategy.
func (s *OAuth2Strategy) Protocol() Protocol {
	return ProtocolOAuth2
}

// InitialURLIsAsync reports whether the authorization endpoint must be
// discovered first.
func (s *OAuth2Strategy) InitialURLIsAsync() bool {
	return s.cfg.AuthorizationEndpoint == ""
}

// InitialURL implements Strategy. It binds state, nonce, PKCE verifier and
// the endpoints to the flow.
func (s *OAuth2Strategy) InitialURL(ctx context.Context, flow *Flow) (string, error) {
	endpoint := oauth2.Endpoint{
		AuthURL:  s.cfg.AuthorizationEndpoint,
		TokenURL: s.cfg.TokenEndpoint,
	}
	if endpoint.AuthURL == "" {
		metadata, err := s.discovery.DiscoverMetadata(ctx, s.cfg.Issuer)
		if err != nil {
			return "", fmt.Errorf("failed to discover OAuth metadata: %w", err)
		}
		if s.cfg.UsePKCE && !metadata.SupportsPKCE() {
			return "", NewConfigurationError(fmt.Sprintf("issuer %s does not support S256 PKCE", metadata.Issuer), nil)
		}
		if !metadata.SupportsResponseType(s.cfg.ResponseType) {
			return "", NewConfigurationError(fmt.Sprintf("issuer %s does not support response type %q", metadata.Issuer, s.cfg.ResponseType), nil)
		}
		endpoint = metadata.Endpoint()
		if s.cfg.TokenEndpoint != "" {
			endpoint.TokenURL = s.cfg.TokenEndpoint
		}
	}

	state, err := pkgoauth.GenerateState()
	if err != nil {
		return "", NewConfigurationError("failed to generate state", err)
	}
	flow.setParam(ParamState, state)
	flow.setParam(ParamAuthorizationEndpoint, endpoint.AuthURL)
	if endpoint.TokenURL != "" {
		flow.setParam(ParamTokenEndpoint, endpoint.TokenURL)
	}

	var opts []oauth2.AuthCodeOption
	if s.cfg.ResponseType != ResponseTypeCode {
		opts = append(opts, oauth2.SetAuthURLParam("response_type", s.cfg.ResponseType))
	}
	if s.cfg.UsePKCE {
		pkce, err := pkgoauth.GeneratePKCE()
		if err != nil {
			return "", NewConfigurationError("failed to generate PKCE", err)
		}
		flow.setParam(ParamCodeVerifier, pkce.CodeVerifier)
		opts = append(opts, oauth2.S256ChallengeOption(pkce.CodeVerifier))
	}
	if slices.Contains(s.cfg.Scopes, "openid") {
		nonce, err := pkgoauth.GenerateNonce()
		if err != nil {
			return "", NewConfigurationError("failed to generate nonce", err)
		}
		flow.setParam(ParamNonce, nonce)
		opts = append(opts, oauth2.SetAuthURLParam("nonce", nonce))
	}
	for _, key := range slices.Sorted(maps.Keys(s.cfg.ExtraParams)) {
		opts = append(opts, oauth2.SetAuthURLParam(key, s.cfg.ExtraParams[key]))
	}

	return s.config(endpoint).AuthCodeURL(state, opts...), nil
}

func (s *OAuth2Strategy) config(endpoint oauth2.Endpoint) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  s.cfg.RedirectURI,
		Scopes:       s.cfg.Scopes,
	}
}

// Classify implements Strategy. A navigation to the redirect URI is terminal
// in either phase.
func (s *OAuth2Strategy) Classify(_ *Flow, u *url.URL, _ Phase) Classification {
	if !s.isRedirect(u) {
		return ClassContinue
	}
	if responseParams(u).Get("error") != "" {
		return ClassTerminalFailure
	}
	return ClassTerminalSuccess
}

// isRedirect compares scheme, authority and path with the redirect URI.
func (s *OAuth2Strategy) isRedirect(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.EqualFold(u.Scheme, s.redirect.Scheme) &&
		strings.EqualFold(u.Host, s.redirect.Host) &&
		normalizePath(u.Path) == normalizePath(s.redirect.Path)
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// responseParams merges query and fragment parameters; the fragment wins.
func responseParams(u *url.URL) url.Values {
	params := u.Query()
	if u.Fragment == "" {
		return params
	}
	fragment, err := url.ParseQuery(u.EscapedFragment())
	if err != nil {
		logging.Debug(subsystem, "Ignoring malformed redirect fragment: %v", err)
	}
	for key, values := range fragment {
		params[key] = values
	}
	return params
}

// ExtractFromURL implements Strategy.
func (s *OAuth2Strategy) ExtractFromURL(flow *Flow, u *url.URL) (CredentialResult, error) {
	if !s.isRedirect(u) {
		return CredentialResult{}, NewExtractionError("URL does not match the redirect URI", nil)
	}
	return s.resultFromParams(flow, responseParams(u))
}

// ExtractFromToken implements Strategy. The payload is the redirect URL or
// its parameter string (query or fragment).
func (s *OAuth2Strategy) ExtractFromToken(flow *Flow, token ExtractedToken) (CredentialResult, error) {
	raw := strings.TrimSpace(token.Raw)
	if u, err := url.Parse(raw); err == nil && u.IsAbs() {
		return s.ExtractFromURL(flow, u)
	}

	params, err := url.ParseQuery(strings.TrimLeft(raw, "#?"))
	if err != nil {
		return CredentialResult{}, NewExtractionError("malformed OAuth2 response parameters", err)
	}
	return s.resultFromParams(flow, params)
}

func (s *OAuth2Strategy) resultFromParams(flow *Flow, params url.Values) (CredentialResult, error) {
	if code := params.Get("error"); code != "" {
		msg := "authorization failed: " + code
		if desc := params.Get("error_description"); desc != "" {
			msg += " - " + desc
		}
		return CredentialResult{}, NewProviderError(msg)
	}

	if want := flow.Param(ParamState); want != "" && params.Get("state") != want {
		logging.Warn(subsystem, "OAuth state mismatch detected - possible CSRF attack (flow=%s, expected_len=%d, received_len=%d)",
			flow.ID, len(want), len(params.Get("state")))
		return CredentialResult{}, NewExtractionError("state mismatch - possible CSRF attack", nil)
	}

	var claims map[string]string
	idToken := params.Get("id_token")
	if idToken != "" {
		var err error
		claims, err = idTokenClaims(idToken)
		if err != nil {
			return CredentialResult{}, NewExtractionError("malformed ID token", err)
		}
		if want := flow.Param(ParamNonce); want != "" && claims["nonce"] != want {
			return CredentialResult{}, NewExtractionError("ID token nonce mismatch", nil)
		}
	}

	result := newResult(ProtocolOAuth2, claims)
	result.Token = params.Get("access_token")
	result.TokenType = params.Get("token_type")
	result.Scope = params.Get("scope")
	result.Code = params.Get("code")
	result.IDToken = idToken
	if v := params.Get("expires_in"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs > 0 {
			result.ExpiresIn = time.Duration(secs) * time.Second
		}
	}

	if result.Token == "" && result.Code == "" && result.IDToken == "" {
		return CredentialResult{}, NewExtractionError("redirect carries neither a code nor a token", nil)
	}
	return result, nil
}

// idTokenClaims reads the claims of an ID token without verifying its
// signature. The token came straight from the provider over the redirect,
// and the claims are informational; relying parties verify it themselves.
func idTokenClaims(idToken string) (map[string]string, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(idToken, jwt.MapClaims{})
	if err != nil {
		return nil, err
	}
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", parsed.Claims)
	}

	claims := make(map[string]string, len(mapClaims))
	for key, value := range mapClaims {
		switch v := value.(type) {
		case string:
			claims[key] = v
		case float64:
			claims[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			claims[key] = strconv.FormatBool(v)
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				continue
			}
			claims[key] = string(encoded)
		}
	}
	return claims, nil
}

// Exchange trades the authorization code of a completed flow for tokens,
// using the flow's PKCE verifier.
func (s *OAuth2Strategy) Exchange(ctx context.Context, flow *Flow, result CredentialResult) (*oauth2.Token, error) {
	if result.Code == "" {
		return nil, NewExtractionError("result carries no authorization code", nil)
	}
	tokenURL := flow.Param(ParamTokenEndpoint)
	if tokenURL == "" {
		return nil, NewConfigurationError("no token endpoint known for code exchange", nil)
	}

	var opts []oauth2.AuthCodeOption
	if verifier := flow.Param(ParamCodeVerifier); verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}

	cfg := s.config(oauth2.Endpoint{
		AuthURL:  flow.Param(ParamAuthorizationEndpoint),
		TokenURL: tokenURL,
	})
	token, err := cfg.Exchange(ctx, result.Code, opts...)
	if err != nil {
		logging.Warn(subsystem, "OAuth token exchange failed for flow %s: %v", flow.ID, err)
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	logging.Audit(subsystem, "token_exchanged",
		slog.String("flow_id", flow.ID.String()),
		slog.String("token_endpoint", tokenURL),
		slog.Bool("has_refresh_token", token.RefreshToken != ""),
	)
	return token, nil
}
