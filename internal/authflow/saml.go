package authflow

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"

	"webauth/pkg/logging"
)

// DefaultSAMLFieldName is the form field an IdP posts the response in.
const DefaultSAMLFieldName = "SAMLResponse"

// BridgeName is the name of the extraction bridge function exposed to pages.
const BridgeName = "authflowBridge"

const samlStatusSuccess = "urn:oasis:names:tc:SAML:2.0:status:Success"

// SAMLConfig configures a SAMLStrategy.
type SAMLConfig struct {
	// SSOURL is the identity provider's sign-in URL, loaded first.
	SSOURL string

	// AssertionConsumerURL is the service provider endpoint that receives
	// the posted response. Compared by scheme, host and path.
	AssertionConsumerURL string

	// AssertionConsumerPattern is a glob matched against the
	// scheme://host/path of finished pages. Used instead of
	// AssertionConsumerURL when set.
	AssertionConsumerPattern string

	// FieldName is the form field holding the response. Defaults to
	// DefaultSAMLFieldName.
	FieldName string

	// RelayState is passed to the identity provider when non-empty.
	RelayState string
}

// SAMLStrategy implements Strategy for SAML 2.0 POST-binding sign-ins. The
// response is scraped from the assertion consumer page by the extraction
// hook.
type SAMLStrategy struct {
	cfg     SAMLConfig
	acs     *url.URL
	pattern glob.Glob
}

// NewSAMLStrategy validates cfg and creates the strategy.
func NewSAMLStrategy(cfg SAMLConfig) (*SAMLStrategy, error) {
	if cfg.SSOURL == "" {
		return nil, NewConfigurationError("saml SSO URL is required", nil)
	}
	if u, err := url.Parse(cfg.SSOURL); err != nil || !u.IsAbs() {
		return nil, NewConfigurationError(fmt.Sprintf("saml SSO URL %q is not an absolute URL", cfg.SSOURL), err)
	}
	if cfg.FieldName == "" {
		cfg.FieldName = DefaultSAMLFieldName
	}

	s := &SAMLStrategy{cfg: cfg}
	switch {
	case cfg.AssertionConsumerPattern != "":
		g, err := glob.Compile(cfg.AssertionConsumerPattern)
		if err != nil {
			return nil, NewConfigurationError(fmt.Sprintf("invalid assertion consumer pattern %q", cfg.AssertionConsumerPattern), err)
		}
		s.pattern = g
	case cfg.AssertionConsumerURL != "":
		acs, err := url.Parse(cfg.AssertionConsumerURL)
		if err != nil || !acs.IsAbs() {
			return nil, NewConfigurationError(fmt.Sprintf("assertion consumer URL %q is not an absolute URL", cfg.AssertionConsumerURL), err)
		}
		s.acs = acs
	default:
		return nil, NewConfigurationError("saml requires an assertion consumer URL or pattern", nil)
	}
	return s, nil
}

// Protocol implements Strategy.
func (s *SAMLStrategy) Protocol() Protocol {
	return ProtocolSAML
}

// FieldName returns the form field the response is read from.
func (s *SAMLStrategy) FieldName() string {
	return s.cfg.FieldName
}

// InitialURL implements Strategy.
func (s *SAMLStrategy) InitialURL(_ context.Context, _ *Flow) (string, error) {
	if s.cfg.RelayState == "" {
		return s.cfg.SSOURL, nil
	}
	u, err := url.Parse(s.cfg.SSOURL)
	if err != nil {
		return "", NewConfigurationError("invalid SSO URL", err)
	}
	q := u.Query()
	q.Set("RelayState", s.cfg.RelayState)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Classify implements Strategy. The assertion consumer page needs extraction
// once it has finished loading.
func (s *SAMLStrategy) Classify(_ *Flow, u *url.URL, phase Phase) Classification {
	if phase == PhaseFinished && s.IsAssertionConsumer(u) {
		return ClassNeedsExtraction
	}
	return ClassContinue
}

// IsAssertionConsumer reports whether u is the assertion consumer endpoint.
func (s *SAMLStrategy) IsAssertionConsumer(u *url.URL) bool {
	if u == nil {
		return false
	}
	if s.pattern != nil {
		base := url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}
		return s.pattern.Match(base.String())
	}
	return strings.EqualFold(u.Scheme, s.acs.Scheme) &&
		strings.EqualFold(u.Host, s.acs.Host) &&
		normalizePath(u.Path) == normalizePath(s.acs.Path)
}

// ExtractFromURL implements Strategy. SAML responses are posted, never
// carried in a URL.
func (s *SAMLStrategy) ExtractFromURL(_ *Flow, _ *url.URL) (CredentialResult, error) {
	return CredentialResult{}, NewExtractionError("SAML responses cannot be extracted from a URL", nil)
}

// ExtractFromToken implements Strategy. The payload is the base64 value of
// the response form field.
func (s *SAMLStrategy) ExtractFromToken(flow *Flow, token ExtractedToken) (CredentialResult, error) {
	assertion, err := decodeSAMLResponse(s.cfg.FieldName, token.Raw)
	if err != nil {
		return CredentialResult{}, err
	}

	claims, status, err := samlClaims(assertion)
	if err != nil {
		logging.Debug(subsystem, "Flow %s: SAML response is not well-formed XML, passing it through: %v", flow.ID, err)
	}
	if status != "" && status != samlStatusSuccess {
		return CredentialResult{}, NewProviderError("SAML response status " + status)
	}

	result := newResult(ProtocolSAML, claims)
	result.Assertion = assertion
	return result, nil
}

func decodeSAMLResponse(field, raw string) (string, error) {
	compact := strings.Join(strings.Fields(raw), "")
	if compact == "" {
		return "", NewExtractionError(fmt.Sprintf("empty %s payload", field), nil)
	}

	decoded, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		var urlErr error
		decoded, urlErr = base64.URLEncoding.DecodeString(compact)
		if urlErr != nil {
			return "", NewExtractionError("SAML response is not valid base64", err)
		}
	}

	assertion := strings.TrimSpace(string(decoded))
	if !strings.HasPrefix(assertion, "<") {
		return "", NewExtractionError("decoded SAML response is not XML", nil)
	}
	return assertion, nil
}

type samlResponse struct {
	Issuer string `xml:"Issuer"`
	Status struct {
		StatusCode struct {
			Value string `xml:"Value,attr"`
		} `xml:"StatusCode"`
	} `xml:"Status"`
	Assertion struct {
		Issuer  string `xml:"Issuer"`
		Subject struct {
			NameID string `xml:"NameID"`
		} `xml:"Subject"`
		Attributes []struct {
			Name   string   `xml:"Name,attr"`
			Values []string `xml:"AttributeValue"`
		} `xml:"AttributeStatement>Attribute"`
	} `xml:"Assertion"`
}

// samlClaims reads issuer, subject and attributes from a response. It
// returns the top-level status code, or "" when there is none.
func samlClaims(assertion string) (map[string]string, string, error) {
	var resp samlResponse
	if err := xml.Unmarshal([]byte(assertion), &resp); err != nil {
		return nil, "", err
	}

	claims := make(map[string]string)
	issuer := strings.TrimSpace(resp.Assertion.Issuer)
	if issuer == "" {
		issuer = strings.TrimSpace(resp.Issuer)
	}
	if issuer != "" {
		claims["issuer"] = issuer
	}
	if nameID := strings.TrimSpace(resp.Assertion.Subject.NameID); nameID != "" {
		claims["name_id"] = nameID
	}
	for _, attr := range resp.Assertion.Attributes {
		if attr.Name == "" {
			continue
		}
		values := make([]string, 0, len(attr.Values))
		for _, v := range attr.Values {
			values = append(values, strings.TrimSpace(v))
		}
		claims[attr.Name] = strings.Join(values, ",")
	}
	return claims, strings.TrimSpace(resp.Status.StatusCode.Value), nil
}

// ExtractionScript returns the script the extraction hook evaluates on the
// assertion consumer page. It hands the response field to the bridge
// function only when the field is present and non-empty; otherwise nothing
// is delivered and the extraction timeout ends the flow.
func (s *SAMLStrategy) ExtractionScript() string {
	return fmt.Sprintf(`() => {
  const fields = document.getElementsByName(%q);
  if (fields.length > 0 && fields[0].value) {
    window.%s(fields[0].value);
    return true;
  }
  return false;
}`, s.cfg.FieldName, BridgeName)
}
