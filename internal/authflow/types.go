package authflow

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// State represents the position of a flow in the coordinator's state machine.
type State int

const (
	// StateIdle means no URL has been loaded yet.
	StateIdle State = iota

	// StateLoading means a URL has been dispatched to the surface and the
	// coordinator is waiting for navigation events.
	StateLoading

	// StateAwaitingExtraction means the extraction hook has been requested
	// and the coordinator is waiting for the extracted token or a timeout.
	StateAwaitingExtraction

	// StateCompleted is terminal: the flow produced a CredentialResult.
	StateCompleted

	// StateCancelled is terminal: the user abandoned the flow.
	StateCancelled

	// StateFailed is terminal: the flow ended with an AuthError.
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:               "idle",
	StateLoading:            "loading",
	StateAwaitingExtraction: "awaiting_extraction",
	StateCompleted:          "completed",
	StateCancelled:          "cancelled",
	StateFailed:             "failed",
}

// String returns the string representation of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether the state ends the flow.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("unknown flow state %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown flow state %q", string(text))
}

// Protocol identifies the identity protocol used by a flow.
type Protocol string

const (
	ProtocolOAuth2 Protocol = "oauth2"
	ProtocolSAML   Protocol = "saml"
)

// Valid reports whether p is a supported protocol.
func (p Protocol) Valid() bool {
	return p == ProtocolOAuth2 || p == ProtocolSAML
}

// Flow identifies one authentication attempt. It is owned by a Coordinator;
// callers only ever see copies.
type Flow struct {
	// ID uniquely identifies the attempt in logs and metrics.
	ID uuid.UUID `json:"id"`

	// CorrelationToken is the opaque key used to recover the flow after the
	// hosting UI has been torn down.
	CorrelationToken string `json:"correlation_token"`

	Protocol Protocol `json:"protocol"`
	Title    string   `json:"title,omitempty"`

	// InitialURL is set once the strategy has produced it.
	InitialURL string `json:"initial_url,omitempty"`

	State State `json:"state"`

	// CurrentURL is the last URL reported by the surface.
	CurrentURL string `json:"current_url,omitempty"`

	StartedAt time.Time `json:"started_at,omitempty"`

	// Params holds protocol bindings created while building the initial URL
	// (OAuth2 state, PKCE verifier, discovered endpoints). They are needed to
	// validate the response and to resume a suspended flow.
	Params map[string]string `json:"params,omitempty"`
}

// NewFlow creates an idle flow with fresh identifiers.
func NewFlow(protocol Protocol, title string) *Flow {
	return &Flow{
		ID:               uuid.New(),
		CorrelationToken: uuid.NewString(),
		Protocol:         protocol,
		Title:            title,
		State:            StateIdle,
		Params:           make(map[string]string),
	}
}

// Clone returns a deep copy of the flow.
func (f *Flow) Clone() *Flow {
	if f == nil {
		return nil
	}
	c := *f
	c.Params = maps.Clone(f.Params)
	if c.Params == nil {
		c.Params = make(map[string]string)
	}
	return &c
}

// Param returns a protocol binding, or "" when unset.
func (f *Flow) Param(key string) string {
	if f == nil || f.Params == nil {
		return ""
	}
	return f.Params[key]
}

func (f *Flow) setParam(key, value string) {
	if f.Params == nil {
		f.Params = make(map[string]string)
	}
	f.Params[key] = value
}

// Event is a message delivered to a Coordinator.
type Event interface {
	isEvent()
}

// Phase is the lifecycle phase of a navigation.
type Phase int

const (
	PhaseStarted Phase = iota
	PhaseFinished
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseStarted:
		return "started"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// NavigationEvent reports that the surface started or finished loading a URL.
type NavigationEvent struct {
	URL   string
	Phase Phase
}

// TokenSource describes where an extracted payload came from.
type TokenSource string

const (
	SourceURLFragment      TokenSource = "url-fragment"
	SourceFormPost         TokenSource = "form-post"
	SourceScriptExtraction TokenSource = "script-extraction"
)

// ExtractedToken is a raw credential payload pulled out of a page.
type ExtractedToken struct {
	Raw    string
	Source TokenSource
}

// TransportFailure reports a navigation or network failure on the surface.
type TransportFailure struct {
	Err error
}

type cancelRequest struct{}

type initialURLResolved struct {
	url    string
	params map[string]string
	err    error
}

type extractionTimedOut struct {
	round uint64
}

func (NavigationEvent) isEvent()    {}
func (ExtractedToken) isEvent()     {}
func (TransportFailure) isEvent()   {}
func (cancelRequest) isEvent()      {}
func (initialURLResolved) isEvent() {}
func (extractionTimedOut) isEvent() {}

// CredentialResult is the immutable payload of a Completed outcome.
type CredentialResult struct {
	// Authenticated is false only for a result that carries no credentials.
	Authenticated bool

	Protocol Protocol

	// Token is the OAuth2 access token when the provider returned one
	// directly (implicit flow).
	Token     string
	TokenType string
	ExpiresIn time.Duration
	Scope     string

	// Code is the OAuth2 authorization code (authorization-code flow).
	Code string

	// IDToken is the OIDC ID token, if present.
	IDToken string

	// Assertion is the decoded SAML response document.
	Assertion string

	claims map[string]string
}

func newResult(protocol Protocol, claims map[string]string) CredentialResult {
	return CredentialResult{
		Authenticated: true,
		Protocol:      protocol,
		claims:        maps.Clone(claims),
	}
}

// Claims returns a copy of the identity claims carried by the result.
func (r CredentialResult) Claims() map[string]string {
	return maps.Clone(r.claims)
}

// Claim returns a single claim, or "" when absent.
func (r CredentialResult) Claim(name string) string {
	return r.claims[name]
}

// OAuth2Token converts an implicit-flow result into an oauth2.Token.
// It returns nil when the result carries no access token.
func (r CredentialResult) OAuth2Token() *oauth2.Token {
	if r.Token == "" {
		return nil
	}
	token := &oauth2.Token{
		AccessToken: r.Token,
		TokenType:   r.TokenType,
	}
	if r.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(r.ExpiresIn)
	}
	if r.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": r.IDToken,
		})
	}
	return token
}
