package authflow

import (
	"context"
	"net/url"
)

// Classification is a strategy's verdict on a navigation.
type Classification int

const (
	// ClassContinue means the user is still navigating (credential prompts,
	// consent pages, intermediate redirects).
	ClassContinue Classification = iota

	// ClassTerminalSuccess means the URL itself carries the credential.
	ClassTerminalSuccess

	// ClassTerminalFailure means the URL itself carries a protocol error.
	ClassTerminalFailure

	// ClassNeedsExtraction means the rendered page holds the credential and
	// the extraction hook must run.
	ClassNeedsExtraction
)

// String returns the string representation of the classification.
func (c Classification) String() string {
	switch c {
	case ClassContinue:
		return "continue"
	case ClassTerminalSuccess:
		return "terminal_success"
	case ClassTerminalFailure:
		return "terminal_failure"
	case ClassNeedsExtraction:
		return "needs_extraction"
	default:
		return "unknown"
	}
}

// Strategy holds the protocol-specific rules of a flow. Implementations must
// not retain the *Flow passed to them; protocol bindings go into Flow.Params.
type Strategy interface {
	// Protocol identifies the identity protocol implemented.
	Protocol() Protocol

	// InitialURL computes the first URL to load. It may record protocol
	// bindings on the flow. Errors that are not *AuthError are treated as
	// transport errors.
	InitialURL(ctx context.Context, flow *Flow) (string, error)

	// Classify decides what a navigation means for the flow.
	Classify(flow *Flow, u *url.URL, phase Phase) Classification

	// ExtractFromURL builds the result from a terminal URL.
	ExtractFromURL(flow *Flow, u *url.URL) (CredentialResult, error)

	// ExtractFromToken builds the result from an extracted payload.
	ExtractFromToken(flow *Flow, token ExtractedToken) (CredentialResult, error)
}

// AsyncInitialURL is implemented by strategies whose initial URL depends on
// network I/O (e.g. metadata discovery). The coordinator resolves their
// initial URL off the caller's goroutine and delivers the result as an event.
type AsyncInitialURL interface {
	InitialURLIsAsync() bool
}

func isAsync(s Strategy) bool {
	a, ok := s.(AsyncInitialURL)
	return ok && a.InitialURLIsAsync()
}
