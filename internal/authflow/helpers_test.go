package authflow

import (
	"context"
	"errors"
	"net/url"
	"sync"
)

type fakeSurface struct {
	mu          sync.Mutex
	loads       []string
	extractions int
	stops       int
	cleared     int
	loadErr     error
	onExtract   func()
}

func (s *fakeSurface) Load(_ context.Context, url string) error {
	s.mu.Lock()
	s.loads = append(s.loads, url)
	err := s.loadErr
	s.mu.Unlock()
	return err
}

func (s *fakeSurface) RunExtraction(_ context.Context) error {
	s.mu.Lock()
	s.extractions++
	hook := s.onExtract
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (s *fakeSurface) StopLoading() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
}

func (s *fakeSurface) ClearCookies(_ context.Context) error {
	s.mu.Lock()
	s.cleared++
	s.mu.Unlock()
	return nil
}

func (s *fakeSurface) Loads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.loads...)
}

func (s *fakeSurface) counts() (extractions, stops, cleared int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extractions, s.stops, s.cleared
}

type recordingListener struct {
	mu        sync.Mutex
	completed []CredentialResult
	cancelled int
	failed    []*AuthError
}

func (l *recordingListener) OnCompleted(result CredentialResult) {
	l.mu.Lock()
	l.completed = append(l.completed, result)
	l.mu.Unlock()
}

func (l *recordingListener) OnCancelled() {
	l.mu.Lock()
	l.cancelled++
	l.mu.Unlock()
}

func (l *recordingListener) OnFailed(err *AuthError) {
	l.mu.Lock()
	l.failed = append(l.failed, err)
	l.mu.Unlock()
}

// total returns how many terminal callbacks fired.
func (l *recordingListener) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.completed) + l.cancelled + len(l.failed)
}

func (l *recordingListener) snapshot() (completed []CredentialResult, cancelled int, failed []*AuthError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]CredentialResult(nil), l.completed...), l.cancelled, append([]*AuthError(nil), l.failed...)
}

const (
	testSSOURL = "https://idp.example/sso"
	testACSURL = "https://sp.example/acs"
	testSAML   = "PHNhbWxwOlJlc3BvbnNlLi4uPg=="
)

func newTestSAML() *SAMLStrategy {
	s, err := NewSAMLStrategy(SAMLConfig{
		SSOURL:               testSSOURL,
		AssertionConsumerURL: testACSURL,
	})
	if err != nil {
		panic(err)
	}
	return s
}

// staticStrategy is a minimal strategy with a fixed initial URL.
type staticStrategy struct {
	url   string
	err   error
	async bool
	gate  chan struct{}
}

func (s *staticStrategy) Protocol() Protocol { return ProtocolOAuth2 }

func (s *staticStrategy) InitialURLIsAsync() bool { return s.async }

func (s *staticStrategy) InitialURL(ctx context.Context, flow *Flow) (string, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	flow.setParam("marker", "set")
	return s.url, s.err
}

func (s *staticStrategy) Classify(_ *Flow, u *url.URL, _ Phase) Classification {
	if u.Path == "/done" {
		return ClassTerminalSuccess
	}
	return ClassContinue
}

func (s *staticStrategy) ExtractFromURL(_ *Flow, _ *url.URL) (CredentialResult, error) {
	return newResult(ProtocolOAuth2, nil), nil
}

func (s *staticStrategy) ExtractFromToken(_ *Flow, _ ExtractedToken) (CredentialResult, error) {
	return CredentialResult{}, errors.New("not supported")
}
