package loopback

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"webauth/internal/authflow"
	"webauth/pkg/logging"
)

const subsystem = "Loopback"

const (
	// DefaultCallbackPort is the default port for the local server.
	DefaultCallbackPort = 3000

	// DefaultCallbackPath receives OAuth2 redirects.
	DefaultCallbackPath = "/callback"

	// DefaultAssertionConsumerPath receives SAML POST-binding responses.
	DefaultAssertionConsumerPath = "/saml/acs"

	maxFormBytes    = 1 << 20
	eventBufferSize = 16
)

// Options configures Start.
type Options struct {
	// Port to listen on. Negative picks a random free port; zero means
	// DefaultCallbackPort.
	Port int

	CallbackPath          string
	AssertionConsumerPath string

	// FieldName is the posted form field holding the SAML response.
	FieldName string

	// Opener opens a URL in the user's browser. Defaults to OpenBrowser.
	Opener func(url string) error
}

// Surface is an authflow.Surface that delegates to the system browser.
type Surface struct {
	opts     Options
	server   *http.Server
	listener net.Listener
	baseURL  string

	events chan authflow.Event

	mu       sync.Mutex
	handled  bool
	pending  *authflow.ExtractedToken
	stopOnce sync.Once
}

// Start listens on 127.0.0.1 and serves the callback endpoints until Stop is
// called or ctx is done.
func Start(ctx context.Context, opts Options) (*Surface, error) {
	switch {
	case opts.Port == 0:
		opts.Port = DefaultCallbackPort
	case opts.Port < 0:
		opts.Port = 0
	}
	if opts.CallbackPath == "" {
		opts.CallbackPath = DefaultCallbackPath
	}
	if opts.AssertionConsumerPath == "" {
		opts.AssertionConsumerPath = DefaultAssertionConsumerPath
	}
	if opts.FieldName == "" {
		opts.FieldName = authflow.DefaultSAMLFieldName
	}
	if opts.Opener == nil {
		opts.Opener = OpenBrowser
	}

	addr := fmt.Sprintf("127.0.0.1:%d", opts.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	s := &Surface{
		opts:     opts,
		listener: listener,
		baseURL:  fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port),
		events:   make(chan authflow.Event, eventBufferSize),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+opts.CallbackPath, s.handleCallback)
	mux.HandleFunc("POST "+opts.CallbackPath+"/fragment", s.handleFragment)
	mux.HandleFunc("POST "+opts.AssertionConsumerPath, s.handleAssertion)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.emit(authflow.TransportFailure{Err: fmt.Errorf("callback server failed: %w", err)})
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logging.Debug(subsystem, "Callback server listening on %s", s.baseURL)
	return s, nil
}

// RedirectURI is the OAuth2 redirect URI served by the surface.
func (s *Surface) RedirectURI() string {
	return s.baseURL + s.opts.CallbackPath
}

// AssertionConsumerURL is the SAML assertion consumer URL served by the
// surface.
func (s *Surface) AssertionConsumerURL() string {
	return s.baseURL + s.opts.AssertionConsumerPath
}

// Events implements authflow.EventSource.
func (s *Surface) Events() <-chan authflow.Event {
	return s.events
}

func (s *Surface) emit(ev authflow.Event) {
	select {
	case s.events <- ev:
	default:
		logging.Warn(subsystem, "Event buffer full, dropping %T", ev)
	}
}

// Load implements authflow.Surface by opening url in the system browser.
func (s *Surface) Load(_ context.Context, url string) error {
	logging.Info(subsystem, "Opening browser for sign-in")
	return s.opts.Opener(url)
}

// RunExtraction implements authflow.Surface. It delivers the form field
// received by the assertion consumer.
func (s *Surface) RunExtraction(_ context.Context) error {
	s.mu.Lock()
	token := s.pending
	s.pending = nil
	s.mu.Unlock()

	if token == nil {
		return errors.New("no form post received on the assertion consumer")
	}
	s.emit(*token)
	return nil
}

// StopLoading implements authflow.Surface. The system browser cannot be
// stopped from here, so this is a no-op.
func (s *Surface) StopLoading() {}

// Stop shuts the server down.
func (s *Surface) Stop() {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
		_ = s.listener.Close()
	})
}

// claim marks the single callback as handled. It reports false when a
// callback was already processed.
func (s *Surface) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handled {
		return false
	}
	s.handled = true
	return true
}

func setSecurityHeaders(w http.ResponseWriter, scripts bool) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	if scripts {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'unsafe-inline'; style-src 'unsafe-inline'")
	} else {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	}
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
}

func render(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Surface) handleCallback(w http.ResponseWriter, r *http.Request) {
	// Implicit-flow responses carry their parameters in the fragment.
	if r.URL.RawQuery == "" {
		setSecurityHeaders(w, true)
		render(w, fragmentPage, map[string]string{"Path": s.opts.CallbackPath + "/fragment"})
		return
	}

	setSecurityHeaders(w, false)
	if !s.claim() {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	render(w, resultPage, map[string]string{
		"Title":       "Authentication",
		"Error":       query.Get("error"),
		"Description": query.Get("error_description"),
	})
	s.emit(authflow.NavigationEvent{URL: s.baseURL + r.URL.RequestURI(), Phase: authflow.PhaseStarted})
}

func (s *Surface) handleFragment(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w, false)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
	if err != nil || len(body) == 0 {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if !s.claim() {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
	s.emit(authflow.NavigationEvent{URL: s.RedirectURI() + "#" + string(body), Phase: authflow.PhaseStarted})
}

func (s *Surface) handleAssertion(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w, false)
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if !s.claim() {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.pending = &authflow.ExtractedToken{
		Raw:    r.PostForm.Get(s.opts.FieldName),
		Source: authflow.SourceFormPost,
	}
	s.mu.Unlock()

	render(w, resultPage, map[string]string{"Title": "Authentication"})
	s.emit(authflow.NavigationEvent{URL: s.AssertionConsumerURL(), Phase: authflow.PhaseFinished})
}
