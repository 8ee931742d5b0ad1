package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"webauth/internal/authflow"
	"webauth/pkg/logging"
)

const subsystem = "Browser"

const (
	// DefaultTimeout is the default Playwright operation timeout.
	DefaultTimeout = 60 * time.Second

	DefaultViewportWidth  = 1024
	DefaultViewportHeight = 768

	eventBufferSize = 256
)

// Options configures Launch.
type Options struct {
	// Headless runs the browser without a visible window.
	Headless bool

	// Timeout is the default Playwright operation timeout.
	Timeout time.Duration

	// ExtractionScript is evaluated on the page when the coordinator runs
	// the extraction hook. It must call the bridge function.
	ExtractionScript string

	// SkipInstall skips downloading the Playwright driver and browsers.
	SkipInstall bool

	Width  int
	Height int
}

// Surface is an authflow.Surface backed by a Playwright page.
type Surface struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	script string

	events    chan authflow.Event
	closed    chan struct{}
	closeOnce sync.Once
}

func newSurface(script string) *Surface {
	return &Surface{
		script: script,
		events: make(chan authflow.Event, eventBufferSize),
		closed: make(chan struct{}),
	}
}

// Launch starts Playwright, opens a Chromium page and wires its events.
func Launch(opts Options) (*Surface, error) {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Width == 0 || opts.Height == 0 {
		opts.Width, opts.Height = DefaultViewportWidth, DefaultViewportHeight
	}

	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if !opts.SkipInstall {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.Width, Height: opts.Height},
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	s := newSurface(opts.ExtractionScript)
	s.pw, s.browser, s.context, s.page = pw, browser, bctx, page

	if err := page.ExposeFunction(authflow.BridgeName, s.onBridge); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to expose extraction bridge: %w", err)
	}
	s.wire()

	logging.Debug(subsystem, "Browser surface launched (headless=%t)", opts.Headless)
	return s, nil
}

func (s *Surface) wire() {
	mainFrame := s.page.MainFrame()

	s.page.OnRequest(func(req playwright.Request) {
		s.onRequest(req.IsNavigationRequest() && req.Frame() == mainFrame, req.URL())
	})
	s.page.OnRequestFailed(func(req playwright.Request) {
		failure := ""
		if err := req.Failure(); err != nil {
			failure = err.Error()
		}
		s.onRequestFailed(req.IsNavigationRequest() && req.Frame() == mainFrame, req.URL(), failure)
	})
	s.page.OnLoad(func(p playwright.Page) {
		s.onLoad(p.URL())
	})
	s.page.OnClose(func(playwright.Page) {
		s.markClosed()
	})
}

// Events implements authflow.EventSource.
func (s *Surface) Events() <-chan authflow.Event {
	return s.events
}

// Closed is closed when the user closes the browser window.
func (s *Surface) Closed() <-chan struct{} {
	return s.closed
}

func (s *Surface) emit(ev authflow.Event) {
	select {
	case s.events <- ev:
	default:
		logging.Warn(subsystem, "Event buffer full, dropping %T", ev)
	}
}

func (s *Surface) markClosed() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}

func (s *Surface) onRequest(mainNavigation bool, url string) {
	if !mainNavigation {
		return
	}
	s.emit(authflow.NavigationEvent{URL: url, Phase: authflow.PhaseStarted})
}

func (s *Surface) onRequestFailed(mainNavigation bool, url, failure string) {
	if !mainNavigation || isAbort(failure) {
		return
	}
	logging.Debug(subsystem, "Navigation failed: %s", failure)
	s.emit(authflow.TransportFailure{Err: fmt.Errorf("loading %s: %s", redactURL(url), failure)})
}

func (s *Surface) onLoad(url string) {
	s.emit(authflow.NavigationEvent{URL: url, Phase: authflow.PhaseFinished})
}

// onBridge receives the payload handed over by the extraction script. An
// empty payload means the page did not carry the response yet and is
// dropped, leaving the outcome to the extraction timeout.
func (s *Surface) onBridge(args ...interface{}) interface{} {
	raw := ""
	if len(args) > 0 {
		if v, ok := args[0].(string); ok {
			raw = v
		}
	}
	if strings.TrimSpace(raw) == "" {
		logging.Debug(subsystem, "Extraction bridge called without a payload")
		return nil
	}
	s.emit(authflow.ExtractedToken{Raw: raw, Source: authflow.SourceScriptExtraction})
	return nil
}

// isAbort reports whether a failure is a navigation superseded by another
// one or stopped on purpose, which is not a transport error.
func isAbort(failure string) bool {
	return strings.Contains(failure, "ERR_ABORTED") || strings.Contains(failure, "NS_BINDING_ABORTED")
}

// redactURL drops query and fragment, which may carry credentials.
func redactURL(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// Load implements authflow.Surface. Navigation runs in the background;
// progress and failures arrive as events.
func (s *Surface) Load(_ context.Context, url string) error {
	if s.page == nil {
		return errors.New("browser surface is not launched")
	}
	go func() {
		if _, err := s.page.Goto(url); err != nil {
			logging.Debug(subsystem, "Goto returned: %v", err)
		}
	}()
	return nil
}

// RunExtraction implements authflow.Surface.
func (s *Surface) RunExtraction(_ context.Context) error {
	if s.script == "" {
		return errors.New("no extraction script configured")
	}
	if s.page == nil {
		return errors.New("browser surface is not launched")
	}
	go func() {
		if _, err := s.page.Evaluate(s.script); err != nil {
			s.emit(authflow.TransportFailure{Err: fmt.Errorf("extraction script failed: %w", err)})
		}
	}()
	return nil
}

// StopLoading implements authflow.Surface.
func (s *Surface) StopLoading() {
	if s.page == nil {
		return
	}
	go func() {
		_, _ = s.page.Evaluate("() => window.stop()")
	}()
}

// ClearCookies implements authflow.CookieClearer.
func (s *Surface) ClearCookies(_ context.Context) error {
	if s.context == nil {
		return nil
	}
	return s.context.ClearCookies()
}

// Close releases the page, browser and Playwright driver.
func (s *Surface) Close() error {
	var errs []error
	if s.page != nil {
		_ = s.page.Close()
	}
	if s.context != nil {
		_ = s.context.Close()
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	s.markClosed()
	return errors.Join(errs...)
}
