package cmd

import (
	"context"
	"io"
	"net/url"
	"sync"
	"time"

	"webauth/internal/authflow"

	"github.com/briandowns/spinner"
)

// progress shows a spinner while the surface is loading a page.
type progress struct {
	mu      sync.Mutex
	spinner *spinner.Spinner
}

// newProgress returns nil when quiet; a nil progress ignores every call.
func newProgress(w io.Writer, quiet bool) *progress {
	if quiet {
		return nil
	}
	return &progress{
		spinner: spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w)),
	}
}

// Begin starts the spinner with message.
func (p *progress) Begin(message string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spinner.Suffix = " " + message
	if !p.spinner.Active() {
		p.spinner.Start()
	}
}

// End stops the spinner.
func (p *progress) End() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spinner.Active() {
		p.spinner.Stop()
	}
}

// withProgress forwards surface events unchanged, toggling p on navigation
// start and finish.
func withProgress(ctx context.Context, in <-chan authflow.Event, p *progress) <-chan authflow.Event {
	out := make(chan authflow.Event, cap(in))
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					return
				}
				if nav, ok := ev.(authflow.NavigationEvent); ok {
					switch nav.Phase {
					case authflow.PhaseStarted:
						p.Begin("Loading " + hostOf(nav.URL))
					case authflow.PhaseFinished:
						p.End()
					}
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "page"
	}
	return u.Host
}
