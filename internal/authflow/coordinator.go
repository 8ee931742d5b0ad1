package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"sync"
	"time"

	"webauth/pkg/logging"
)

const subsystem = "authflow"

// DefaultExtractionTimeout bounds the wait in StateAwaitingExtraction.
const DefaultExtractionTimeout = 30 * time.Second

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithExtractionTimeout sets how long the coordinator waits for an extracted
// token before failing with an extraction timeout.
func WithExtractionTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.extractionTimeout = d
		}
	}
}

// WithObserver registers an observer for state transitions.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithClearCookies makes the coordinator clear the surface's cookies before
// loading the initial URL, when the surface supports it.
func WithClearCookies(clear bool) Option {
	return func(c *Coordinator) {
		c.clearCookies = clear
	}
}

// effect is a side effect computed under the lock and run after releasing it.
type effect func()

// Coordinator drives a single authentication flow. It is safe for concurrent
// use; events are processed one at a time in arrival order.
type Coordinator struct {
	mu sync.Mutex

	flow      *Flow
	strategy  Strategy
	surface   Surface
	listener  Listener
	observers []Observer

	extractionTimeout time.Duration
	clearCookies      bool

	ctx       context.Context
	cancel    context.CancelFunc
	stopWatch func() bool

	// round identifies the current extraction request so that timers from
	// an earlier round are ignored.
	round uint64
	timer *time.Timer

	detached bool
	outcome  Outcome
	done     chan struct{}
}

// NewCoordinator creates a coordinator for flow. A nil flow is replaced by a
// fresh one for the strategy's protocol. The coordinator keeps its own copy.
func NewCoordinator(flow *Flow, strategy Strategy, surface Surface, listener Listener, opts ...Option) *Coordinator {
	if flow == nil {
		flow = NewFlow(strategy.Protocol(), "")
	}
	flow = flow.Clone()
	if flow.Protocol == "" {
		flow.Protocol = strategy.Protocol()
	}

	c := &Coordinator{
		flow:              flow,
		strategy:          strategy,
		surface:           surface,
		listener:          listener,
		extractionTimeout: DefaultExtractionTimeout,
		ctx:               context.Background(),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins the flow: it computes the initial URL and instructs the
// surface to load it. Start requires StateIdle and returns ErrAlreadyStarted
// otherwise. When the strategy resolves its URL synchronously and fails, the
// flow ends Failed and the error is also returned. Cancelling ctx cancels the
// flow.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return ErrDetached
	}
	if c.flow.State != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}

	if c.flow.Protocol != c.strategy.Protocol() {
		err := NewConfigurationError(fmt.Sprintf("flow protocol %q does not match strategy protocol %q",
			c.flow.Protocol, c.strategy.Protocol()), nil)
		effs := c.finish(Outcome{State: StateFailed, Error: err})
		c.mu.Unlock()
		c.run(effs)
		return err
	}

	c.bindContext(ctx)
	c.flow.StartedAt = time.Now()
	effs := c.transition(StateLoading, nil)
	c.mu.Unlock()
	c.run(effs)

	logging.Debug(subsystem, "Flow %s started (protocol=%s)", c.flow.ID, c.flow.Protocol)
	return c.resolveInitialURL()
}

// resolveInitialURL asks the strategy for the initial URL and feeds the
// result back as an event.
func (c *Coordinator) resolveInitialURL() error {
	c.mu.Lock()
	ctx := c.ctx
	scratch := c.flow.Clone()
	c.mu.Unlock()

	if isAsync(c.strategy) {
		go func() {
			u, err := c.strategy.InitialURL(ctx, scratch)
			c.Handle(initialURLResolved{url: u, params: scratch.Params, err: err})
		}()
		return nil
	}

	u, err := c.strategy.InitialURL(ctx, scratch)
	if err == nil && u == "" {
		err = NewConfigurationError("strategy produced an empty initial URL", nil)
	}
	if err != nil {
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			authErr = NewConfigurationError("cannot compute initial URL", err)
		}
		c.Handle(initialURLResolved{err: authErr})
		return authErr
	}
	c.Handle(initialURLResolved{url: u, params: scratch.Params})
	return nil
}

// bindContext derives the flow context from ctx. Must be called with c.mu held.
func (c *Coordinator) bindContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.stopWatch = context.AfterFunc(ctx, func() {
		c.Cancel()
	})
}

// Cancel ends the flow as Cancelled. It is a no-op once the flow is terminal.
func (c *Coordinator) Cancel() {
	c.Handle(cancelRequest{})
}

// NotifyNavigationStarted implements Notifier.
func (c *Coordinator) NotifyNavigationStarted(url string) {
	c.Handle(NavigationEvent{URL: url, Phase: PhaseStarted})
}

// NotifyNavigationFinished implements Notifier.
func (c *Coordinator) NotifyNavigationFinished(url string) {
	c.Handle(NavigationEvent{URL: url, Phase: PhaseFinished})
}

// NotifyExtracted implements Notifier.
func (c *Coordinator) NotifyExtracted(token ExtractedToken) {
	c.Handle(token)
}

// NotifyTransportError implements Notifier.
func (c *Coordinator) NotifyTransportError(err error) {
	c.Handle(TransportFailure{Err: err})
}

// Handle processes a single event.
func (c *Coordinator) Handle(ev Event) {
	c.mu.Lock()
	effs := c.step(ev)
	c.mu.Unlock()
	c.run(effs)
}

// Pump feeds events from ch into the coordinator until ch is closed, ctx is
// done or the flow reaches a terminal state.
func (c *Coordinator) Pump(ctx context.Context, ch <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			c.Handle(ev)
		}
	}
}

func (c *Coordinator) step(ev Event) []effect {
	if c.detached {
		return nil
	}
	if c.flow.State.IsTerminal() {
		logging.Debug(subsystem, "Flow %s is %s, discarding %T", c.flow.ID, c.flow.State, ev)
		return nil
	}

	switch e := ev.(type) {
	case cancelRequest:
		logging.Info(subsystem, "Flow %s cancelled in state %s", c.flow.ID, c.flow.State)
		return c.finish(Outcome{State: StateCancelled}, c.stopLoading())
	case initialURLResolved:
		return c.onInitialURL(e)
	case NavigationEvent:
		return c.onNavigation(e)
	case ExtractedToken:
		return c.onExtracted(e)
	case TransportFailure:
		return c.onTransportError(e.Err)
	case extractionTimedOut:
		return c.onExtractionTimeout(e)
	default:
		logging.Warn(subsystem, "Flow %s ignoring unknown event %T", c.flow.ID, ev)
		return nil
	}
}

func (c *Coordinator) onInitialURL(e initialURLResolved) []effect {
	if c.flow.State != StateLoading || c.flow.InitialURL != "" {
		return nil
	}
	if e.err != nil {
		return c.fail(AsAuthError(e.err))
	}
	if e.url == "" {
		return c.fail(NewConfigurationError("strategy produced an empty initial URL", nil))
	}

	maps.Copy(c.flow.Params, e.params)
	c.flow.InitialURL = e.url
	logging.Debug(subsystem, "Flow %s loading initial URL", c.flow.ID)

	return []effect{c.loadEffect(e.url, c.clearCookies)}
}

func (c *Coordinator) loadEffect(target string, clearCookies bool) effect {
	ctx, surface := c.ctx, c.surface
	return func() {
		if clearCookies {
			if cc, ok := surface.(CookieClearer); ok {
				if err := cc.ClearCookies(ctx); err != nil {
					logging.Warn(subsystem, "Failed to clear cookies before start: %v", err)
				}
			}
		}
		if err := surface.Load(ctx, target); err != nil {
			c.NotifyTransportError(err)
		}
	}
}

func (c *Coordinator) onNavigation(e NavigationEvent) []effect {
	if c.flow.State != StateLoading {
		logging.Debug(subsystem, "Flow %s ignoring navigation %s in state %s", c.flow.ID, e.Phase, c.flow.State)
		return nil
	}

	u, err := url.Parse(e.URL)
	if err != nil {
		logging.Debug(subsystem, "Flow %s ignoring unparsable navigation URL: %v", c.flow.ID, err)
		return nil
	}
	c.flow.CurrentURL = e.URL

	class := c.strategy.Classify(c.flow, u, e.Phase)
	logging.Debug(subsystem, "Flow %s navigation %s classified as %s", c.flow.ID, e.Phase, class)

	switch class {
	case ClassTerminalSuccess, ClassTerminalFailure:
		result, err := c.strategy.ExtractFromURL(c.flow, u)
		if err != nil {
			return c.fail(asExtractionError(err), c.stopLoading())
		}
		return c.complete(result, c.stopLoading())
	case ClassNeedsExtraction:
		if e.Phase != PhaseFinished {
			return nil
		}
		return c.awaitExtraction()
	default:
		return nil
	}
}

func (c *Coordinator) awaitExtraction() []effect {
	effs := c.transition(StateAwaitingExtraction, nil)
	c.armTimer()

	ctx, surface := c.ctx, c.surface
	return append(effs, func() {
		if err := surface.RunExtraction(ctx); err != nil {
			c.NotifyTransportError(err)
		}
	})
}

// armTimer starts a new extraction round. Must be called with c.mu held.
func (c *Coordinator) armTimer() {
	c.stopTimer()
	c.round++
	round := c.round
	c.timer = time.AfterFunc(c.extractionTimeout, func() {
		c.Handle(extractionTimedOut{round: round})
	})
}

func (c *Coordinator) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) onExtracted(tok ExtractedToken) []effect {
	if c.flow.State != StateAwaitingExtraction {
		logging.Debug(subsystem, "Flow %s ignoring extracted payload in state %s", c.flow.ID, c.flow.State)
		return nil
	}
	c.stopTimer()

	result, err := c.strategy.ExtractFromToken(c.flow, tok)
	if err != nil {
		return c.fail(asExtractionError(err), c.stopLoading())
	}
	return c.complete(result, c.stopLoading())
}

func (c *Coordinator) onTransportError(err error) []effect {
	logging.Debug(subsystem, "Flow %s transport error in state %s: %v", c.flow.ID, c.flow.State, err)
	return c.fail(AsAuthError(err))
}

func (c *Coordinator) onExtractionTimeout(e extractionTimedOut) []effect {
	if c.flow.State != StateAwaitingExtraction || e.round != c.round {
		return nil
	}
	return c.fail(NewExtractionTimeout(c.extractionTimeout), c.stopLoading())
}

func (c *Coordinator) stopLoading() effect {
	surface := c.surface
	return func() {
		if surface != nil {
			surface.StopLoading()
		}
	}
}

func (c *Coordinator) complete(result CredentialResult, extra ...effect) []effect {
	if result.Protocol == "" {
		result.Protocol = c.flow.Protocol
	}
	logging.Audit(subsystem, "credential_received",
		slog.String("flow_id", c.flow.ID.String()),
		slog.String("protocol", string(result.Protocol)),
		slog.Bool("has_access_token", result.Token != ""),
		slog.Bool("has_code", result.Code != ""),
		slog.Bool("has_assertion", result.Assertion != ""),
	)
	return c.finish(Outcome{State: StateCompleted, Result: result}, extra...)
}

func (c *Coordinator) fail(err *AuthError, extra ...effect) []effect {
	logging.Warn(subsystem, "Flow %s failed (%s): %v", c.flow.ID, err.Kind, err)
	return c.finish(Outcome{State: StateFailed, Error: err}, extra...)
}

// finish moves the flow into a terminal state. Must be called with c.mu held
// and only from a non-terminal state.
func (c *Coordinator) finish(o Outcome, extra ...effect) []effect {
	effs := c.transition(o.State, o.Error)
	c.stopTimer()
	c.outcome = o
	if c.stopWatch != nil {
		c.stopWatch()
	}

	cancel, listener, done := c.cancel, c.listener, c.done
	effs = append(effs, extra...)
	return append(effs, func() {
		deliver(listener, o)
		close(done)
		if cancel != nil {
			cancel()
		}
	})
}

// transition changes state and returns the observer notifications. Must be
// called with c.mu held.
func (c *Coordinator) transition(to State, err *AuthError) []effect {
	from := c.flow.State
	c.flow.State = to
	logging.Debug(subsystem, "Flow %s: %s -> %s", c.flow.ID, from, to)

	if len(c.observers) == 0 {
		return nil
	}
	t := Transition{Flow: c.flow.Clone(), From: from, To: to, Err: err}
	observers := c.observers
	return []effect{func() {
		for _, o := range observers {
			o.ObserveTransition(t)
		}
	}}
}

func (c *Coordinator) run(effs []effect) {
	for _, e := range effs {
		e()
	}
}

func asExtractionError(err error) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return NewExtractionError("cannot extract credential", err)
}

// State returns the current state of the flow.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flow.State
}

// Flow returns a copy of the flow.
func (c *Coordinator) Flow() *Flow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flow.Clone()
}

// Done is closed after the terminal outcome has been delivered.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Outcome returns the terminal outcome once the flow is done.
func (c *Coordinator) Outcome() (Outcome, bool) {
	select {
	case <-c.done:
	default:
		return Outcome{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome, true
}

// Wait blocks until the flow is done or ctx is cancelled.
func (c *Coordinator) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-c.done:
		o, _ := c.Outcome()
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
