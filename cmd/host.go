package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"webauth/internal/authflow"
	"webauth/internal/config"
	"webauth/internal/metrics"
	"webauth/pkg/logging"

	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

// errSuspended is returned by an attempt whose flow was handed to the store.
var errSuspended = errors.New("flow suspended")

// flowHost runs flows for the CLI: it owns the surface lifecycle, forwards
// surface events to the coordinator and turns the outcome into output.
type flowHost struct {
	cfg   config.Config
	store authflow.FlowStore

	out    io.Writer
	errOut io.Writer

	progress *progress
	recorder *metrics.Recorder

	// signals interrupts the flow; nil disables interruption.
	signals <-chan os.Signal

	suspendOnInterrupt bool
	showSecrets        bool

	sessionOpts sessionOptions
}

// attemptResult is what one attempt produced.
type attemptResult struct {
	outcome authflow.Outcome
	flow    *authflow.Flow
	token   *oauth2.Token
}

// run runs fn alongside the metrics server, when one is configured.
func (h *flowHost) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if h.cfg.MetricsAddr == "" {
		return fn(ctx)
	}

	server := &http.Server{
		Addr:              h.cfg.MetricsAddr,
		Handler:           h.recorder.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info("CLI", "Serving metrics on %s", h.cfg.MetricsAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		return fn(gctx)
	})
	return g.Wait()
}

// login runs new flows until one ends without a retryable transport error.
func (h *flowHost) login(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		res, err := h.attempt(ctx, "")
		if errors.Is(err, errSuspended) {
			return nil
		}
		if err != nil {
			return err
		}

		o := res.outcome
		if o.State == authflow.StateFailed && authflow.IsTransportError(o.Error) &&
			h.cfg.RetryOnTransportError && attempt < h.cfg.MaxRetries {
			fmt.Fprintf(h.errOut, "%s %v\n", text.FgYellow.Sprint("Sign-in failed:"), o.Error)
			fmt.Fprintf(h.errOut, "Retrying (%d/%d)...\n", attempt+1, h.cfg.MaxRetries)
			continue
		}
		return h.report(res)
	}
}

// resume continues the flow stored under token.
func (h *flowHost) resume(ctx context.Context, token string) error {
	res, err := h.attempt(ctx, token)
	if errors.Is(err, errSuspended) {
		return nil
	}
	if err != nil {
		return err
	}
	return h.report(res)
}

func (h *flowHost) report(res attemptResult) error {
	switch res.outcome.State {
	case authflow.StateCompleted:
		renderResult(h.out, res.flow, res.outcome.Result, res.token, h.showSecrets)
	case authflow.StateCancelled:
		fmt.Fprintln(h.errOut, text.FgYellow.Sprint("Sign-in cancelled."))
	}
	return res.outcome.Err()
}

// attempt runs one flow on a fresh surface. An empty token starts a new
// flow; otherwise the stored flow is resumed.
func (h *flowHost) attempt(ctx context.Context, token string) (attemptResult, error) {
	sess, err := openSession(ctx, h.cfg, h.sessionOpts)
	if err != nil {
		return attemptResult{}, err
	}
	defer sess.close()
	defer h.progress.End()

	opts := []authflow.Option{
		authflow.WithExtractionTimeout(h.cfg.ExtractionTimeout),
		authflow.WithClearCookies(h.cfg.ClearCookiesBeforeStart),
		authflow.WithObserver(authflow.ObserverFunc(logTransition)),
	}
	if h.recorder != nil {
		opts = append(opts, authflow.WithObserver(h.recorder))
	}
	listener := authflow.ListenerFuncs{
		Completed: func(authflow.CredentialResult) { h.progress.End() },
		Cancelled: h.progress.End,
		Failed:    func(*authflow.AuthError) { h.progress.End() },
	}

	coord, err := h.coordinator(ctx, sess, token, listener, opts)
	if err != nil {
		return attemptResult{}, err
	}

	pumpCtx, stopPump := context.WithCancel(ctx)
	defer stopPump()
	go func() {
		_ = coord.Pump(pumpCtx, withProgress(pumpCtx, sess.events, h.progress))
	}()

	select {
	case <-coord.Done():
	case <-sess.closed:
		logging.Info("CLI", "Browser window closed")
		coord.Cancel()
	case <-h.signals:
		if h.suspendOnInterrupt {
			stored, err := coord.Suspend(context.Background(), h.store)
			if err == nil {
				h.progress.End()
				fmt.Fprintf(h.errOut, "\nSign-in suspended. Continue with:\n\n  webauth resume --token %s\n\n", stored)
				return attemptResult{}, errSuspended
			}
			logging.Warn("CLI", "Could not suspend flow: %v", err)
		}
		coord.Cancel()
	case <-ctx.Done():
	}

	outcome, err := coord.Wait(context.Background())
	if err != nil {
		return attemptResult{}, err
	}

	res := attemptResult{outcome: outcome, flow: coord.Flow()}
	if outcome.State == authflow.StateCompleted && h.cfg.OAuth2.ExchangeCode && sess.oauth2 != nil && outcome.Result.Code != "" {
		h.progress.Begin("Exchanging authorization code")
		res.token, err = sess.oauth2.Exchange(ctx, res.flow, outcome.Result)
		h.progress.End()
		if err != nil {
			return attemptResult{}, err
		}
	}
	return res, nil
}

func (h *flowHost) coordinator(ctx context.Context, sess *session, token string, listener authflow.Listener, opts []authflow.Option) (*authflow.Coordinator, error) {
	if token == "" {
		flow := authflow.NewFlow(sess.strategy.Protocol(), h.cfg.Title)
		coord := authflow.NewCoordinator(flow, sess.strategy, sess.surface, listener, opts...)
		h.progress.Begin(startMessage(h.cfg.Title))
		if err := coord.Start(ctx); err != nil {
			return nil, err
		}
		return coord, nil
	}

	coord, err := authflow.Resume(ctx, h.store, token, sess.strategy, sess.surface, listener, opts...)
	if err != nil {
		return nil, err
	}
	h.progress.Begin(startMessage(h.cfg.Title))

	flow := coord.Flow()
	switch {
	case flow.State == authflow.StateIdle:
		err = coord.Start(ctx)
	case flow.State == authflow.StateLoading && flow.InitialURL != "":
		err = coord.Reload()
	}
	if err != nil {
		return nil, err
	}
	return coord, nil
}

func startMessage(title string) string {
	if title == "" {
		return "Waiting for sign-in"
	}
	return "Waiting for sign-in: " + title
}

func logTransition(t authflow.Transition) {
	if t.Err != nil {
		logging.Debug("CLI", "Flow %s: %s -> %s (%s)", t.Flow.ID, t.From, t.To, t.Err.Kind)
		return
	}
	logging.Debug("CLI", "Flow %s: %s -> %s", t.Flow.ID, t.From, t.To)
}
