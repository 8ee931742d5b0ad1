package authflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startSAML(t *testing.T, opts ...Option) (*Coordinator, *fakeSurface, *recordingListener) {
	t.Helper()
	surface := &fakeSurface{}
	listener := &recordingListener{}
	c := NewCoordinator(NewFlow(ProtocolSAML, "Sign in"), newTestSAML(), surface, listener, opts...)
	require.NoError(t, c.Start(context.Background()))
	return c, surface, listener
}

func TestCoordinator_SAMLHappyPath(t *testing.T) {
	c, surface, listener := startSAML(t)

	assert.Equal(t, StateLoading, c.State())
	assert.Equal(t, []string{testSSOURL}, surface.Loads())

	c.NotifyNavigationStarted(testACSURL)
	assert.Equal(t, StateLoading, c.State(), "started phase of the ACS page does not extract")

	c.NotifyNavigationFinished("https://idp.example/mfa")
	assert.Equal(t, StateLoading, c.State())

	c.NotifyNavigationFinished(testACSURL)
	assert.Equal(t, StateAwaitingExtraction, c.State())
	extractions, _, _ := surface.counts()
	assert.Equal(t, 1, extractions)

	c.NotifyExtracted(ExtractedToken{Raw: testSAML, Source: SourceScriptExtraction})
	assert.Equal(t, StateCompleted, c.State())

	completed, cancelled, failed := listener.snapshot()
	require.Len(t, completed, 1)
	assert.Zero(t, cancelled)
	assert.Empty(t, failed)
	assert.True(t, completed[0].Authenticated)
	assert.Equal(t, "<samlp:Response...>", completed[0].Assertion)
	assert.Equal(t, ProtocolSAML, completed[0].Protocol)

	_, stops, _ := surface.counts()
	assert.Equal(t, 1, stops, "surface stops loading after extraction")

	outcome, ok := c.Outcome()
	require.True(t, ok)
	assert.Equal(t, StateCompleted, outcome.State)
	assert.NoError(t, outcome.Err())
}

func TestCoordinator_TerminalIsFrozen(t *testing.T) {
	c, _, listener := startSAML(t)
	c.NotifyNavigationFinished(testACSURL)
	c.NotifyExtracted(ExtractedToken{Raw: testSAML, Source: SourceScriptExtraction})
	require.Equal(t, StateCompleted, c.State())

	c.NotifyExtracted(ExtractedToken{Raw: testSAML, Source: SourceScriptExtraction})
	c.NotifyNavigationFinished(testACSURL)
	c.NotifyNavigationStarted(testACSURL)
	c.NotifyTransportError(errors.New("connection reset"))
	c.Cancel()
	c.Cancel()

	assert.Equal(t, StateCompleted, c.State())
	assert.Equal(t, 1, listener.total())
}

func TestCoordinator_CancelWinsOverInFlightNavigation(t *testing.T) {
	strategy, err := NewOAuth2Strategy(OAuth2Config{
		AuthorizationEndpoint: "https://auth.example/authorize",
		ClientID:              "client",
		RedirectURI:           "https://app.example/cb",
		ResponseType:          ResponseTypeToken,
	})
	require.NoError(t, err)

	surface := &fakeSurface{}
	listener := &recordingListener{}
	c := NewCoordinator(nil, strategy, surface, listener)
	require.NoError(t, c.Start(context.Background()))

	c.Cancel()
	state := c.Flow().Param(ParamState)
	c.NotifyNavigationStarted("https://app.example/cb#access_token=abc123&token_type=bearer&state=" + state)

	completed, cancelled, failed := listener.snapshot()
	assert.Empty(t, completed)
	assert.Equal(t, 1, cancelled)
	assert.Empty(t, failed)
	assert.Equal(t, StateCancelled, c.State())

	_, stops, _ := surface.counts()
	assert.Equal(t, 1, stops)

	outcome, ok := c.Outcome()
	require.True(t, ok)
	assert.ErrorIs(t, outcome.Err(), ErrUserCancelled)
}

func TestCoordinator_StartTwice(t *testing.T) {
	c, surface, _ := startSAML(t)

	err := c.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Len(t, surface.Loads(), 1)
	assert.Equal(t, StateLoading, c.State())
}

func TestCoordinator_StartAfterTerminal(t *testing.T) {
	c, _, _ := startSAML(t)
	c.Cancel()

	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
}

func TestCoordinator_CancelFromIdle(t *testing.T) {
	listener := &recordingListener{}
	c := NewCoordinator(nil, newTestSAML(), &fakeSurface{}, listener)

	c.Cancel()

	assert.Equal(t, StateCancelled, c.State())
	assert.Equal(t, 1, listener.total())
	assert.ErrorIs(t, c.Start(context.Background()), ErrAlreadyStarted)
}

func TestCoordinator_StartConfigurationError(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
	}{
		{
			name:     "strategy error",
			strategy: &staticStrategy{err: errors.New("no tenant configured")},
		},
		{
			name:     "empty URL",
			strategy: &staticStrategy{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			surface := &fakeSurface{}
			listener := &recordingListener{}
			c := NewCoordinator(nil, tt.strategy, surface, listener)

			err := c.Start(context.Background())
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))

			assert.Equal(t, StateFailed, c.State())
			assert.Empty(t, surface.Loads())
			_, _, failed := listener.snapshot()
			require.Len(t, failed, 1)
			assert.Equal(t, KindConfiguration, failed[0].Kind)
		})
	}
}

func TestCoordinator_ProtocolMismatch(t *testing.T) {
	listener := &recordingListener{}
	c := NewCoordinator(NewFlow(ProtocolOAuth2, ""), newTestSAML(), &fakeSurface{}, listener)

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, 1, listener.total())
}

func TestCoordinator_TransportError(t *testing.T) {
	t.Run("from loading", func(t *testing.T) {
		c, _, listener := startSAML(t)
		cause := errors.New("net::ERR_NAME_NOT_RESOLVED")

		c.NotifyTransportError(cause)

		assert.Equal(t, StateFailed, c.State())
		_, _, failed := listener.snapshot()
		require.Len(t, failed, 1)
		assert.True(t, IsTransportError(failed[0]))
		assert.ErrorIs(t, failed[0], cause)
	})

	t.Run("from awaiting extraction", func(t *testing.T) {
		c, _, listener := startSAML(t)
		c.NotifyNavigationFinished(testACSURL)

		c.NotifyTransportError(errors.New("connection reset"))

		assert.Equal(t, StateFailed, c.State())
		assert.Equal(t, 1, listener.total())
	})

	t.Run("surface load failure", func(t *testing.T) {
		surface := &fakeSurface{loadErr: errors.New("browser closed")}
		listener := &recordingListener{}
		c := NewCoordinator(nil, newTestSAML(), surface, listener)

		require.NoError(t, c.Start(context.Background()))

		assert.Equal(t, StateFailed, c.State())
		_, _, failed := listener.snapshot()
		require.Len(t, failed, 1)
		assert.True(t, IsTransportError(failed[0]))
	})
}

func TestCoordinator_MalformedExtraction(t *testing.T) {
	c, _, listener := startSAML(t)
	c.NotifyNavigationFinished(testACSURL)

	c.NotifyExtracted(ExtractedToken{Raw: "not base64!", Source: SourceScriptExtraction})

	assert.Equal(t, StateFailed, c.State())
	_, _, failed := listener.snapshot()
	require.Len(t, failed, 1)
	assert.True(t, IsExtractionError(failed[0]))
}

func TestCoordinator_EventsOutOfState(t *testing.T) {
	c, _, listener := startSAML(t)

	// Extracted payload before the extraction hook ran.
	c.NotifyExtracted(ExtractedToken{Raw: testSAML, Source: SourceScriptExtraction})
	assert.Equal(t, StateLoading, c.State())

	c.NotifyNavigationFinished(testACSURL)
	require.Equal(t, StateAwaitingExtraction, c.State())

	// Navigation while waiting for the payload.
	c.NotifyNavigationFinished(testACSURL)
	c.NotifyNavigationStarted("https://idp.example/other")
	assert.Equal(t, StateAwaitingExtraction, c.State())
	assert.Zero(t, listener.total())
}

func TestCoordinator_ExtractionTimeout(t *testing.T) {
	c, surface, listener := startSAML(t, WithExtractionTimeout(20*time.Millisecond))
	c.NotifyNavigationFinished(testACSURL)

	require.Eventually(t, func() bool {
		return c.State() == StateFailed
	}, time.Second, 5*time.Millisecond)

	_, _, failed := listener.snapshot()
	require.Len(t, failed, 1)
	assert.True(t, IsExtractionTimeout(failed[0]))
	_, stops, _ := surface.counts()
	assert.Equal(t, 1, stops)

	c.NotifyExtracted(ExtractedToken{Raw: testSAML, Source: SourceScriptExtraction})
	assert.Equal(t, 1, listener.total())
}

func TestCoordinator_HookWithoutPayloadTimesOut(t *testing.T) {
	// The consumer page lacks the response field, so the hook runs and
	// delivers nothing.
	c, surface, listener := startSAML(t, WithExtractionTimeout(20*time.Millisecond))
	c.NotifyNavigationFinished(testACSURL)

	extractions, _, _ := surface.counts()
	require.Equal(t, 1, extractions)

	require.Eventually(t, func() bool {
		return c.State() == StateFailed
	}, time.Second, 5*time.Millisecond)

	completed, _, failed := listener.snapshot()
	assert.Empty(t, completed)
	require.Len(t, failed, 1)
	assert.True(t, IsExtractionTimeout(failed[0]))
}

func TestCoordinator_ExtractionBeatsTimeout(t *testing.T) {
	c, _, listener := startSAML(t, WithExtractionTimeout(50*time.Millisecond))
	c.NotifyNavigationFinished(testACSURL)
	c.NotifyExtracted(ExtractedToken{Raw: testSAML, Source: SourceScriptExtraction})

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, StateCompleted, c.State())
	assert.Equal(t, 1, listener.total())
}

func TestCoordinator_ExtractionDuringHook(t *testing.T) {
	// A surface may deliver the payload from inside RunExtraction.
	surface := &fakeSurface{}
	listener := &recordingListener{}
	c := NewCoordinator(nil, newTestSAML(), surface, listener)
	surface.onExtract = func() {
		c.NotifyExtracted(ExtractedToken{Raw: testSAML, Source: SourceScriptExtraction})
	}
	require.NoError(t, c.Start(context.Background()))

	c.NotifyNavigationFinished(testACSURL)

	assert.Equal(t, StateCompleted, c.State())
	assert.Equal(t, 1, listener.total())
}

func TestCoordinator_ListenerReentry(t *testing.T) {
	surface := &fakeSurface{}
	var c *Coordinator
	var seen State
	listener := ListenerFuncs{
		Completed: func(CredentialResult) {
			seen = c.State()
			c.Cancel()
		},
	}
	c = NewCoordinator(nil, newTestSAML(), surface, listener)
	require.NoError(t, c.Start(context.Background()))

	c.NotifyNavigationFinished(testACSURL)
	c.NotifyExtracted(ExtractedToken{Raw: testSAML, Source: SourceScriptExtraction})

	assert.Equal(t, StateCompleted, seen)
	assert.Equal(t, StateCompleted, c.State())
}

func TestCoordinator_AsyncInitialURL(t *testing.T) {
	gate := make(chan struct{})
	strategy := &staticStrategy{url: "https://auth.example/authorize", async: true, gate: gate}
	surface := &fakeSurface{}
	listener := &recordingListener{}
	c := NewCoordinator(nil, strategy, surface, listener)

	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, StateLoading, c.State())
	assert.Empty(t, surface.Loads())

	close(gate)
	require.Eventually(t, func() bool {
		return len(surface.Loads()) == 1
	}, time.Second, 5*time.Millisecond)

	flow := c.Flow()
	assert.Equal(t, "https://auth.example/authorize", flow.InitialURL)
	assert.Equal(t, "set", flow.Param("marker"))

	c.NotifyNavigationStarted("https://app.example/done")
	assert.Equal(t, StateCompleted, c.State())
}

func TestCoordinator_AsyncInitialURLFailure(t *testing.T) {
	strategy := &staticStrategy{err: errors.New("discovery failed"), async: true}
	listener := &recordingListener{}
	c := NewCoordinator(nil, strategy, &fakeSurface{}, listener)

	require.NoError(t, c.Start(context.Background()))

	outcome, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateFailed, outcome.State)
	assert.True(t, IsTransportError(outcome.Error))
}

func TestCoordinator_CancelDuringAsyncResolution(t *testing.T) {
	gate := make(chan struct{})
	strategy := &staticStrategy{url: "https://auth.example/authorize", async: true, gate: gate}
	surface := &fakeSurface{}
	listener := &recordingListener{}
	c := NewCoordinator(nil, strategy, surface, listener)
	require.NoError(t, c.Start(context.Background()))

	c.Cancel()
	close(gate)
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, surface.Loads())
	_, cancelled, _ := listener.snapshot()
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, 1, listener.total())
}

func TestCoordinator_ParentContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	listener := &recordingListener{}
	c := NewCoordinator(nil, newTestSAML(), &fakeSurface{}, listener)
	require.NoError(t, c.Start(ctx))

	cancel()

	outcome, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, outcome.State)
	assert.Equal(t, 1, listener.total())
}

func TestCoordinator_ConcurrentEvents(t *testing.T) {
	c, _, listener := startSAML(t)
	c.NotifyNavigationFinished(testACSURL)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			c.NotifyExtracted(ExtractedToken{Raw: testSAML, Source: SourceScriptExtraction})
		}()
		go func() {
			defer wg.Done()
			c.Cancel()
		}()
		go func() {
			defer wg.Done()
			c.NotifyTransportError(errors.New("reset"))
		}()
	}
	wg.Wait()

	assert.True(t, c.State().IsTerminal())
	assert.Equal(t, 1, listener.total())
}

func TestCoordinator_Pump(t *testing.T) {
	c, _, listener := startSAML(t)
	events := make(chan Event, 4)
	events <- NavigationEvent{URL: testACSURL, Phase: PhaseFinished}
	events <- ExtractedToken{Raw: testSAML, Source: SourceScriptExtraction}

	done := make(chan error, 1)
	go func() {
		done <- c.Pump(context.Background(), events)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("pump did not stop after the flow finished")
	}
	assert.Equal(t, StateCompleted, c.State())
	assert.Equal(t, 1, listener.total())
}

func TestCoordinator_PumpStopsOnContext(t *testing.T) {
	c, _, _ := startSAML(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Pump(ctx, make(chan Event))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCoordinator_WaitRespectsContext(t *testing.T) {
	c, _, _ := startSAML(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok := c.Outcome()
	assert.False(t, ok)
}

func TestCoordinator_ClearCookies(t *testing.T) {
	surface := &fakeSurface{}
	c := NewCoordinator(nil, newTestSAML(), surface, nil, WithClearCookies(true))
	require.NoError(t, c.Start(context.Background()))

	_, _, cleared := surface.counts()
	assert.Equal(t, 1, cleared)
}

func TestCoordinator_Observer(t *testing.T) {
	var mu sync.Mutex
	var transitions []Transition
	observer := ObserverFunc(func(tr Transition) {
		mu.Lock()
		transitions = append(transitions, tr)
		mu.Unlock()
	})

	c, _, _ := startSAML(t, WithObserver(observer))
	c.NotifyNavigationFinished(testACSURL)
	c.NotifyExtracted(ExtractedToken{Raw: testSAML, Source: SourceScriptExtraction})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 3)
	assert.Equal(t, StateIdle, transitions[0].From)
	assert.Equal(t, StateLoading, transitions[0].To)
	assert.Equal(t, StateAwaitingExtraction, transitions[1].To)
	assert.Equal(t, StateCompleted, transitions[2].To)
	assert.Equal(t, "Sign in", transitions[2].Flow.Title)
}

func TestCoordinator_FlowIsACopy(t *testing.T) {
	c, _, _ := startSAML(t)

	flow := c.Flow()
	flow.State = StateCompleted
	flow.Params["x"] = "y"

	assert.Equal(t, StateLoading, c.State())
	assert.Empty(t, c.Flow().Param("x"))
}
