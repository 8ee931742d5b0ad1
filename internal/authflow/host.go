package authflow

import "context"

// Surface is the browser surface driven by a coordinator. Implementations
// must not block on delivering events back to the coordinator from inside
// these methods.
type Surface interface {
	// Load starts loading url. Navigation progress is reported as events.
	Load(ctx context.Context, url string) error

	// RunExtraction fires the one-shot extraction hook on the current page.
	RunExtraction(ctx context.Context) error

	// StopLoading stops any navigation in progress.
	StopLoading()
}

// EventSource is implemented by surfaces that publish their events on a
// channel, to be consumed with Coordinator.Pump.
type EventSource interface {
	Events() <-chan Event
}

// CookieClearer is implemented by surfaces that can drop their cookie jar.
type CookieClearer interface {
	ClearCookies(ctx context.Context) error
}

// Notifier is the inbound side of the host contract. Browser surface drivers
// call these hooks; Coordinator implements it.
type Notifier interface {
	NotifyNavigationStarted(url string)
	NotifyNavigationFinished(url string)
	NotifyExtracted(token ExtractedToken)
	NotifyTransportError(err error)
}

// Listener is the outbound side of the host contract. For each flow exactly
// one of the methods is invoked, exactly once.
type Listener interface {
	OnCompleted(result CredentialResult)
	OnCancelled()
	OnFailed(err *AuthError)
}

// ListenerFuncs adapts plain functions to a Listener. Nil functions are
// skipped.
type ListenerFuncs struct {
	Completed func(result CredentialResult)
	Cancelled func()
	Failed    func(err *AuthError)
}

func (l ListenerFuncs) OnCompleted(result CredentialResult) {
	if l.Completed != nil {
		l.Completed(result)
	}
}

func (l ListenerFuncs) OnCancelled() {
	if l.Cancelled != nil {
		l.Cancelled()
	}
}

func (l ListenerFuncs) OnFailed(err *AuthError) {
	if l.Failed != nil {
		l.Failed(err)
	}
}

// Outcome is a terminal event as a value.
type Outcome struct {
	State  State
	Result CredentialResult
	Error  *AuthError
}

// Err returns nil for a completed flow, ErrUserCancelled for a cancelled one
// and the AuthError otherwise.
func (o Outcome) Err() error {
	switch o.State {
	case StateCompleted:
		return nil
	case StateCancelled:
		return ErrUserCancelled
	default:
		if o.Error == nil {
			return NewTransportError(nil)
		}
		return o.Error
	}
}

func deliver(l Listener, o Outcome) {
	if l == nil {
		return
	}
	switch o.State {
	case StateCompleted:
		l.OnCompleted(o.Result)
	case StateCancelled:
		l.OnCancelled()
	case StateFailed:
		l.OnFailed(o.Error)
	}
}

// Transition describes one state change, for observers.
type Transition struct {
	Flow *Flow
	From State
	To   State
	Err  *AuthError
}

// Observer receives every state transition of a coordinator. Observers run
// outside the coordinator's lock and must not block.
type Observer interface {
	ObserveTransition(t Transition)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(t Transition)

func (f ObserverFunc) ObserveTransition(t Transition) { f(t) }
