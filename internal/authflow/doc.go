// Package authflow implements the coordinator for interactive web
// authentication flows.
//
// A Coordinator drives one authentication attempt (a Flow) against a browser
// surface. It decides which URL the surface loads, interprets navigation and
// extraction events through a protocol Strategy (OAuth2 or SAML), and reports
// exactly one terminal outcome to a Listener: Completed, Cancelled or Failed.
//
// # State Machine
//
//	Idle -> Loading -> (Loading | AwaitingExtraction) -> Completed | Cancelled | Failed
//
// Once a terminal state is reached the flow is frozen: every later event is
// discarded. Cancel always wins against events that are still in flight.
//
// # Event Delivery
//
// Events are delivered either through the Notify* methods or by pumping a
// surface's event channel:
//
//	coord := authflow.NewCoordinator(flow, strategy, surface, listener)
//	go coord.Pump(ctx, surface.Events())
//	if err := coord.Start(ctx); err != nil {
//	    return err
//	}
//	outcome, err := coord.Wait(ctx)
//
// The coordinator serializes event handling internally. Side effects on the
// surface and listener callbacks run outside the coordinator's lock, so a
// listener may safely start a new flow from its callback.
//
// # Resumption
//
// A flow can outlive the host UI that drives it. Suspend stores the flow in a
// FlowStore under its correlation token and detaches the coordinator; Resume
// takes it back out (destructively) and rebuilds a coordinator in the same
// state. A correlation token can be redeemed only once.
package authflow
