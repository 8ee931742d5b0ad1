package authflow

import (
	"context"
	"fmt"
	"log/slog"

	"webauth/pkg/logging"
)

// Suspend hands the flow to store under its correlation token and detaches
// the coordinator: later events and operations on it are ignored. It is used
// when the hosting UI is torn down before the flow has finished. The
// returned token is what Resume needs.
func (c *Coordinator) Suspend(ctx context.Context, store FlowStore) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.detached {
		return "", ErrDetached
	}
	if c.flow.State.IsTerminal() {
		return "", fmt.Errorf("cannot suspend flow %s in state %s", c.flow.ID, c.flow.State)
	}

	snapshot := c.flow.Clone()
	if err := store.Put(ctx, snapshot.CorrelationToken, snapshot); err != nil {
		return "", fmt.Errorf("failed to persist flow %s: %w", snapshot.ID, err)
	}

	c.detached = true
	c.stopTimer()
	if c.stopWatch != nil {
		c.stopWatch()
	}
	if c.cancel != nil {
		c.cancel()
	}

	logging.Audit(subsystem, "flow_suspended",
		slog.String("flow_id", snapshot.ID.String()),
		slog.String("state", snapshot.State.String()),
	)
	return snapshot.CorrelationToken, nil
}

// Resume takes the flow stored under token and rebuilds a coordinator for it
// in the persisted state. The token is consumed: a second Resume with the
// same token returns ErrFlowNotFound. As with Start, cancelling ctx cancels
// the resumed flow.
//
// A flow suspended in StateIdle must still be started. A flow suspended in
// StateLoading re-resolves its initial URL if it had none yet; otherwise the
// host may call Reload to load the initial URL into a fresh surface. A flow
// suspended in StateAwaitingExtraction is put back into StateLoading: the
// page holding the payload belonged to the old surface, so the sign-in has
// to be loaded again.
func Resume(ctx context.Context, store FlowStore, token string, strategy Strategy, surface Surface, listener Listener, opts ...Option) (*Coordinator, error) {
	flow, err := store.Take(ctx, token)
	if err != nil {
		return nil, err
	}
	if flow.State.IsTerminal() {
		return nil, fmt.Errorf("flow %s is already %s", flow.ID, flow.State)
	}

	logging.Audit(subsystem, "flow_resumed",
		slog.String("flow_id", flow.ID.String()),
		slog.String("state", flow.State.String()),
	)

	c := NewCoordinator(flow, strategy, surface, listener, opts...)
	if flow.State == StateIdle {
		return c, nil
	}

	c.mu.Lock()
	c.bindContext(ctx)
	var effs []effect
	if c.flow.State == StateAwaitingExtraction {
		effs = c.transition(StateLoading, nil)
	}
	needsURL := c.flow.InitialURL == ""
	c.mu.Unlock()
	c.run(effs)

	if needsURL {
		// The flow failed if this errors; the outcome is delivered to the
		// listener, so the coordinator is still returned.
		_ = c.resolveInitialURL()
	}
	return c, nil
}

// Reload loads the flow's initial URL into the surface again. It is meant for
// a resumed flow bound to a fresh surface and requires StateLoading.
func (c *Coordinator) Reload() error {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return ErrDetached
	}
	if c.flow.State != StateLoading || c.flow.InitialURL == "" {
		state := c.flow.State
		c.mu.Unlock()
		return fmt.Errorf("cannot reload flow in state %s", state)
	}
	eff := c.loadEffect(c.flow.InitialURL, false)
	c.mu.Unlock()

	eff()
	return nil
}
