// Package browser provides an embedded browser surface for authentication
// flows, driven through Playwright.
//
// The surface launches a Chromium window, reports main-frame navigations as
// authflow events and exposes the extraction bridge (authflow.BridgeName) to
// every page so the extraction script can hand the scraped payload back.
//
// Usage:
//
//	surface, err := browser.Launch(browser.Options{
//	    ExtractionScript: samlStrategy.ExtractionScript(),
//	})
//	if err != nil {
//	    return err
//	}
//	defer surface.Close()
//
//	coord := authflow.NewCoordinator(flow, samlStrategy, surface, listener)
//	go coord.Pump(ctx, surface.Events())
//	go func() {
//	    <-surface.Closed()
//	    coord.Cancel()
//	}()
package browser
