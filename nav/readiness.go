package nav

import (
	"context"
	"log/slog"
	"time"

	"github.com/storelens/storelens/browser"
	"github.com/storelens/storelens/models"
)

// waitReady enforces the readiness gate after a successful navigation:
// a no-network-activity window, a no-DOM-mutation window, and a minimum
// elapsed-since-load floor. Each wait is independently capped; hitting
// a cap is a soft timeout (logged, never fatal) so slow third-party
// beacons cannot hang the crawl. start is when LoadPage began (attempt
// bookkeeping); loadStart is when the successful load began, which is
// what the floor measures against.
func (c *Controller) waitReady(ctx context.Context, pg browser.Page, start, loadStart time.Time) models.LoadTimings {
	timings := models.LoadTimings{NavigationStart: start}

	idleCtx, cancelIdle := context.WithTimeout(ctx, c.rules.ReadinessCap)
	err := pg.WaitNetworkIdle(idleCtx, c.rules.NetworkIdleWindow)
	cancelIdle()
	if err != nil {
		timings.SoftTimeout = true
		slog.Warn("readiness.soft_timeout", "stage", "network_idle", "cap_ms", c.rules.ReadinessCap.Milliseconds())
	} else {
		timings.NetworkIdle = c.now()
	}

	stableCtx, cancelStable := context.WithTimeout(ctx, c.rules.ReadinessCap)
	err = pg.WaitDOMStable(stableCtx, c.rules.DOMStableWindow)
	cancelStable()
	if err != nil {
		timings.SoftTimeout = true
		slog.Warn("readiness.soft_timeout", "stage", "dom_stable", "cap_ms", c.rules.ReadinessCap.Milliseconds())
	} else {
		timings.DOMStable = c.now()
	}

	// Minimum elapsed-since-load floor.
	if elapsed := c.now().Sub(loadStart); elapsed < c.rules.MinReadyFloor {
		_ = c.sleep(ctx, c.rules.MinReadyFloor-elapsed)
	}

	timings.Ready = c.now()
	timings.TotalLoad = timings.Ready.Sub(start)
	slog.Info("readiness.complete",
		"total_load_ms", timings.TotalLoad.Milliseconds(),
		"soft_timeout", timings.SoftTimeout,
	)
	return timings
}
