package nav

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/storelens/storelens/browser"
	"github.com/storelens/storelens/models"
	"github.com/storelens/storelens/policy"
)

// Request identifies one page load for logging and classification.
type Request struct {
	URL       string
	SessionID string
	Domain    string
	PageType  models.PageType
	Viewport  models.Viewport
}

// Result is a successful page load: the page passed the readiness gate
// and is ready for overlay resolution and capture.
type Result struct {
	Status            int
	Attempts          []models.NavigationAttempt
	BotBlockMitigated bool
	Timings           models.LoadTimings
}

// Controller drives page loads with bounded retries. One Controller
// serves one session; it carries the session's frozen policy rules.
type Controller struct {
	rules policy.Rules
	// now and sleep are swappable for deterministic tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	// jitter returns a random duration in [0, max).
	jitter func(max time.Duration) time.Duration
}

// NewController creates a Controller bound to the given policy rules.
func NewController(rules policy.Rules) *Controller {
	return &Controller{
		rules: rules,
		now:   time.Now,
		sleep: sleepCtx,
		jitter: func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		},
	}
}

// LoadPage navigates to req.URL with up to NavMaxAttempts attempts,
// classifying each failure, applying the backoff ladder, and enforcing
// the hard wall-clock budget across attempts plus backoff. After a
// non-timeout, non-network-error attempt it checks for bot-block
// indicators and performs at most one mitigation reload. On success it
// runs the readiness gate before returning.
func (c *Controller) LoadPage(ctx context.Context, pg browser.Page, req Request) (*Result, error) {
	log := slog.With(
		"session_id", req.SessionID,
		"domain", req.Domain,
		"page_type", req.PageType,
		"viewport", req.Viewport,
		"url", req.URL,
	)

	start := c.now()
	var attempts []models.NavigationAttempt
	status := 0

	budgetLeft := func() time.Duration {
		return c.rules.NavHardBudget - c.now().Sub(start)
	}

	fail := func(outcome models.NavigationOutcome, attempt int, cause error) (*Result, error) {
		log.Warn("navigation.failed",
			"attempt", attempt,
			"classification", outcome,
			"status", status,
			"error", errString(cause),
		)
		code := models.ErrCodeNavFailed
		msg := "navigation failed"
		switch outcome {
		case models.NavTimeout, models.NavHardTimeout:
			code = models.ErrCodeNavTimeout
			msg = "navigation timeout"
		case models.NavBotBlock:
			code = models.ErrCodeBotBlocked
			msg = "bot-block"
		}
		return nil, models.NewCrawlError(code, msg, cause)
	}

	maxAttempts := c.rules.NavMaxAttempts
	loaded := false
	// loadStart marks when the content now on the page began loading;
	// failed attempts and backoff must not consume the readiness floor.
	loadStart := start

	for attempt := 1; attempt <= maxAttempts && !loaded; attempt++ {
		if budgetLeft() <= 0 {
			attempts = append(attempts, models.NavigationAttempt{
				Index: attempt, Outcome: models.NavHardTimeout,
			})
			return fail(models.NavHardTimeout, attempt, fmt.Errorf("hard page budget exceeded"))
		}

		log.Info("navigation.attempt", "attempt", attempt)
		attemptStart := c.now()

		attemptTimeout := min(c.rules.NavAttemptTimeout, budgetLeft())
		navCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		navErr := pg.Navigate(navCtx, req.URL)
		cancel()
		elapsed := c.now().Sub(attemptStart)

		if navErr != nil {
			outcome, retryable := ClassifyError(navErr)
			record := models.NavigationAttempt{Index: attempt, Outcome: outcome, Elapsed: elapsed}
			if retryable && attempt < maxAttempts {
				record.Backoff = c.backoff(attempt)
				attempts = append(attempts, record)
				log.Info("navigation.retry",
					"attempt", attempt,
					"classification", outcome,
					"backoff_ms", record.Backoff.Milliseconds(),
				)
				if err := c.sleep(ctx, record.Backoff); err != nil {
					return fail(models.NavContextCanceled, attempt, err)
				}
				continue
			}
			attempts = append(attempts, record)
			return fail(outcome, attempt, navErr)
		}

		status = pg.StatusCode(ctx)
		outcome, retryable := ClassifyStatus(status, c.rules.RetryableStatuses)
		record := models.NavigationAttempt{Index: attempt, Outcome: outcome, Status: status, Elapsed: elapsed}

		switch {
		case outcome == models.NavSuccess:
			record.Outcome = models.NavSuccess
			attempts = append(attempts, record)
			loadStart = attemptStart
			loaded = true
		case retryable && attempt < maxAttempts:
			record.Backoff = c.backoff(attempt)
			attempts = append(attempts, record)
			log.Info("navigation.retry",
				"attempt", attempt,
				"classification", outcome,
				"status", status,
				"backoff_ms", record.Backoff.Milliseconds(),
			)
			if err := c.sleep(ctx, record.Backoff); err != nil {
				return fail(models.NavContextCanceled, attempt, err)
			}
		default:
			attempts = append(attempts, record)
			_, err := fail(outcome, attempt, fmt.Errorf("status %d", status))
			return nil, err
		}
	}

	if !loaded {
		_, err := fail(models.NavTimeout, maxAttempts, fmt.Errorf("attempt budget exhausted"))
		return nil, err
	}

	// Bot-block inspection runs only after an attempt that neither
	// timed out nor network-errored; success implies that here.
	mitigated := false
	if detectBotBlock(ctx, pg, c.rules.BotBlockIndicators) {
		log.Info("bot_block.detected")
		mitigated = true
		if err := c.sleep(ctx, c.rules.BotBlockWait); err != nil {
			return fail(models.NavContextCanceled, len(attempts), err)
		}
		reloadCtx, cancel := context.WithTimeout(ctx, c.rules.NavAttemptTimeout)
		loadStart = c.now()
		reloadErr := pg.Reload(reloadCtx)
		cancel()
		if reloadErr != nil {
			return fail(models.NavBotBlock, len(attempts), fmt.Errorf("mitigation reload: %w", reloadErr))
		}
		// One mitigation only; a page still blocked after it fails.
		if detectBotBlock(ctx, pg, c.rules.BotBlockIndicators) {
			return fail(models.NavBotBlock, len(attempts), fmt.Errorf("still blocked after mitigation reload"))
		}
		log.Info("bot_block.mitigated")
	}

	timings := c.waitReady(ctx, pg, start, loadStart)
	log.Info("navigation.success",
		"attempts", len(attempts),
		"status", status,
		"bot_block_mitigated", mitigated,
	)

	return &Result{
		Status:            status,
		Attempts:          attempts,
		BotBlockMitigated: mitigated,
		Timings:           timings,
	}, nil
}

// backoff returns the ladder value for a 1-based attempt plus jitter.
func (c *Controller) backoff(attempt int) time.Duration {
	ladder := c.rules.NavBackoff
	if len(ladder) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(ladder) {
		idx = len(ladder) - 1
	}
	return ladder[idx] + c.jitter(c.rules.NavJitterMax)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// sleepCtx sleeps for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
