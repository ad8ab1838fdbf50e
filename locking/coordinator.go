package locking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/storelens/storelens/models"
	"github.com/storelens/storelens/policy"
)

// ErrLockTimeout is returned when the domain lock could not be acquired
// within the attempt budget. It is fatal to the session: proceeding
// without the lock risks duplicate concurrent crawls of one domain.
var ErrLockTimeout = errors.New("domain lock timeout")

// Coordinator implements the domain lock and throttle over a Store.
type Coordinator struct {
	store Store
	rules policy.Rules
	// now and sleep are swappable for deterministic tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCoordinator creates a Coordinator using the given store and the
// session's frozen policy rules.
func NewCoordinator(store Store, rules policy.Rules) *Coordinator {
	return &Coordinator{
		store: store,
		rules: rules,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// Lock is a held domain lock. Release is idempotent and must be called
// on every exit path once Acquire succeeds.
type Lock struct {
	coord    *Coordinator
	domain   string
	holder   string
	value    string
	released sync.Once
}

// Acquire takes the per-domain lock, retrying with exponential backoff
// plus jitter. holder identifies the worker/session pair for stale-lock
// diagnostics. bypass skips the lock entirely and returns a no-op
// handle (test/CI paths; the bypass is always caller-supplied).
func (c *Coordinator) Acquire(ctx context.Context, domain, holder string, bypass bool) (*Lock, error) {
	if bypass {
		slog.Info("lock.skip", "domain", domain, "holder", holder, "reason", "bypass")
		return &Lock{coord: c, domain: domain, holder: holder}, nil
	}

	key := lockKey(domain)
	maxAttempts := c.rules.LockMaxAttempts
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		value := fmt.Sprintf("%s:%d", holder, c.now().Unix())
		acquired, err := c.store.SetNX(ctx, key, value, c.rules.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("lock store: %w", err)
		}
		if acquired {
			slog.Info("lock.acquire.success", "domain", domain, "holder", holder, "attempt", attempt)
			return &Lock{coord: c, domain: domain, holder: holder, value: value}, nil
		}

		wait := c.backoff(attempt)
		slog.Info("lock.acquire.retry",
			"domain", domain, "holder", holder,
			"attempt", attempt, "max_attempts", maxAttempts,
			"wait_ms", wait.Milliseconds(),
		)
		if attempt < maxAttempts {
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	slog.Error("lock.acquire.timeout", "domain", domain, "holder", holder, "max_attempts", maxAttempts)
	return nil, models.NewCrawlError(models.ErrCodeLockTimeout, "domain lock timeout",
		fmt.Errorf("%w for %s after %d attempts", ErrLockTimeout, domain, maxAttempts))
}

// Release frees the lock if this holder still owns it. Stale or missing
// locks (TTL expiry, crashed worker takeover) are logged, not errors.
// Safe to call more than once; only the first call acts.
func (l *Lock) Release(ctx context.Context) {
	l.released.Do(func() {
		if l.value == "" { // bypass handle
			return
		}
		key := lockKey(l.domain)
		current, ok, err := l.coord.store.Get(ctx, key)
		if err != nil {
			slog.Warn("lock.release.error", "domain", l.domain, "error", err)
			return
		}
		if !ok {
			slog.Debug("lock.release.missing", "domain", l.domain, "holder", l.holder)
			return
		}
		if current != l.value {
			slog.Warn("lock.release.stale", "domain", l.domain, "holder", l.holder)
			return
		}
		if err := l.coord.store.Del(ctx, key); err != nil {
			slog.Warn("lock.release.error", "domain", l.domain, "error", err)
			return
		}
		slog.Info("lock.release.success", "domain", l.domain, "holder", l.holder)
	})
}

// ThrottleWait enforces the minimum spacing between sessions for one
// domain, blocking for the remainder when the last completion marker is
// too fresh. Returns the wait actually applied. The marker itself is
// written once, at session end, via MarkCompleted; ThrottleWait only
// reads it. bypass (debug mode or disabled locks) skips the wait.
func (c *Coordinator) ThrottleWait(ctx context.Context, domain string, bypass bool) (time.Duration, error) {
	if bypass {
		slog.Info("throttle.skip", "domain", domain)
		return 0, nil
	}

	key := throttleKey(domain)
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("throttle store: %w", err)
	}

	var applied time.Duration
	if ok {
		if lastMs, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			elapsed := c.now().Sub(time.UnixMilli(lastMs))
			if elapsed < c.rules.ThrottleMinDelay {
				applied = c.rules.ThrottleMinDelay - elapsed
				slog.Info("throttle.wait", "domain", domain, "wait_ms", applied.Milliseconds())
				if err := c.sleep(ctx, applied); err != nil {
					return applied, err
				}
			}
		}
	}

	return applied, nil
}

// MarkCompleted stamps the domain's last-session timestamp. Called when
// a session reaches any terminal state so the next session for the same
// domain observes the minimum spacing.
func (c *Coordinator) MarkCompleted(ctx context.Context, domain string) error {
	key := throttleKey(domain)
	now := strconv.FormatInt(c.now().UnixMilli(), 10)
	return c.store.Set(ctx, key, now, c.rules.ThrottleTTL)
}

// backoff returns the ladder value for a 1-based attempt plus jitter.
func (c *Coordinator) backoff(attempt int) time.Duration {
	ladder := c.rules.LockBackoff
	if len(ladder) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(ladder) {
		idx = len(ladder) - 1
	}
	jitter := time.Duration(0)
	if c.rules.LockJitterMax > 0 {
		jitter = time.Duration(rand.Int63n(int64(c.rules.LockJitterMax)))
	}
	return ladder[idx] + jitter
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
