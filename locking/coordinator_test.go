package locking

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/storelens/storelens/models"
	"github.com/storelens/storelens/policy"
)

func testCoordinator(store Store) (*Coordinator, *time.Time) {
	rules, _ := policy.NewRegistry().Resolve("")
	c := NewCoordinator(store, rules)
	clock := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }
	c.sleep = func(ctx context.Context, d time.Duration) error {
		clock = clock.Add(d)
		return nil
	}
	return c, &clock
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.example.com/path", "example.com"},
		{"http://Example.COM", "example.com"},
		{"https://shop.example.com:8443/", "shop.example.com"},
		{"Example.com", "example.com"},
		{"www.example.com", "example.com"},
		{"example.com", "example.com"},
	}
	for _, tt := range tests {
		if got := NormalizeDomain(tt.in); got != tt.want {
			t.Errorf("NormalizeDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAcquire_MutualExclusion(t *testing.T) {
	store := NewMemStore()
	c, _ := testCoordinator(store)
	ctx := context.Background()

	lock1, err := c.Acquire(ctx, "example.com", "worker-a", false)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	// Second holder exhausts its attempts while the first holds.
	if _, err := c.Acquire(ctx, "example.com", "worker-b", false); err == nil {
		t.Fatal("second acquire should time out")
	}

	// A different domain is unaffected.
	lock2, err := c.Acquire(ctx, "other.com", "worker-b", false)
	if err != nil {
		t.Fatalf("different domain should acquire: %v", err)
	}
	lock2.Release(ctx)

	lock1.Release(ctx)
	lock3, err := c.Acquire(ctx, "example.com", "worker-b", false)
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	lock3.Release(ctx)
}

func TestAcquire_TimeoutAfterThreeAttempts(t *testing.T) {
	store := NewMemStore()
	c, clock := testCoordinator(store)
	ctx := context.Background()

	held, err := c.Acquire(ctx, "example.com", "worker-a", false)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release(ctx)

	start := *clock
	_, err = c.Acquire(ctx, "example.com", "worker-b", false)
	if err == nil {
		t.Fatal("expected lock timeout")
	}
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}
	var ce *models.CrawlError
	if !errors.As(err, &ce) || ce.Code != models.ErrCodeLockTimeout {
		t.Errorf("expected LOCK_TIMEOUT code, got %v", err)
	}
	// Ladder 1s + 2s between the three attempts, jitter at most 500ms each.
	elapsed := clock.Sub(start)
	if elapsed < 3*time.Second || elapsed > 4*time.Second {
		t.Errorf("unexpected total backoff: %v", elapsed)
	}
}

func TestAcquire_BypassSkipsLock(t *testing.T) {
	store := NewMemStore()
	c, _ := testCoordinator(store)
	ctx := context.Background()

	lock, err := c.Acquire(ctx, "example.com", "worker-a", true)
	if err != nil {
		t.Fatalf("bypass acquire failed: %v", err)
	}
	// No key written, so a real acquire still succeeds.
	real, err := c.Acquire(ctx, "example.com", "worker-b", false)
	if err != nil {
		t.Fatalf("real acquire blocked by bypass handle: %v", err)
	}
	real.Release(ctx)
	lock.Release(ctx)
}

func TestRelease_IdempotentAndOwnershipChecked(t *testing.T) {
	store := NewMemStore()
	c, _ := testCoordinator(store)
	ctx := context.Background()

	lock, err := c.Acquire(ctx, "example.com", "worker-a", false)
	if err != nil {
		t.Fatal(err)
	}
	lock.Release(ctx)
	lock.Release(ctx) // second call is a no-op

	// Another holder's lock must survive a stale release attempt.
	lock2, err := c.Acquire(ctx, "example.com", "worker-b", false)
	if err != nil {
		t.Fatal(err)
	}
	lock.Release(ctx)
	if _, ok, _ := store.Get(ctx, lockKey("example.com")); !ok {
		t.Error("stale release must not free another holder's lock")
	}
	lock2.Release(ctx)
}

func TestThrottleWait_EnforcesMinimumSpacing(t *testing.T) {
	store := NewMemStore()
	c, clock := testCoordinator(store)
	ctx := context.Background()

	// First session: no marker, no wait.
	applied, err := c.ThrottleWait(ctx, "example.com", false)
	if err != nil {
		t.Fatal(err)
	}
	if applied != 0 {
		t.Errorf("first session should not wait, waited %v", applied)
	}
	if err := c.MarkCompleted(ctx, "example.com"); err != nil {
		t.Fatal(err)
	}

	// Immediate second session: full spacing.
	applied, err = c.ThrottleWait(ctx, "example.com", false)
	if err != nil {
		t.Fatal(err)
	}
	if applied != 2000*time.Millisecond {
		t.Errorf("expected 2000ms wait, got %v", applied)
	}
	if err := c.MarkCompleted(ctx, "example.com"); err != nil {
		t.Fatal(err)
	}

	// After enough time has passed there is no wait.
	*clock = clock.Add(5 * time.Second)
	applied, err = c.ThrottleWait(ctx, "example.com", false)
	if err != nil {
		t.Fatal(err)
	}
	if applied != 0 {
		t.Errorf("spaced session should not wait, waited %v", applied)
	}
}

func TestThrottleWait_ReadsWithoutStamping(t *testing.T) {
	store := NewMemStore()
	c, clock := testCoordinator(store)
	ctx := context.Background()

	// The marker is written at session end only; a waiting session must
	// not stamp it, and neither must a bypassed one.
	if _, err := c.ThrottleWait(ctx, "example.com", false); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(ctx, throttleKey("example.com")); ok {
		t.Error("ThrottleWait must not write the completion marker")
	}
	if _, err := c.ThrottleWait(ctx, "example.com", true); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(ctx, throttleKey("example.com")); ok {
		t.Error("bypass must not write the completion marker")
	}

	if err := c.MarkCompleted(ctx, "example.com"); err != nil {
		t.Fatal(err)
	}
	raw, ok, _ := store.Get(ctx, throttleKey("example.com"))
	if !ok {
		t.Fatal("MarkCompleted must stamp the marker")
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms != clock.UnixMilli() {
		t.Errorf("marker should hold the current timestamp, got %q", raw)
	}
}
