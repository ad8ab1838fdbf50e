package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/storelens/storelens/locking"
	"github.com/storelens/storelens/models"
	"github.com/storelens/storelens/policy"
	"github.com/storelens/storelens/store"
)

// fastLockRules registers a policy version with a millisecond lock
// backoff ladder so the acquire budget exhausts without real waiting.
func fastLockRules(t *testing.T, registry *policy.Registry) policy.Rules {
	t.Helper()
	rules, err := registry.Resolve("")
	if err != nil {
		t.Fatalf("resolve default: %v", err)
	}
	rules.Version = "v1.3-fastlock"
	rules.LockBackoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	rules.LockJitterMax = 0
	if err := registry.Register(rules); err != nil {
		t.Fatalf("register: %v", err)
	}
	return rules
}

func TestRun_FailsWhenDomainLockHeld(t *testing.T) {
	ctx := context.Background()
	registry := policy.NewRegistry()
	rules := fastLockRules(t, registry)

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	lockStore := locking.NewMemStore()
	// Another worker holds the domain lock for the whole test.
	if _, err := lockStore.SetNX(ctx, "lock:domain:shop.example", "other-worker:123", time.Minute); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	now := time.Now().UTC()
	sess := &models.Session{
		ID:     uuid.New(),
		URL:    "https://shop.example/",
		Domain: "shop.example",
		Status: models.StatusQueued,
		Config: models.SessionConfig{
			Mode:          models.ModeAudit,
			PolicyVersion: rules.Version,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	// No browser or prefilter: the lock-timeout path must fail the
	// session before any page is touched.
	o := NewOrchestrator(nil, lockStore, registry, nil,
		db, store.NewArtifactWriter(t.TempDir()), NewEvaluator(""), "w1")

	got, err := o.Run(ctx, models.Job{
		SessionID:     sess.ID,
		URL:           sess.URL,
		Mode:          sess.Config.Mode,
		PolicyVersion: rules.Version,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got.Status != models.StatusFailed {
		t.Errorf("status = %s, want %s", got.Status, models.StatusFailed)
	}
	if got.ErrorSummary != SummaryLockTimeout {
		t.Errorf("error summary = %q, want %q", got.ErrorSummary, SummaryLockTimeout)
	}

	stored, err := db.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if stored.Status != models.StatusFailed {
		t.Errorf("persisted status = %s, want %s", stored.Status, models.StatusFailed)
	}

	tasks, err := db.ListPageTasks(ctx, sess.ID)
	if err != nil {
		t.Fatalf("list page tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("no pages should have been crawled, got %d tasks", len(tasks))
	}
}
