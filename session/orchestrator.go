package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/storelens/storelens/browser"
	"github.com/storelens/storelens/capture"
	"github.com/storelens/storelens/locking"
	"github.com/storelens/storelens/metrics"
	"github.com/storelens/storelens/models"
	"github.com/storelens/storelens/nav"
	"github.com/storelens/storelens/overlay"
	"github.com/storelens/storelens/pdp"
	"github.com/storelens/storelens/policy"
	"github.com/storelens/storelens/store"
)

// cleanupTimeout bounds lock release and throttle marking after the
// session context is gone.
const cleanupTimeout = 5 * time.Second

// Orchestrator executes sessions: one Run call per job, sequential
// crawls within the session, shared-resource coordination around it.
type Orchestrator struct {
	browser   *browser.Browser
	lockStore locking.Store
	registry  *policy.Registry
	prefilter *pdp.Prefilter
	validator *pdp.Validator
	db        *store.Store
	artifacts *store.ArtifactWriter
	evaluator *Evaluator
	holderID  string
}

// NewOrchestrator wires an Orchestrator. holderID identifies this
// worker process in lock values.
func NewOrchestrator(
	b *browser.Browser,
	lockStore locking.Store,
	registry *policy.Registry,
	prefilter *pdp.Prefilter,
	db *store.Store,
	artifacts *store.ArtifactWriter,
	evaluator *Evaluator,
	holderID string,
) *Orchestrator {
	return &Orchestrator{
		browser:   b,
		lockStore: lockStore,
		registry:  registry,
		prefilter: prefilter,
		validator: pdp.NewValidator(),
		db:        db,
		artifacts: artifacts,
		evaluator: evaluator,
		holderID:  holderID,
	}
}

// pageOutcome is the in-session record of one crawled page.
type pageOutcome struct {
	task    models.PageTask
	rawHTML string
}

// Run executes one session to a terminal status. The session record
// must already exist (created at enqueue); Run owns it from running to
// terminal. The returned error reports infrastructure faults only;
// crawl failures land in the session status.
func (o *Orchestrator) Run(ctx context.Context, job models.Job) (*models.Session, error) {
	sess, err := o.db.GetSession(ctx, job.SessionID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", job.SessionID, err)
	}
	log := slog.With("session_id", sess.ID.String(), "domain", sess.Domain, "url", sess.URL)
	started := time.Now()

	rules, err := o.registry.Resolve(sess.Config.PolicyVersion)
	if err != nil {
		o.finish(sess, models.StatusFailed, "unknown policy version")
		return sess, o.persist(sess)
	}
	log.Info("session.start", "policy_version", rules.Version, "mode", sess.Config.Mode)

	sess.Status = models.StatusRunning
	sess.Attempts++
	if err := o.persist(sess); err != nil {
		return nil, err
	}

	coord := locking.NewCoordinator(o.lockStore, rules)
	bypassLock := sess.Config.DisableLocks
	bypassThrottle := sess.Config.DisableLocks || sess.Config.Mode == models.ModeDebug

	lock, err := coord.Acquire(ctx, sess.Domain, o.holderID+":"+sess.ID.String(), bypassLock)
	if err != nil {
		if errors.Is(err, locking.ErrLockTimeout) {
			metrics.LockTimeoutsTotal.Inc()
			o.finish(sess, models.StatusFailed, SummaryLockTimeout)
			metrics.SessionsTotal.WithLabelValues(string(sess.Status)).Inc()
			return sess, o.persist(sess)
		}
		return nil, fmt.Errorf("lock acquire: %w", err)
	}

	// Cleanup must run on every exit, including cancellation, on a
	// context that survives the session's.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		lock.Release(cleanupCtx)
		if err := coord.MarkCompleted(cleanupCtx, sess.Domain); err != nil {
			log.Warn("throttle.mark_failed", "error", err.Error())
		}
	}()

	if _, err := coord.ThrottleWait(ctx, sess.Domain, bypassThrottle); err != nil {
		o.finish(sess, models.StatusFailed, "canceled before crawl")
		metrics.SessionsTotal.WithLabelValues(string(sess.Status)).Inc()
		return sess, o.persist(sess)
	}

	outcomes := o.crawlAll(ctx, sess, rules)

	tasks := make([]models.PageTask, 0, len(outcomes))
	lowConfidence := false
	for _, out := range outcomes {
		tasks = append(tasks, out.task)
		if len(out.task.LowConfidenceReasons) > 0 {
			lowConfidence = true
		}
		metrics.PageTasksTotal.WithLabelValues(string(out.task.PageType), string(out.task.Status)).Inc()
		if err := o.db.SavePageTask(ctx, sess.ID, out.task); err != nil {
			log.Warn("store.page_task_failed", "error", err.Error())
		}
	}

	status, summary := ComputeStatus(tasks)
	sess.LowConfidence = lowConfidence
	o.finish(sess, status, summary)
	metrics.SessionsTotal.WithLabelValues(string(status)).Inc()
	metrics.SessionDuration.Observe(time.Since(started).Seconds())
	log.Info("session.done",
		"status", status,
		"pdp_url", sess.PDPURL,
		"low_confidence", lowConfidence,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	if err := o.persist(sess); err != nil {
		return sess, err
	}

	if status == models.StatusCompleted && o.evaluator.Enabled() {
		o.evaluator.DeliverAsync(&Handoff{
			SessionID:     sess.ID.String(),
			URL:           sess.URL,
			Domain:        sess.Domain,
			PDPURL:        sess.PDPURL,
			PolicyVersion: rules.Version,
			LowConfidence: lowConfidence,
			ArtifactDir:   o.artifacts.SessionDir(sess.ID),
			CompletedAt:   time.Now().UTC(),
			Pages:         tasks,
		})
	}
	return sess, nil
}

// crawlAll runs the fixed page sequence: homepage on both viewports,
// PDP discovery from the homepage snapshot, then the discovered PDP on
// both viewports. Page failures never abort the sequence.
func (o *Orchestrator) crawlAll(ctx context.Context, sess *models.Session, rules policy.Rules) []pageOutcome {
	outcomes := make([]pageOutcome, 0, 4)

	homeDesktop := o.crawlPage(ctx, sess, rules, sess.URL, models.PageHomepage, models.ViewportDesktop, false)
	outcomes = append(outcomes, homeDesktop)
	homeMobile := o.crawlPage(ctx, sess, rules, sess.URL, models.PageHomepage, models.ViewportMobile, false)
	outcomes = append(outcomes, homeMobile)

	// Discovery prefers the desktop snapshot; the mobile one stands in
	// when desktop failed.
	snapshot := homeDesktop.rawHTML
	if snapshot == "" {
		snapshot = homeMobile.rawHTML
	}

	pdpURL := o.findPDP(ctx, sess, rules, snapshot)
	if pdpURL == "" {
		metrics.PDPDiscoveryTotal.WithLabelValues("not_found").Inc()
		for _, vp := range []models.Viewport{models.ViewportDesktop, models.ViewportMobile} {
			outcomes = append(outcomes, pageOutcome{task: models.PageTask{
				PageType: models.PagePDP, Viewport: vp,
				Status: models.PageFailed, ErrorSummary: SummaryPDPNotFound,
			}})
		}
		return outcomes
	}
	metrics.PDPDiscoveryTotal.WithLabelValues("found").Inc()
	sess.PDPURL = pdpURL

	outcomes = append(outcomes,
		o.crawlPage(ctx, sess, rules, pdpURL, models.PagePDP, models.ViewportDesktop, true))
	outcomes = append(outcomes,
		o.crawlPage(ctx, sess, rules, pdpURL, models.PagePDP, models.ViewportMobile, false))
	return outcomes
}

// crawlPage loads, resolves overlays, and captures one page task.
// probeCheckoutPass additionally runs the read-only checkout probe on
// the loaded page.
func (o *Orchestrator) crawlPage(ctx context.Context, sess *models.Session, rules policy.Rules,
	url string, pageType models.PageType, viewport models.Viewport, probeCheckoutPass bool) pageOutcome {

	task := models.PageTask{PageType: pageType, Viewport: viewport, Status: models.PageFailed}
	out := pageOutcome{}

	pg, err := o.browser.NewPage(viewport)
	if err != nil {
		task.ErrorSummary = "browser page unavailable"
		out.task = task
		return out
	}
	defer pg.Close()

	controller := nav.NewController(rules)
	navRes, err := controller.LoadPage(ctx, pg, nav.Request{
		URL:       url,
		SessionID: sess.ID.String(),
		Domain:    sess.Domain,
		PageType:  pageType,
		Viewport:  viewport,
	})
	if err != nil {
		task.ErrorSummary = summarizeError(err)
		out.task = task
		return out
	}
	task.Timings = navRes.Timings
	for _, a := range navRes.Attempts {
		metrics.NavAttemptsTotal.WithLabelValues(string(a.Outcome)).Inc()
	}

	resolver := overlay.NewResolver(rules)
	pc := overlay.PageContext{SessionID: sess.ID.String(), PageType: pageType, Viewport: viewport}
	events := resolver.Resolve(ctx, pg, pc)
	if resolver.IsBlocked(ctx, pg) {
		if ev := resolver.HideFallback(ctx, pg, pc); ev != nil {
			events = append(events, *ev)
		}
	}

	supervisor := capture.NewSupervisor(rules)
	capRes, err := supervisor.Capture(ctx, pg, resolver, capture.Request{
		SessionID: sess.ID.String(),
		PageType:  pageType,
		Viewport:  viewport,
		StoreHTML: sess.Config.StoreHTML,
		Timings:   navRes.Timings,
	})
	if capRes != nil {
		events = append(events, capRes.Events...)
	}
	o.recordOverlayEvents(ctx, sess, events)
	if err != nil {
		task.ErrorSummary = summarizeError(err)
		out.task = task
		return out
	}

	if probeCheckoutPass {
		probeCheckout(ctx, pg, sess.ID.String())
	}

	if _, err := o.artifacts.WriteBundle(sess.ID, capRes.Bundle); err != nil {
		slog.Warn("artifacts.write_failed",
			"session_id", sess.ID.String(), "page_type", pageType, "error", err.Error())
	}

	task.Status = models.PageOK
	task.LowConfidenceReasons = capRes.Flags
	out.task = task
	out.rawHTML = capRes.RawHTML
	return out
}

// findPDP discovers and validates PDP candidates from the homepage
// snapshot. Candidates load sequentially in ranked order; the first
// valid one wins. An empty return means no PDP was found.
func (o *Orchestrator) findPDP(ctx context.Context, sess *models.Session, rules policy.Rules, homepageHTML string) string {
	if homepageHTML == "" {
		return ""
	}
	candidates := pdp.Discover(homepageHTML, sess.URL, rules.PDPPathPatterns, rules.PDPMaxCandidates)
	if len(candidates) == 0 {
		return ""
	}
	candidates = o.prefilter.Rank(ctx, candidates, rules.PDPStrongSignalGating)
	slog.Info("pdp.candidates", "session_id", sess.ID.String(), "count", len(candidates))

	controller := nav.NewController(rules)

	for _, candidate := range candidates {
		if verdict, ok := o.validator.Cached(candidate, rules); ok {
			if verdict.Valid {
				return candidate
			}
			continue
		}
		if ctx.Err() != nil {
			return ""
		}
		if o.validateCandidate(ctx, sess, rules, controller, candidate) {
			return candidate
		}
	}
	return ""
}

func (o *Orchestrator) validateCandidate(ctx context.Context, sess *models.Session, rules policy.Rules,
	controller *nav.Controller, candidate string) bool {

	pg, err := o.browser.NewPage(models.ViewportDesktop)
	if err != nil {
		return false
	}
	defer pg.Close()

	_, err = controller.LoadPage(ctx, pg, nav.Request{
		URL:       candidate,
		SessionID: sess.ID.String(),
		Domain:    sess.Domain,
		PageType:  models.PagePDP,
		Viewport:  models.ViewportDesktop,
	})
	if err != nil {
		return false
	}

	resolver := overlay.NewResolver(rules)
	pc := overlay.PageContext{SessionID: sess.ID.String(), PageType: models.PagePDP, Viewport: models.ViewportDesktop}
	events := resolver.Resolve(ctx, pg, pc)
	o.recordOverlayEvents(ctx, sess, events)

	return o.validator.Validate(ctx, pg, candidate, rules).Valid
}

func (o *Orchestrator) recordOverlayEvents(ctx context.Context, sess *models.Session, events []models.OverlayEvent) {
	for _, ev := range events {
		metrics.OverlayEventsTotal.WithLabelValues(string(ev.Action), string(ev.Result)).Inc()
	}
	if err := o.db.SaveOverlayEvents(ctx, sess.ID, events); err != nil {
		slog.Warn("store.events_failed", "session_id", sess.ID.String(), "error", err.Error())
	}
}

func (o *Orchestrator) finish(sess *models.Session, status models.SessionStatus, summary string) {
	sess.Status = status
	sess.ErrorSummary = summary
	sess.UpdatedAt = time.Now().UTC()
}

func (o *Orchestrator) persist(sess *models.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	return o.db.UpdateSession(ctx, sess)
}

// summarizeError maps internal errors to the human-readable page
// summaries surfaced in the API.
func summarizeError(err error) string {
	var ce *models.CrawlError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}
