package capture

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/storelens/storelens/browser"
	"github.com/storelens/storelens/models"
	"github.com/storelens/storelens/overlay"
	"github.com/storelens/storelens/policy"
)

// captureMaxAttempts bounds extraction attempts per page. Transient
// browser faults get exactly one retry after recovery; a second
// failure fails the page task.
const captureMaxAttempts = 2

// recoveryStableWindow is the DOM re-settle window during recovery.
const recoveryStableWindow = 500 * time.Millisecond

// IsTransient classifies extraction errors worth one retry: the
// renderer tore down the JS world mid-read or the page navigated under
// us, both of which a fresh read can survive. Everything else fails
// the page task immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"execution context was destroyed",
		"cannot find context with specified id",
		"target closed",
		"session closed",
		"navigation interrupted",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Request identifies one capture.
type Request struct {
	SessionID string
	PageType  models.PageType
	Viewport  models.Viewport
	// StoreHTML includes the gzipped HTML snapshot in the bundle.
	StoreHTML bool
	// Timings is the load timing record from navigation, carried into
	// the bundle.
	Timings models.LoadTimings
}

// Supervisor captures evidence bundles with a bounded transient retry.
type Supervisor struct {
	rules policy.Rules
}

// NewSupervisor creates a Supervisor bound to the session's rules.
func NewSupervisor(rules policy.Rules) *Supervisor {
	return &Supervisor{rules: rules}
}

// Result is one successful capture. RawHTML is the snapshot the bundle
// was extracted from; the orchestrator feeds the homepage snapshot to
// PDP discovery.
type Result struct {
	Bundle  *models.EvidenceBundle
	RawHTML string
	Flags   []string
	// Events are overlay actions taken during transient recovery.
	Events []models.OverlayEvent
}

// Capture extracts the evidence bundle from a ready page. On a
// transient fault it runs the recovery sequence (DOM re-settle, one
// popup pass, hide fallback if the page is blocked) and retries once.
// Overlay events produced during recovery are returned alongside the
// bundle so they reach the session event log.
func (s *Supervisor) Capture(ctx context.Context, pg browser.Page, resolver *overlay.Resolver, req Request) (*Result, error) {
	log := slog.With(
		"session_id", req.SessionID,
		"page_type", req.PageType,
		"viewport", req.Viewport,
	)

	var recoveryEvents []models.OverlayEvent
	var lastErr error

	for attempt := 1; attempt <= captureMaxAttempts; attempt++ {
		res, err := s.captureOnce(ctx, pg, req)
		if err == nil {
			if attempt > 1 {
				log.Info("capture.retry_succeeded")
			}
			res.Events = recoveryEvents
			return res, nil
		}
		lastErr = err

		if !IsTransient(err) || attempt == captureMaxAttempts {
			break
		}
		log.Warn("capture.transient_fault", "attempt", attempt, "error", err.Error())
		recoveryEvents = append(recoveryEvents, s.recover(ctx, pg, resolver, req)...)
	}

	log.Error("capture.failed", "error", lastErr.Error())
	return &Result{Events: recoveryEvents}, models.NewCrawlError(
		models.ErrCodeExtraction, "evidence extraction failed", lastErr)
}

// captureOnce performs a single extraction. The HTML snapshot is the
// one fatal read; screenshot failure degrades to a low-confidence
// flag since text and features still carry the page.
func (s *Supervisor) captureOnce(ctx context.Context, pg browser.Page, req Request) (*Result, error) {
	rawHTML, err := pg.HTML(ctx)
	if err != nil {
		return nil, err
	}

	bundle := &models.EvidenceBundle{
		PageType:    req.PageType,
		Viewport:    req.Viewport,
		VisibleText: VisibleText(rawHTML),
		Features:    ExtractFeatures(rawHTML, req.PageType),
		Timings:     req.Timings,
	}

	shot, err := pg.Screenshot(ctx)
	if err != nil {
		if IsTransient(err) {
			return nil, err
		}
		slog.Warn("capture.screenshot_failed",
			"session_id", req.SessionID, "page_type", req.PageType, "error", err.Error())
	} else {
		bundle.Screenshot = shot
	}

	if req.StoreHTML {
		gz, gzErr := gzipBytes([]byte(rawHTML))
		if gzErr == nil {
			bundle.HTMLGz = gz
		}
	}

	return &Result{
		Bundle:  bundle,
		RawHTML: rawHTML,
		Flags:   LowConfidenceFlags(bundle),
	}, nil
}

// recover re-stabilizes the page between capture attempts.
func (s *Supervisor) recover(ctx context.Context, pg browser.Page, resolver *overlay.Resolver, req Request) []models.OverlayEvent {
	settleCtx, cancel := context.WithTimeout(ctx, s.rules.ReadinessCap)
	_ = pg.WaitDOMStable(settleCtx, recoveryStableWindow)
	cancel()

	pc := overlay.PageContext{SessionID: req.SessionID, PageType: req.PageType, Viewport: req.Viewport}
	events := resolver.ResolveOnce(ctx, pg, pc)
	if resolver.IsBlocked(ctx, pg) {
		if ev := resolver.HideFallback(ctx, pg, pc); ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
