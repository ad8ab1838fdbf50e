// Package policy defines the versioned behavior rulesets governing a
// session: retry budgets, timeouts, popup handling, blocked-page
// thresholds, and PDP validation gating. Sessions freeze the resolved
// rules at enqueue; any behavior change must ship under a new version
// tag so sessions stay comparable within a tag.
package policy

import "time"

// DefaultVersion is the policy applied when a session names none.
const DefaultVersion = "v1.3"

// Rules is one frozen behavior ruleset. All knobs that alter crawl
// outcomes live here rather than in scattered conditionals.
type Rules struct {
	Version string `yaml:"version"`

	// --- navigation ---

	// NavMaxAttempts caps navigation attempts per page load.
	NavMaxAttempts int `yaml:"nav_max_attempts"`
	// NavBackoff is the per-retry backoff ladder; the last entry
	// repeats if attempts exceed its length.
	NavBackoff []time.Duration `yaml:"nav_backoff"`
	// NavJitterMax is the random jitter added to each backoff.
	NavJitterMax time.Duration `yaml:"nav_jitter_max"`
	// NavAttemptTimeout bounds a single navigation attempt.
	NavAttemptTimeout time.Duration `yaml:"nav_attempt_timeout"`
	// NavHardBudget bounds all attempts plus backoff per page.
	NavHardBudget time.Duration `yaml:"nav_hard_budget"`
	// RetryableStatuses are blocked statuses worth retrying.
	RetryableStatuses []int `yaml:"retryable_statuses"`

	// --- bot-block mitigation ---

	// BotBlockIndicators are case-insensitive substrings of title or
	// body that mark a challenge/captcha/block page.
	BotBlockIndicators []string `yaml:"bot_block_indicators"`
	// BotBlockWait is the pause before the single mitigation reload.
	BotBlockWait time.Duration `yaml:"bot_block_wait"`

	// --- readiness ---

	// NetworkIdleWindow is the no-network-activity window.
	NetworkIdleWindow time.Duration `yaml:"network_idle_window"`
	// DOMStableWindow is the no-DOM-mutation window.
	DOMStableWindow time.Duration `yaml:"dom_stable_window"`
	// MinReadyFloor is the minimum elapsed-since-load before a page
	// counts as ready.
	MinReadyFloor time.Duration `yaml:"min_ready_floor"`
	// ReadinessCap bounds each readiness wait independently.
	ReadinessCap time.Duration `yaml:"readiness_cap"`

	// --- popup & overlay ---

	// PopupPasses is the exact number of dismissal passes per page.
	PopupPasses int `yaml:"popup_passes"`
	// PopupSettleDelay follows every dismissal attempt.
	PopupSettleDelay time.Duration `yaml:"popup_settle_delay"`
	// MaxDismissalsPerPass bounds clicks within one pass.
	MaxDismissalsPerPass int `yaml:"max_dismissals_per_pass"`
	// OverlayMinZIndex and OverlayMinViewportRatio define the generic
	// visual-overlay heuristic used by blocked-page detection and the
	// hide fallback.
	OverlayMinZIndex        int     `yaml:"overlay_min_z_index"`
	OverlayMinViewportRatio float64 `yaml:"overlay_min_viewport_ratio"`

	// --- PDP discovery & validation ---

	// PDPPathPatterns are product-path regexes for candidate links.
	PDPPathPatterns []string `yaml:"pdp_path_patterns"`
	// PDPMaxCandidates caps candidates validated per session.
	PDPMaxCandidates int `yaml:"pdp_max_candidates"`
	// PDPStrongSignalGating decides whether the strong signal
	// (add-to-cart or product schema) is required for validity or
	// merely tracked. The base signals (price, title+image) always
	// gate.
	PDPStrongSignalGating bool `yaml:"pdp_strong_signal_gating"`

	// --- lock & throttle ---

	// LockTTL expires orphaned domain locks.
	LockTTL time.Duration `yaml:"lock_ttl"`
	// LockMaxAttempts caps lock acquisition tries.
	LockMaxAttempts int `yaml:"lock_max_attempts"`
	// LockBackoff is the acquisition backoff ladder.
	LockBackoff []time.Duration `yaml:"lock_backoff"`
	// LockJitterMax is the random jitter added to each lock backoff.
	LockJitterMax time.Duration `yaml:"lock_jitter_max"`
	// ThrottleMinDelay is the minimum spacing between sessions for the
	// same domain; ThrottleTTL expires the completion marker.
	ThrottleMinDelay time.Duration `yaml:"throttle_min_delay"`
	ThrottleTTL      time.Duration `yaml:"throttle_ttl"`
}

// v13 is the current default ruleset. The strong PDP signal is
// advisory: tracked in the verdict but not required for validity.
func v13() Rules {
	return Rules{
		Version:           "v1.3",
		NavMaxAttempts:    3,
		NavBackoff:        []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		NavJitterMax:      500 * time.Millisecond,
		NavAttemptTimeout: 30 * time.Second,
		NavHardBudget:     90 * time.Second,
		RetryableStatuses: []int{403, 503, 429},
		BotBlockIndicators: []string{
			"challenge", "captcha", "verify you are human",
			"access denied", "blocked", "are you a robot",
		},
		BotBlockWait:            2 * time.Second,
		NetworkIdleWindow:       800 * time.Millisecond,
		DOMStableWindow:         time.Second,
		MinReadyFloor:           2 * time.Second,
		ReadinessCap:            10 * time.Second,
		PopupPasses:             2,
		PopupSettleDelay:        500 * time.Millisecond,
		MaxDismissalsPerPass:    5,
		OverlayMinZIndex:        10,
		OverlayMinViewportRatio: 0.4,
		PDPPathPatterns: []string{
			`/product(?:s)?/`,
			`/p/`,
			`/item(?:s)?/`,
			`/collections/[^/]+/products/`,
			`/shop/`,
		},
		PDPMaxCandidates:      20,
		PDPStrongSignalGating: false,
		LockTTL:               300 * time.Second,
		LockMaxAttempts:       3,
		LockBackoff:           []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		LockJitterMax:         500 * time.Millisecond,
		ThrottleMinDelay:      2000 * time.Millisecond,
		ThrottleTTL:           60 * time.Second,
	}
}

// v12 is the previous ruleset, kept for session comparability: it
// required the strong PDP signal (add-to-cart or product schema).
func v12() Rules {
	r := v13()
	r.Version = "v1.2"
	r.PDPStrongSignalGating = true
	return r
}

// Builtin returns the built-in rulesets keyed by version tag.
func Builtin() map[string]Rules {
	return map[string]Rules{
		"v1.2": v12(),
		"v1.3": v13(),
	}
}
