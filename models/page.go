package models

import "time"

// PageType identifies which audited page a task targets.
type PageType string

const (
	PageHomepage PageType = "homepage"
	PagePDP      PageType = "pdp"
)

// Viewport is the rendering context for a page crawl.
type Viewport string

const (
	ViewportDesktop Viewport = "desktop"
	ViewportMobile  Viewport = "mobile"
)

// ViewportSize holds emulated screen dimensions.
type ViewportSize struct {
	Width  int
	Height int
}

// ViewportSizes maps each viewport to its emulated dimensions.
var ViewportSizes = map[Viewport]ViewportSize{
	ViewportDesktop: {Width: 1920, Height: 1080},
	ViewportMobile:  {Width: 375, Height: 667},
}

// PageTaskStatus is the terminal-once status of a page task.
type PageTaskStatus string

const (
	PagePending PageTaskStatus = "pending"
	PageOK      PageTaskStatus = "ok"
	PageFailed  PageTaskStatus = "failed"
)

// LoadTimings records the readiness milestones for one page load.
// Unreached milestones stay zero; SoftTimeout marks readiness waits
// that hit their cap without converging.
type LoadTimings struct {
	NavigationStart time.Time     `json:"navigation_start"`
	NetworkIdle     time.Time     `json:"network_idle,omitzero"`
	DOMStable       time.Time     `json:"dom_stable,omitzero"`
	Ready           time.Time     `json:"ready,omitzero"`
	TotalLoad       time.Duration `json:"total_load_duration"`
	SoftTimeout     bool          `json:"soft_timeout"`
}

// PageTask is one (page type × viewport) unit of work within a session.
// Produced by the orchestrator before crawling starts; reaches ok or
// failed exactly once and is never revisited after the coverage gate.
type PageTask struct {
	PageType             PageType       `json:"page_type"`
	Viewport             Viewport       `json:"viewport"`
	Status               PageTaskStatus `json:"status"`
	Timings              LoadTimings    `json:"load_timings"`
	LowConfidenceReasons []string       `json:"low_confidence_reasons,omitempty"`
	ErrorSummary         string         `json:"error_summary,omitempty"`
}

// RequiredPages is the fixed set of page tasks the coverage gate counts:
// homepage and PDP, each on desktop and mobile.
func RequiredPages() []PageTask {
	return []PageTask{
		{PageType: PageHomepage, Viewport: ViewportDesktop, Status: PagePending},
		{PageType: PageHomepage, Viewport: ViewportMobile, Status: PagePending},
		{PageType: PagePDP, Viewport: ViewportDesktop, Status: PagePending},
		{PageType: PagePDP, Viewport: ViewportMobile, Status: PagePending},
	}
}

// NavigationOutcome classifies one navigation attempt.
type NavigationOutcome string

const (
	NavSuccess         NavigationOutcome = "success"
	NavTimeout         NavigationOutcome = "navigation_timeout"
	NavNetErr          NavigationOutcome = "net_err"
	NavBlockedStatus   NavigationOutcome = "blocked_status"
	NavNonRetryable    NavigationOutcome = "non_retryable"
	NavBotBlock        NavigationOutcome = "bot_block"
	NavHardTimeout     NavigationOutcome = "hard_timeout"
	NavContextCanceled NavigationOutcome = "context_canceled"
)

// NavigationAttempt is one try at loading a URL. Ephemeral: it exists
// only within a page task's execution and is never persisted beyond the
// structured log stream.
type NavigationAttempt struct {
	Index   int               `json:"attempt"`
	Outcome NavigationOutcome `json:"outcome"`
	Status  int               `json:"status,omitempty"`
	Elapsed time.Duration     `json:"elapsed"`
	Backoff time.Duration     `json:"backoff"`
}
