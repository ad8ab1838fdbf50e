package models

// OverlayAction is the kind of action taken against a detected overlay.
type OverlayAction string

const (
	ActionDismissClick OverlayAction = "dismiss_click"
	ActionHideFallback OverlayAction = "overlay_hide_fallback"
)

// OverlayResult is the outcome of an overlay action.
type OverlayResult string

const (
	OverlaySuccess OverlayResult = "success"
	OverlayFailure OverlayResult = "failure"
)

// OverlayEvent records one popup dismissal or the hide fallback.
// Emitted to the structured log and event store, never retained as
// mutable state. Only actions actually taken are emitted; "overlay not
// found" produces no event.
type OverlayEvent struct {
	SelectorFamily string        `json:"selector_family"`
	Selector       string        `json:"selector"`
	Action         OverlayAction `json:"action"`
	Result         OverlayResult `json:"result"`
	PageType       PageType      `json:"page_type"`
	Viewport       Viewport      `json:"viewport"`
	HiddenCount    int           `json:"hidden_count,omitempty"`
	FrameCount     int           `json:"frame_count,omitempty"`
}
