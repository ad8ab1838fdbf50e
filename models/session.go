package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of an audit session.
// completed and failed are terminal; partial is terminal too but keeps
// whatever evidence was captured before the coverage gate stopped the run.
type SessionStatus string

const (
	StatusQueued    SessionStatus = "queued"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusPartial   SessionStatus = "partial"
	StatusFailed    SessionStatus = "failed"
)

// Mode selects how strictly a session observes shared-resource policies.
// ModeDebug disables the per-domain throttle (but not the lock).
type Mode string

const (
	ModeAudit Mode = "audit"
	ModeDebug Mode = "debug"
)

// SessionConfig is the frozen per-session configuration snapshot. It is
// taken at enqueue time so that concurrent config changes never alter a
// running session's behavior.
type SessionConfig struct {
	Mode          Mode   `json:"mode"`
	PolicyVersion string `json:"policy_version"`
	// DisableLocks bypasses both the domain lock and the throttle.
	// Used by test harnesses and CI paths only.
	DisableLocks bool `json:"disable_locks,omitempty"`
	// StoreHTML forces the compressed-HTML artifact even when the page
	// is not low-confidence.
	StoreHTML bool `json:"store_html,omitempty"`
}

// Session is one audit run for a single target URL. It is owned
// exclusively by the session orchestrator: created at enqueue, mutated
// only by the orchestrator, immutable once terminal.
type Session struct {
	ID            uuid.UUID     `json:"id"`
	URL           string        `json:"url"`
	Domain        string        `json:"domain"`
	Status        SessionStatus `json:"status"`
	Config        SessionConfig `json:"config"`
	LowConfidence bool          `json:"low_confidence"`
	PDPURL        string        `json:"pdp_url,omitempty"`
	Attempts      int           `json:"attempts"`
	ErrorSummary  string        `json:"error_summary,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Terminal reports whether the session has reached a terminal status.
func (s *Session) Terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// Job is the intake payload consumed from the work queue.
type Job struct {
	SessionID     uuid.UUID `json:"session_id"`
	URL           string    `json:"url"`
	Mode          Mode      `json:"mode"`
	PolicyVersion string    `json:"policy_version"`
	DisableLocks  bool      `json:"disable_locks,omitempty"`
}
