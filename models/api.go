package models

// AuditRequest is the intake payload for POST /api/v1/audits.
type AuditRequest struct {
	URL           string `json:"url" binding:"required"`
	Mode          Mode   `json:"mode,omitempty"`
	PolicyVersion string `json:"policy_version,omitempty"`
	DisableLocks  bool   `json:"disable_locks,omitempty"`
	StoreHTML     bool   `json:"store_html,omitempty"`
}

// Defaults fills unset request fields.
func (r *AuditRequest) Defaults() {
	if r.Mode == "" {
		r.Mode = ModeAudit
	}
}

// AuditResponse is the response envelope for audit endpoints.
type AuditResponse struct {
	Success bool         `json:"success"`
	Session *Session     `json:"session,omitempty"`
	Pages   []PageTask   `json:"pages,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// HealthResponse is the GET /api/v1/health payload.
type HealthResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	QueueDepth int    `json:"queue_depth"`
	Version    string `json:"version"`
}
