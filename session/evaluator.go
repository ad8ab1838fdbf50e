package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/storelens/storelens/models"
)

// Handoff is the payload posted to the evaluator for a session that
// passed the coverage gate. It references artifacts by path rather
// than embedding them; the evaluator shares the artifact volume.
type Handoff struct {
	SessionID     string    `json:"session_id"`
	URL           string    `json:"url"`
	Domain        string    `json:"domain"`
	PDPURL        string    `json:"pdp_url"`
	PolicyVersion string    `json:"policy_version"`
	LowConfidence bool      `json:"low_confidence"`
	ArtifactDir   string    `json:"artifact_dir"`
	CompletedAt   time.Time `json:"completed_at"`

	Pages []models.PageTask `json:"pages"`
}

// Evaluator delivers completed-session handoffs over HTTP. Delivery
// retries in the background so a slow evaluator never blocks the
// worker; a session is completed once its evidence is durable, whether
// or not the handoff lands.
type Evaluator struct {
	url    string
	client *http.Client
}

// NewEvaluator creates an Evaluator posting to url. An empty url
// disables handoff.
func NewEvaluator(url string) *Evaluator {
	return &Evaluator{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether an evaluator endpoint is configured.
func (e *Evaluator) Enabled() bool {
	return e != nil && e.url != ""
}

// Deliver posts the handoff once.
func (e *Evaluator) Deliver(ctx context.Context, h *Handoff) error {
	body, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("evaluator: marshal handoff: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("evaluator: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "StoreLens-Handoff/1.0")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("evaluator: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("evaluator: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverAsync posts the handoff in the background with up to 3
// retries (1s, 5s, 30s).
func (e *Evaluator) DeliverAsync(h *Handoff) {
	if !e.Enabled() {
		return
	}
	go func() {
		delays := []time.Duration{0, time.Second, 5 * time.Second, 30 * time.Second}
		for attempt, delay := range delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := e.Deliver(ctx, h)
			cancel()
			if err == nil {
				slog.Info("evaluator.handoff_delivered",
					"session_id", h.SessionID, "attempt", attempt+1)
				return
			}
			slog.Warn("evaluator.handoff_failed",
				"session_id", h.SessionID, "attempt", attempt+1, "error", err.Error())
		}
		slog.Error("evaluator.handoff_exhausted", "session_id", h.SessionID)
	}()
}
