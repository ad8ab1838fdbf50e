// Package nav drives page loads with retry classification, bot-block
// detection, and readiness waiting. Classification is pure so the retry
// policy is testable without a browser.
package nav

import (
	"context"
	"errors"
	"strings"

	"github.com/storelens/storelens/models"
)

// ClassifyError maps a navigation error to an outcome and whether the
// attempt may be retried. Timeouts and connection-level failures retry;
// everything else (including driver crashes) fails the page immediately.
func ClassifyError(err error) (models.NavigationOutcome, bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NavTimeout, true
	}
	if errors.Is(err, context.Canceled) {
		return models.NavContextCanceled, false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "net::err_"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "no such host"):
		return models.NavNetErr, true
	}
	return models.NavNonRetryable, false
}

// ClassifyStatus maps an HTTP status to an outcome and retryability.
// Only the configured blocked statuses (403, 503, 429 by default)
// retry; other 4xx/5xx fail the page immediately. Status 0 means the
// driver could not observe one and is treated as success.
func ClassifyStatus(status int, retryable []int) (models.NavigationOutcome, bool) {
	if status == 0 || status < 400 {
		return models.NavSuccess, false
	}
	for _, s := range retryable {
		if status == s {
			return models.NavBlockedStatus, true
		}
	}
	return models.NavNonRetryable, false
}
