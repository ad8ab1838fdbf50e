// Package session orchestrates one audit run end to end: lock, crawl
// the required pages, discover and validate the PDP, gate coverage, and
// hand completed evidence to the evaluator.
package session

import (
	"github.com/storelens/storelens/models"
)

// Error summaries surfaced on non-completed sessions.
const (
	SummaryLockTimeout     = "domain lock timeout"
	SummaryHomepageFailed  = "homepage crawl failed"
	SummaryPDPNotFound     = "PDP not found"
	SummaryPDPFailed       = "PDP crawl failed"
	SummaryCrawlIncomplete = "one or more pages failed"
)

// ComputeStatus applies the coverage gate to a session's page tasks.
// completed requires every required page ok. A homepage that failed on
// both viewports is a total failure. Anything in between keeps the
// evidence as partial, with the summary naming the PDP when the PDP
// tasks are the only failures. Pure function so the gate is testable
// without an orchestrator.
func ComputeStatus(tasks []models.PageTask) (models.SessionStatus, string) {
	okCount := 0
	homepageOK := false
	for _, t := range tasks {
		if t.Status == models.PageOK {
			okCount++
			if t.PageType == models.PageHomepage {
				homepageOK = true
			}
		}
	}
	switch {
	case okCount == len(tasks) && okCount > 0:
		return models.StatusCompleted, ""
	case !homepageOK:
		return models.StatusFailed, SummaryHomepageFailed
	default:
		return models.StatusPartial, partialSummary(tasks)
	}
}

// partialSummary picks the partial session's summary from its failed
// tasks. Failures confined to the PDP keep the canonical PDP summaries
// so the API answers "why partial" without reading page tasks.
func partialSummary(tasks []models.PageTask) string {
	pdpOnly := true
	notFound := true
	for _, t := range tasks {
		if t.Status == models.PageOK {
			continue
		}
		if t.PageType != models.PagePDP {
			pdpOnly = false
			break
		}
		if t.ErrorSummary != SummaryPDPNotFound {
			notFound = false
		}
	}
	switch {
	case pdpOnly && notFound:
		return SummaryPDPNotFound
	case pdpOnly:
		return SummaryPDPFailed
	default:
		return SummaryCrawlIncomplete
	}
}
