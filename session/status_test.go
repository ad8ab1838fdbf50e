package session

import (
	"testing"

	"github.com/storelens/storelens/models"
)

func tasksWith(statuses map[string]models.PageTaskStatus) []models.PageTask {
	tasks := models.RequiredPages()
	for i, task := range tasks {
		key := string(task.PageType) + "/" + string(task.Viewport)
		if s, ok := statuses[key]; ok {
			tasks[i].Status = s
		}
	}
	return tasks
}

func TestComputeStatus_AllPagesOK(t *testing.T) {
	tasks := tasksWith(map[string]models.PageTaskStatus{
		"homepage/desktop": models.PageOK,
		"homepage/mobile":  models.PageOK,
		"pdp/desktop":      models.PageOK,
		"pdp/mobile":       models.PageOK,
	})
	status, summary := ComputeStatus(tasks)
	if status != models.StatusCompleted {
		t.Errorf("4/4 must complete, got %s", status)
	}
	if summary != "" {
		t.Errorf("completed sessions carry no summary, got %q", summary)
	}
}

func TestComputeStatus_ThreeOfFourIsPartial(t *testing.T) {
	tasks := tasksWith(map[string]models.PageTaskStatus{
		"homepage/desktop": models.PageOK,
		"homepage/mobile":  models.PageOK,
		"pdp/desktop":      models.PageOK,
		"pdp/mobile":       models.PageFailed,
	})
	status, summary := ComputeStatus(tasks)
	if status != models.StatusPartial {
		t.Errorf("3/4 must be partial, got %s", status)
	}
	// The only failure is a PDP task, so the summary names the PDP.
	if summary != SummaryPDPFailed {
		t.Errorf("unexpected summary: %q", summary)
	}
}

func TestComputeStatus_PDPNotFoundIsPartial(t *testing.T) {
	tasks := tasksWith(map[string]models.PageTaskStatus{
		"homepage/desktop": models.PageOK,
		"homepage/mobile":  models.PageOK,
		"pdp/desktop":      models.PageFailed,
		"pdp/mobile":       models.PageFailed,
	})
	for i := range tasks {
		if tasks[i].PageType == models.PagePDP {
			tasks[i].ErrorSummary = SummaryPDPNotFound
		}
	}
	status, summary := ComputeStatus(tasks)
	if status != models.StatusPartial {
		t.Errorf("homepage evidence must be kept as partial, got %s", status)
	}
	if summary != SummaryPDPNotFound {
		t.Errorf("PDP-not-found sessions must say so, got %q", summary)
	}
}

func TestComputeStatus_MixedFailuresStayGeneric(t *testing.T) {
	tasks := tasksWith(map[string]models.PageTaskStatus{
		"homepage/desktop": models.PageOK,
		"homepage/mobile":  models.PageFailed,
		"pdp/desktop":      models.PageOK,
		"pdp/mobile":       models.PageFailed,
	})
	status, summary := ComputeStatus(tasks)
	if status != models.StatusPartial {
		t.Errorf("expected partial, got %s", status)
	}
	if summary != SummaryCrawlIncomplete {
		t.Errorf("mixed failures keep the generic summary, got %q", summary)
	}
}

func TestComputeStatus_HomepageTotalFailureFails(t *testing.T) {
	tasks := tasksWith(map[string]models.PageTaskStatus{
		"homepage/desktop": models.PageFailed,
		"homepage/mobile":  models.PageFailed,
		"pdp/desktop":      models.PageFailed,
		"pdp/mobile":       models.PageFailed,
	})
	status, summary := ComputeStatus(tasks)
	if status != models.StatusFailed {
		t.Errorf("homepage total failure must fail the session, got %s", status)
	}
	if summary != SummaryHomepageFailed {
		t.Errorf("unexpected summary: %q", summary)
	}
}

func TestComputeStatus_OneHomepageViewportKeepsPartial(t *testing.T) {
	tasks := tasksWith(map[string]models.PageTaskStatus{
		"homepage/desktop": models.PageFailed,
		"homepage/mobile":  models.PageOK,
		"pdp/desktop":      models.PageFailed,
		"pdp/mobile":       models.PageFailed,
	})
	status, _ := ComputeStatus(tasks)
	if status != models.StatusPartial {
		t.Errorf("one surviving homepage viewport keeps the session partial, got %s", status)
	}
}

func TestComputeStatus_NoTasks(t *testing.T) {
	status, _ := ComputeStatus(nil)
	if status != models.StatusFailed {
		t.Errorf("no tasks means nothing succeeded, got %s", status)
	}
}
