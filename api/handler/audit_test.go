package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/storelens/storelens/models"
	"github.com/storelens/storelens/policy"
	"github.com/storelens/storelens/store"
	"github.com/storelens/storelens/worker"
)

func postAudit(t *testing.T, h gin.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/audits", h)
	req := httptest.NewRequest(http.MethodPost, "/audits", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPostAudit_ProcessLockBypassAppliesToSession(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()
	queue := worker.NewMemQueue(4)
	registry := policy.NewRegistry()

	h := PostAudit(db, queue, registry, "", true)
	w := postAudit(t, h, `{"url":"https://shop.example/"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp models.AuditResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Session.Config.DisableLocks {
		t.Error("session should inherit the process-wide lock bypass")
	}

	job, err := queue.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if !job.DisableLocks {
		t.Error("job should carry the lock bypass")
	}
}

func TestPostAudit_RequestCannotReenableLocks(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()
	queue := worker.NewMemQueue(4)
	registry := policy.NewRegistry()

	// Without the process default, the per-request flag decides.
	h := PostAudit(db, queue, registry, "", false)
	w := postAudit(t, h, `{"url":"https://shop.example/","disable_locks":true}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp models.AuditResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Session.Config.DisableLocks {
		t.Error("request-level disable_locks should be honored")
	}
}

func TestPostAudit_RejectsBadURL(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	h := PostAudit(db, worker.NewMemQueue(1), policy.NewRegistry(), "", false)
	w := postAudit(t, h, `{"url":"not-a-url"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
