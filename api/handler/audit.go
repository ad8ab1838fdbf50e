package handler

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/storelens/storelens/locking"
	"github.com/storelens/storelens/models"
	"github.com/storelens/storelens/policy"
	"github.com/storelens/storelens/store"
	"github.com/storelens/storelens/worker"
)

// PostAudit returns a handler for POST /api/v1/audits.
//
// Flow: validate request, freeze the session config (mode + resolved
// policy version), create the queued session record, enqueue the job.
// Responds 202 with the queued session. defaultDisableLocks is the
// process-wide lock bypass (test/CI deployments); a request can opt in
// per session but never opt out of it.
func PostAudit(db *store.Store, queue worker.Queue, registry *policy.Registry, defaultVersion string, defaultDisableLocks bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AuditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		req.Defaults()

		target, err := url.Parse(req.URL)
		if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
			badRequest(c, "url must be an absolute http(s) URL")
			return
		}
		if req.Mode != models.ModeAudit && req.Mode != models.ModeDebug {
			badRequest(c, "mode must be \"audit\" or \"debug\"")
			return
		}

		version := req.PolicyVersion
		if version == "" {
			version = defaultVersion
		}
		rules, err := registry.Resolve(version)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		now := time.Now().UTC()
		sess := &models.Session{
			ID:     uuid.New(),
			URL:    req.URL,
			Domain: locking.NormalizeDomain(req.URL),
			Status: models.StatusQueued,
			Config: models.SessionConfig{
				Mode:          req.Mode,
				PolicyVersion: rules.Version,
				DisableLocks:  req.DisableLocks || defaultDisableLocks,
				StoreHTML:     req.StoreHTML,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := db.CreateSession(c.Request.Context(), sess); err != nil {
			internalError(c, "failed to create session")
			return
		}

		job := models.Job{
			SessionID:     sess.ID,
			URL:           sess.URL,
			Mode:          sess.Config.Mode,
			PolicyVersion: sess.Config.PolicyVersion,
			DisableLocks:  sess.Config.DisableLocks,
		}
		if err := queue.Enqueue(c.Request.Context(), job); err != nil {
			sess.Status = models.StatusFailed
			sess.ErrorSummary = "enqueue failed"
			sess.UpdatedAt = time.Now().UTC()
			_ = db.UpdateSession(c.Request.Context(), sess)
			internalError(c, "failed to enqueue job")
			return
		}

		c.JSON(http.StatusAccepted, models.AuditResponse{Success: true, Session: sess})
	}
}

// GetAudit returns a handler for GET /api/v1/audits/:id.
func GetAudit(db *store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			badRequest(c, "invalid session id")
			return
		}

		sess, err := db.GetSession(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, models.AuditResponse{
					Success: false,
					Error: &models.ErrorDetail{
						Code:    models.ErrCodeInvalidInput,
						Message: "session not found",
					},
				})
				return
			}
			internalError(c, "failed to load session")
			return
		}

		pages, err := db.ListPageTasks(c.Request.Context(), id)
		if err != nil {
			internalError(c, "failed to load page tasks")
			return
		}

		c.JSON(http.StatusOK, models.AuditResponse{
			Success: true,
			Session: sess,
			Pages:   pages,
		})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.AuditResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: msg,
		},
	})
}

func internalError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, models.AuditResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInternal,
			Message: msg,
		},
	})
}
