// internal/api/notifications.go
package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	commonerrors "pulss-notifications/internal/common/errors"
	"pulss-notifications/internal/models"
	"pulss-notifications/internal/notify/enqueue"
	"pulss-notifications/internal/store"
)

func (s *Server) enqueueNotification(c *gin.Context) {
	var req enqueue.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.TenantID = tenantID(c)

	result, err := s.pipeline.Enqueue(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (s *Server) listNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	jobs, err := s.jobs.List(c.Request.Context(), tenantID(c), store.ListFilter{
		RecipientID: c.Query("recipient_id"),
		Channel:     models.Channel(c.Query("channel")),
		Status:      models.JobStatus(c.Query("status")),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*models.NotificationJob{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": jobs, "limit": limit, "offset": offset})
}

func (s *Server) getNotification(c *gin.Context) {
	job, err := s.jobs.Get(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		s.writeError(c, err)
		return
	}

	events, err := s.events.ListByJob(c.Request.Context(), tenantID(c), job.ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if events == nil {
		events = []*models.DeliveryEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"notification": job, "events": events})
}

func (s *Server) cancelNotification(c *gin.Context) {
	id := c.Param("id")
	err := s.jobs.Cancel(c.Request.Context(), tenantID(c), id, models.ReasonCallerCancelled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either unknown or already past pending; disambiguate for the caller.
			if job, getErr := s.jobs.Get(c.Request.Context(), tenantID(c), id); getErr == nil {
				c.JSON(http.StatusConflict, gin.H{
					"error":  "notification is no longer pending",
					"status": job.Status,
				})
				return
			}
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.StatusCancelled})
}

// writeError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	switch commonerrors.CodeOf(err) {
	case commonerrors.ErrCodeInvalidRequest, commonerrors.ErrCodeTenantRequired:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case commonerrors.ErrCodeJobNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case commonerrors.ErrCodeJobNotPending:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.log.Error("request failed", map[string]interface{}{
			"path":  c.FullPath(),
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
