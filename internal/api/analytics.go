// internal/api/analytics.go
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xeipuuv/gojsonschema"

	"pulss-notifications/internal/models"
)

func (s *Server) getAnalytics(c *gin.Context) {
	q, err := s.statsQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows, err := s.exporter.Query(c.Request.Context(), q)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if rows == nil {
		rows = []*models.StatRow{}
	}
	c.JSON(http.StatusOK, gin.H{"stats": rows})
}

func (s *Server) exportAnalytics(c *gin.Context) {
	q, err := s.statsQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "csv":
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="notification_stats.csv"`)
		if err := s.exporter.WriteCSV(c.Request.Context(), c.Writer, q); err != nil {
			s.writeError(c, err)
		}
	case "json":
		c.Header("Content-Type", "application/json")
		if err := s.exporter.WriteJSON(c.Request.Context(), c.Writer, q); err != nil {
			s.writeError(c, err)
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or json"})
	}
}

// statsQuery parses the shared range filters. The default window is the
// trailing 30 days.
func (s *Server) statsQuery(c *gin.Context) (models.StatsQuery, error) {
	q := models.StatsQuery{
		TenantID: tenantID(c),
		Channel:  models.Channel(c.Query("channel")),
		TypeCode: c.Query("type_code"),
		To:       time.Now().UTC(),
	}
	q.From = q.To.AddDate(0, 0, -30)

	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return q, fmt.Errorf("invalid from date %q", v)
		}
		q.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return q, fmt.Errorf("invalid to date %q", v)
		}
		q.To = t
	}
	if q.To.Before(q.From) {
		return q, fmt.Errorf("to precedes from")
	}
	if q.Channel != "" && !q.Channel.Valid() {
		return q, fmt.Errorf("unknown channel %q", q.Channel)
	}
	return q, nil
}

// callbackSchema validates inbound provider callbacks before they touch the
// recorder.
const callbackSchema = `{
	"type": "object",
	"required": ["job_id", "outcome"],
	"properties": {
		"job_id":              {"type": "string", "minLength": 1},
		"outcome":             {"type": "string", "enum": ["delivered", "opened", "clicked", "bounced", "failed"]},
		"provider_message_id": {"type": "string"},
		"detail":              {"type": "string"},
		"occurred_at":         {"type": "string", "format": "date-time"}
	}
}`

type callbackBody struct {
	JobID             string `json:"job_id"`
	Outcome           string `json:"outcome"`
	ProviderMessageID string `json:"provider_message_id"`
	Detail            string `json:"detail"`
	OccurredAt        string `json:"occurred_at"`
}

// providerCallback records delivery/open/click/bounce signals pushed back by
// vendors. The recorder's dedupe makes vendor retries harmless.
func (s *Server) providerCallback(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(callbackSchema),
		gojsonschema.NewBytesLoader(raw))
	if err != nil || !result.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid callback payload"})
		return
	}

	var body callbackBody
	if err := json.Unmarshal(raw, &body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid callback payload"})
		return
	}

	job, err := s.jobs.Get(c.Request.Context(), tenantID(c), body.JobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		s.writeError(c, err)
		return
	}

	occurredAt := time.Now().UTC()
	if body.OccurredAt != "" {
		if t, err := time.Parse(time.RFC3339, body.OccurredAt); err == nil {
			occurredAt = t
		}
	}

	err = s.recorder.Record(c.Request.Context(), &models.DeliveryEvent{
		JobID:             job.ID,
		TenantID:          job.TenantID,
		Channel:           job.Channel,
		TypeCode:          job.TypeCode,
		Outcome:           models.Outcome(body.Outcome),
		Provider:          c.Param("provider"),
		ProviderMessageID: body.ProviderMessageID,
		ProviderResponse:  body.Detail,
		OccurredAt:        occurredAt,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}
