// internal/api/admin.go
package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulss-notifications/internal/models"
)

// ---- templates ----

type templateBody struct {
	Subject string `json:"subject"`
	Body    string `json:"body" binding:"required"`
}

func (s *Server) listTemplates(c *gin.Context) {
	tmpls, err := s.templates.List(c.Request.Context(), tenantID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if tmpls == nil {
		tmpls = []*models.NotificationTemplate{}
	}
	c.JSON(http.StatusOK, gin.H{"templates": tmpls})
}

func (s *Server) upsertTemplate(c *gin.Context) {
	s.saveTemplate(c, tenantID(c))
}

func (s *Server) upsertPlatformTemplate(c *gin.Context) {
	s.saveTemplate(c, models.PlatformTenantID)
}

func (s *Server) saveTemplate(c *gin.Context, owner string) {
	channel := models.Channel(c.Param("channel"))
	if !channel.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel"})
		return
	}

	var body templateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "subject/body required"})
		return
	}

	tmpl := &models.NotificationTemplate{
		TenantID: owner,
		TypeCode: c.Param("typeCode"),
		Channel:  channel,
		Subject:  body.Subject,
		Body:     body.Body,
	}
	if err := s.templates.Upsert(c.Request.Context(), tmpl); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tmpl)
}

func (s *Server) deleteTemplate(c *gin.Context) {
	channel := models.Channel(c.Param("channel"))
	err := s.templates.Delete(c.Request.Context(), tenantID(c), c.Param("typeCode"), channel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- provider configs ----

type providerBody struct {
	Provider       string            `json:"provider" binding:"required"`
	CredentialsRef string            `json:"credentials_ref"`
	Settings       map[string]string `json:"settings"`
}

func (s *Server) listProviders(c *gin.Context) {
	cfgs, err := s.providers.List(c.Request.Context(), tenantID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if cfgs == nil {
		cfgs = []*models.ProviderConfig{}
	}
	c.JSON(http.StatusOK, gin.H{"providers": cfgs})
}

func (s *Server) upsertProvider(c *gin.Context) {
	s.saveProvider(c, tenantID(c))
}

func (s *Server) upsertPlatformProvider(c *gin.Context) {
	s.saveProvider(c, models.PlatformTenantID)
}

func (s *Server) saveProvider(c *gin.Context, owner string) {
	channel := models.Channel(c.Param("channel"))
	if !channel.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel"})
		return
	}

	var body providerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider required"})
		return
	}

	cfg := &models.ProviderConfig{
		TenantID:       owner,
		Channel:        channel,
		Provider:       body.Provider,
		CredentialsRef: body.CredentialsRef,
		Settings:       body.Settings,
	}
	if err := s.providers.Upsert(c.Request.Context(), cfg); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) deleteProvider(c *gin.Context) {
	channel := models.Channel(c.Param("channel"))
	err := s.providers.Delete(c.Request.Context(), tenantID(c), channel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "provider config not found"})
			return
		}
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---- recipient preferences ----

type preferenceBody struct {
	Channels   []string `json:"channels"`
	TypeCodes  []string `json:"type_codes"`
	QuietStart string   `json:"quiet_start"`
	QuietEnd   string   `json:"quiet_end"`
	Timezone   string   `json:"timezone"`
	Language   string   `json:"language"`
}

func (s *Server) getPreference(c *gin.Context) {
	pref, err := s.prefs.Get(c.Request.Context(), tenantID(c), c.Param("recipientId"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusOK, models.DefaultPreference(tenantID(c), c.Param("recipientId")))
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pref)
}

func (s *Server) upsertPreference(c *gin.Context) {
	var body preferenceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid preference body"})
		return
	}

	pref := &models.RecipientPreference{
		TenantID:    tenantID(c),
		RecipientID: c.Param("recipientId"),
		TypeCodes:   body.TypeCodes,
		QuietStart:  body.QuietStart,
		QuietEnd:    body.QuietEnd,
		Timezone:    body.Timezone,
		Language:    body.Language,
	}
	for _, raw := range body.Channels {
		ch := models.Channel(raw)
		if !ch.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel " + raw})
			return
		}
		pref.Channels = append(pref.Channels, ch)
	}

	if err := s.prefs.Upsert(c.Request.Context(), pref); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pref)
}
