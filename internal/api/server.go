// internal/api/server.go
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pulss-notifications/internal/common/logger"
	"pulss-notifications/internal/notify/analytics"
	"pulss-notifications/internal/notify/enqueue"
	"pulss-notifications/internal/store"
)

// Server wires the REST surface: trigger, query, callbacks and admin CRUD.
type Server struct {
	engine     *gin.Engine
	pipeline   *enqueue.Pipeline
	jobs       *store.JobStore
	events     *store.EventStore
	exporter   *analytics.Exporter
	recorder   *analytics.Recorder
	templates  *store.TemplateStore
	providers  *store.ProviderStore
	prefs      *store.PreferenceStore
	log        logger.Logger
	adminToken string

	httpServer *http.Server
}

// Deps carries everything the server needs; all fields are required except
// AdminToken (empty disables the platform routes).
type Deps struct {
	Pipeline   *enqueue.Pipeline
	Jobs       *store.JobStore
	Events     *store.EventStore
	Exporter   *analytics.Exporter
	Recorder   *analytics.Recorder
	Templates  *store.TemplateStore
	Providers  *store.ProviderStore
	Prefs      *store.PreferenceStore
	Log        logger.Logger
	AdminToken string
}

func NewServer(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:     gin.New(),
		pipeline:   deps.Pipeline,
		jobs:       deps.Jobs,
		events:     deps.Events,
		exporter:   deps.Exporter,
		recorder:   deps.Recorder,
		templates:  deps.Templates,
		providers:  deps.Providers,
		prefs:      deps.Prefs,
		log:        deps.Log,
		adminToken: deps.AdminToken,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.Use(gin.Recovery(), s.requestLog())

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/api/v1", s.tenantRequired())
	{
		v1.POST("/notifications", s.enqueueNotification)
		v1.GET("/notifications", s.listNotifications)
		v1.GET("/notifications/:id", s.getNotification)
		v1.DELETE("/notifications/:id", s.cancelNotification)

		v1.GET("/analytics", s.getAnalytics)
		v1.GET("/analytics/export", s.exportAnalytics)

		v1.POST("/callbacks/:provider", s.providerCallback)

		v1.GET("/templates", s.listTemplates)
		v1.PUT("/templates/:typeCode/:channel", s.upsertTemplate)
		v1.DELETE("/templates/:typeCode/:channel", s.deleteTemplate)

		v1.GET("/providers", s.listProviders)
		v1.PUT("/providers/:channel", s.upsertProvider)
		v1.DELETE("/providers/:channel", s.deleteProvider)

		v1.GET("/preferences/:recipientId", s.getPreference)
		v1.PUT("/preferences/:recipientId", s.upsertPreference)
	}

	// Platform routes write rows with the empty tenant id (platform defaults).
	admin := s.engine.Group("/api/v1/platform", s.superadminRequired())
	{
		admin.PUT("/templates/:typeCode/:channel", s.upsertPlatformTemplate)
		admin.PUT("/providers/:channel", s.upsertPlatformProvider)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains with a grace period.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	s.log.Info("api server listening", map[string]interface{}{"addr": addr})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
