// Package server exposes the scan service over HTTP. It is a thin
// translation layer: identity comes from trusted gateway headers, all
// decisions live in the scan service.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nmery/needscan/internal/scan"
	"github.com/nmery/needscan/internal/storage"
	"github.com/nmery/needscan/internal/types"
)

// Identity headers set by the upstream gateway. Authentication itself
// happens before requests reach this service.
const (
	headerUserID = "X-User-ID"
	headerPlan   = "X-User-Plan"
)

// Server is the HTTP front end for the scan service.
type Server struct {
	svc    *scan.Service
	log    *zap.Logger
	engine *gin.Engine
	http   *http.Server
}

// New builds the server and its routes.
func New(svc *scan.Service, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{svc: svc, log: log, engine: gin.New()}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api")
	{
		api.POST("/scans", s.handleCreateScan)
		api.GET("/scans", s.handleListScans)
		api.GET("/scans/:id", s.handleScanStatus)
		api.GET("/scans/:id/insights", s.handleScanInsights)
		api.GET("/usage", s.handleUsage)
		api.GET("/queue/status", s.handleQueueStatus)
	}
}

// Handler returns the routed handler, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()
	s.log.Info("http server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

func identity(c *gin.Context) (string, types.Plan) {
	userID := c.GetHeader(headerUserID)
	if userID == "" {
		userID = "anonymous"
	}
	plan := types.Plan(c.GetHeader(headerPlan))
	if !plan.IsValid() {
		plan = types.PlanFree
	}
	return userID, plan
}

func (s *Server) handleHealth(c *gin.Context) {
	if _, err := s.svc.QueueStatus(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreateScan(c *gin.Context) {
	userID, plan := identity(c)

	var req types.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	job, err := s.svc.CreateJob(c.Request.Context(), userID, plan, req)
	if errors.Is(err, storage.ErrQuotaExceeded) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusAccepted
	if job.IsCachedResult {
		status = http.StatusOK
	}
	c.JSON(status, job)
}

func (s *Server) handleListScans(c *gin.Context) {
	userID, _ := identity(c)

	jobs, err := s.svc.ListJobs(c.Request.Context(), userID, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (s *Server) handleScanStatus(c *gin.Context) {
	status, err := s.svc.GetJobStatus(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleScanInsights(c *gin.Context) {
	_, plan := identity(c)

	var query struct {
		Limit        int    `form:"limit"`
		Sector       string `form:"sector"`
		IncludeAudit bool   `form:"include_audit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query: " + err.Error()})
		return
	}

	filter := scan.ResultFilter{
		Limit:        s.svc.VisibleInsightLimit(plan, query.Limit),
		Sector:       types.Sector(query.Sector),
		IncludeAudit: query.IncludeAudit,
	}
	insights, err := s.svc.GetResults(c.Request.Context(), c.Param("id"), filter)
	switch {
	case errors.Is(err, storage.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, scan.ErrSourceUnresolved):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, scan.ErrNotCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"insights": insights, "count": len(insights)})
	}
}

func (s *Server) handleUsage(c *gin.Context) {
	userID, plan := identity(c)

	usage, err := s.svc.Usage(c.Request.Context(), userID, plan)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, usage)
}

func (s *Server) handleQueueStatus(c *gin.Context) {
	counts, err := s.svc.QueueStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, counts)
}
