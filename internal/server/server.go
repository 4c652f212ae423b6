package server

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/teamxray/xray/internal/cache"
	"github.com/teamxray/xray/internal/config"
	"github.com/teamxray/xray/internal/jobs"
)

// Server exposes the analysis pipeline over HTTP and WebSocket.
type Server struct {
	cfg      *config.Config
	registry *jobs.Registry
	limiter  *jobs.RateLimiter
	store    *cache.Store
	logger   *logrus.Logger
}

func New(cfg *config.Config, registry *jobs.Registry, store *cache.Store, logger *logrus.Logger) *Server {
	return &Server{
		cfg:      cfg,
		registry: registry,
		limiter:  jobs.NewRateLimiter(cfg.Server.RateLimitMax, cfg.Server.RateLimitWindow),
		store:    store,
		logger:   logger,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "xray"})
	})

	api := r.Group("/api")
	{
		api.POST("/analyze", s.startAnalysis)
		api.GET("/status/:job_id", s.getStatus)
		api.GET("/results/:job_id", s.getResults)
		api.GET("/cached", s.listCached)
		api.GET("/cached/*slug", s.getCached)
	}
	r.GET("/ws/:job_id", s.streamJob)

	return r
}

// Run serves until the listener fails.
func (s *Server) Run() error {
	s.logger.WithField("addr", s.cfg.Server.Addr).Info("server listening")
	return s.Router().Run(s.cfg.Server.Addr)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type analyzeRequest struct {
	RepoURL string `json:"repo_url" binding:"required"`
	Months  int    `json:"months"`
}

func (s *Server) startAnalysis(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "repo_url is required"})
		return
	}
	if req.Months == 0 {
		req.Months = s.cfg.Analysis.DefaultMonths
	}
	if req.Months < 1 || req.Months > 24 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "months must be between 1 and 24"})
		return
	}

	if !s.limiter.Allow(clientIP(c)) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Maximum %d analyses per %d minutes.",
				s.cfg.Server.RateLimitMax, int(s.cfg.Server.RateLimitWindow.Minutes())),
		})
		return
	}

	view, err := s.registry.Start(req.RepoURL, req.Months)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": view.ID})
}

// clientIP honors X-Forwarded-For from a fronting proxy.
func clientIP(c *gin.Context) string {
	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return c.ClientIP()
}

func (s *Server) getStatus(c *gin.Context) {
	id := c.Param("job_id")
	view, ok := s.registry.Get(id)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"job_id": id, "status": jobs.StatusError, "message": "Job not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job_id":   view.ID,
		"status":   view.Status,
		"stage":    view.Stage,
		"message":  view.Message,
		"progress": view.Progress,
	})
}

func (s *Server) getResults(c *gin.Context) {
	id := c.Param("job_id")
	view, ok := s.registry.Get(id)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"error": "Job not found"})
		return
	}
	result, ok := s.registry.Result(id)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"error": "Analysis not complete", "status": view.Status})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) listCached(c *gin.Context) {
	summaries, err := s.store.List()
	if err != nil {
		s.logger.WithError(err).Error("listing cached results failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list cached results"})
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (s *Server) getCached(c *gin.Context) {
	slug := strings.TrimPrefix(c.Param("slug"), "/")
	raw, err := s.store.Get(slug)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, gin.H{"error": "No cached results for this repo"})
			return
		}
		s.logger.WithError(err).WithField("slug", slug).Error("reading cached result failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read cached result"})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}
