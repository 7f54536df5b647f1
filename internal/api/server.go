// Package api exposes the evaluation engine over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kunjulin/PRECISE-HBR-sub000/internal/config"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/domain"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/history"
	"github.com/kunjulin/PRECISE-HBR-sub000/internal/service"
)

// Server is the HTTP front end.
type Server struct {
	engine    *gin.Engine
	http      *http.Server
	evaluator *service.Evaluator
	store     history.Store
	logger    *logrus.Logger
}

// NewServer wires routes and middleware. store may be nil when history is
// disabled.
func NewServer(cfg config.ServerConfig, evaluator *service.Evaluator, store history.Store, logger *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestID())
	engine.Use(CORS(cfg.AllowedOrigins))
	engine.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	s := &Server{
		engine:    engine,
		evaluator: evaluator,
		store:     store,
		logger:    logger,
		http: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)

	v1 := s.engine.Group("/api/v1")
	v1.POST("/score", s.handleScore)
	v1.POST("/tradeoff", s.handleTradeoff)
	v1.POST("/evaluate", s.handleEvaluate)
	v1.GET("/ruleset", s.handleRuleset)
	v1.GET("/history/:patientID", s.handleHistory)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.http.Addr).Info("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"ruleset_version": s.evaluator.RulesetVersion(),
	})
}

func (s *Server) handleScore(c *gin.Context) {
	snapshot, ok := s.bindSnapshot(c)
	if !ok {
		return
	}
	result, err := s.evaluator.Score(c.Request.Context(), snapshot)
	if err != nil {
		s.writeEvaluationError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleTradeoff(c *gin.Context) {
	snapshot, ok := s.bindSnapshot(c)
	if !ok {
		return
	}
	result, err := s.evaluator.Tradeoff(c.Request.Context(), snapshot)
	if err != nil {
		s.writeEvaluationError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleEvaluate(c *gin.Context) {
	snapshot, ok := s.bindSnapshot(c)
	if !ok {
		return
	}
	result, err := s.evaluator.Evaluate(c.Request.Context(), snapshot)
	if err != nil {
		s.writeEvaluationError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRuleset(c *gin.Context) {
	table := s.evaluator.RuleTable()
	c.JSON(http.StatusOK, gin.H{
		"version":        table.Version,
		"factor_count":   len(table.Factors),
		"thresholds":     table.Thresholds,
		"baseline_rates": table.BaselineRates,
		"factors":        table.Factors,
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "evaluation history is disabled"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	records, err := s.store.ListByPatient(c.Request.Context(), c.Param("patientID"), limit)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load evaluation history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	if records == nil {
		records = []*history.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"patient_id": c.Param("patientID"), "evaluations": records})
}

func (s *Server) bindSnapshot(c *gin.Context) (*domain.PatientClinicalSnapshot, bool) {
	var snapshot domain.PatientClinicalSnapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid snapshot: %v", err)})
		return nil, false
	}
	if snapshot.PatientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "patient_id is required"})
		return nil, false
	}
	return &snapshot, true
}

// writeEvaluationError maps engine errors onto HTTP statuses. Missing
// critical inputs are a 422 carrying the exact field list so the UI can say
// which values to chase.
func (s *Server) writeEvaluationError(c *gin.Context, err error) {
	var insufficient *domain.InsufficientDataError
	if errors.As(err, &insufficient) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":          "insufficient data for score",
			"missing_inputs": insufficient.Missing,
		})
		return
	}
	s.logger.WithError(err).Error("Evaluation failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation failed"})
}
