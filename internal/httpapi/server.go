// Package httpapi provides the HTTP API for reviewd.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reviewd/internal/matter"
	"github.com/fyrsmithlabs/reviewd/internal/retrieval"
)

// PipelineLauncher starts a pipeline run. The server launches it
// detached and never awaits it; callers poll the matter for progress.
type PipelineLauncher interface {
	Run(ctx context.Context, matterID string)
}

// Ingestor loads reference documents into the knowledge base.
type Ingestor interface {
	Ingest(ctx context.Context, docs []retrieval.ReferenceDocument) (int, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides HTTP endpoints for reviewd.
type Server struct {
	echo     *echo.Echo
	store    matter.Store
	pipeline PipelineLauncher
	ingestor Ingestor
	logger   *zap.Logger
	config   Config
}

// NewServer creates a new HTTP server.
func NewServer(store matter.Store, pipeline PipelineLauncher, ingestor Ingestor, gatherer prometheus.Gatherer, logger *zap.Logger, cfg Config) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline launcher is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 9180
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		store:    store,
		pipeline: pipeline,
		ingestor: ingestor,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes(gatherer)
	return s, nil
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/health", s.handleHealth)
	if gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.echo.Group("/api/v1")
	v1.POST("/matters", s.handleCreateMatter)
	v1.GET("/matters", s.handleListMatters)
	v1.GET("/matters/:id", s.handleGetMatter)
	v1.POST("/reference", s.handleIngestReference)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateMatterRequest is the request body for POST /api/v1/matters.
type CreateMatterRequest struct {
	DocType       string `json:"docType"`
	Jurisdiction  string `json:"jurisdiction"`
	RiskTolerance string `json:"riskTolerance"`
	Audience      string `json:"audience"`
	DocumentText  string `json:"documentText"`
}

func (r CreateMatterRequest) validate() error {
	if r.DocumentText == "" {
		return errors.New("documentText is required")
	}
	if r.DocType == "" {
		return errors.New("docType is required")
	}
	switch matter.RiskTolerance(r.RiskTolerance) {
	case matter.RiskLow, matter.RiskMedium, matter.RiskHigh:
	default:
		return fmt.Errorf("riskTolerance must be one of low, medium, high")
	}
	switch matter.Audience(r.Audience) {
	case matter.AudiencePlain, matter.AudienceLegal:
	default:
		return fmt.Errorf("audience must be one of %s, %s", matter.AudiencePlain, matter.AudienceLegal)
	}
	return nil
}

// handleCreateMatter opens a matter and launches its pipeline run
// detached. Progress is observed by polling GET /matters/:id.
func (s *Server) handleCreateMatter(c echo.Context) error {
	var req CreateMatterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := req.validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	m := matter.New(matter.Request{
		DocType:       req.DocType,
		Jurisdiction:  req.Jurisdiction,
		RiskTolerance: matter.RiskTolerance(req.RiskTolerance),
		Audience:      matter.Audience(req.Audience),
		DocumentText:  req.DocumentText,
	})
	if err := s.store.Set(c.Request().Context(), m); err != nil {
		s.logger.Error("persisting new matter", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create matter")
	}

	// Fire and forget: the run outlives this request, so it gets a
	// context detached from the request's cancellation.
	go s.pipeline.Run(context.WithoutCancel(c.Request().Context()), m.ID)

	s.logger.Info("matter created", zap.String("matter_id", m.ID), zap.String("doc_type", m.DocType))
	return c.JSON(http.StatusAccepted, m)
}

func (s *Server) handleGetMatter(c echo.Context) error {
	m, err := s.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, matter.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "matter not found")
		}
		s.logger.Error("fetching matter", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch matter")
	}
	return c.JSON(http.StatusOK, m)
}

func (s *Server) handleListMatters(c echo.Context) error {
	matters, err := s.store.List(c.Request().Context())
	if err != nil {
		s.logger.Error("listing matters", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list matters")
	}
	return c.JSON(http.StatusOK, matters)
}

// IngestRequest is the request body for POST /api/v1/reference.
type IngestRequest struct {
	Documents []retrieval.ReferenceDocument `json:"documents"`
}

// IngestResponse is the response body for POST /api/v1/reference.
type IngestResponse struct {
	ChunksStored int `json:"chunksStored"`
}

func (s *Server) handleIngestReference(c echo.Context) error {
	if s.ingestor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "reference ingestion not configured")
	}
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Documents) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "documents is required")
	}

	stored, err := s.ingestor.Ingest(c.Request().Context(), req.Documents)
	if err != nil {
		s.logger.Error("ingesting reference documents", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "ingestion failed")
	}
	return c.JSON(http.StatusOK, IngestResponse{ChunksStored: stored})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
