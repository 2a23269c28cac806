package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inboxkit/email-enricher/internal/config"
	"github.com/inboxkit/email-enricher/internal/core"
)

// Server is the HTTP surface of the enrichment pipeline. Handlers are
// stateless; the durable store is the only state shared between requests.
type Server struct {
	srv             *http.Server
	logger          *zap.Logger
	enrichment      *core.EnrichmentService
	extraction      *core.TaskExtractionService
	tasks           core.TaskStore
	shutdownTimeout time.Duration
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.ServerConfig,
	enrichment *core.EnrichmentService,
	extraction *core.TaskExtractionService,
	tasks core.TaskStore,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		logger:          logger,
		enrichment:      enrichment,
		extraction:      extraction,
		tasks:           tasks,
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealth)
	v1 := router.Group("/v1")
	{
		v1.POST("/enrich/classify", s.handleClassify)
		v1.POST("/enrich/tasks", s.handleExtractTasks)
		v1.GET("/tasks", s.handleListTasks)
	}

	s.srv = &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: router,
	}

	return s
}

// Start starts serving requests in the background
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.srv.Addr))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
