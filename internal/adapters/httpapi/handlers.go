package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inboxkit/email-enricher/internal/core"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleClassify runs one classify pass over the posted batch.
func (s *Server) handleClassify(c *gin.Context) {
	var req core.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body: " + err.Error()})
		return
	}

	result, err := s.enrichment.ClassifyBatch(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if result.Freshness == core.FreshnessCacheFallback {
		c.Header("X-Enrichment-Freshness", string(result.Freshness))
	}
	c.JSON(http.StatusOK, result.Results)
}

// handleExtractTasks runs one task-extraction pass over the posted batch.
// Extracted tasks are persisted server-side; only the label sets come
// back in the response.
func (s *Server) handleExtractTasks(c *gin.Context) {
	var req core.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body: " + err.Error()})
		return
	}

	result, err := s.extraction.ExtractBatch(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	if result.Freshness == core.FreshnessCacheFallback {
		c.Header("X-Enrichment-Freshness", string(result.Freshness))
	}
	c.JSON(http.StatusOK, result.Results)
}

// handleListTasks returns the user's task list.
func (s *Server) handleListTasks(c *gin.Context) {
	userEmail := c.Query("userEmail")
	if userEmail == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "userEmail query parameter is required"})
		return
	}

	tasks, err := s.tasks.ListByUser(c.Request.Context(), userEmail)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if tasks == nil {
		tasks = []*core.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

// writeError maps pipeline errors onto HTTP statuses: 401 for a missing
// credential, 429 for a provider rate limit, 504 for a provider timeout
// and 500 for everything else, with a human-readable message.
func (s *Server) writeError(c *gin.Context, err error) {
	var status int
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, core.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, core.ErrProviderTimeout):
		status = http.StatusGatewayTimeout
	default:
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	} else {
		s.logger.Warn("Request rejected", zap.Int("status", status), zap.Error(err))
	}

	c.JSON(status, errorResponse{Error: err.Error()})
}
