package rest

import (
	"net/http"
	"strconv"

	"github.com/deepmodeling/coincell-station/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GET /api/v1/runs?limit=50
func (s *Server) listRuns(c *gin.Context) {
	store := s.lm.Storage()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("RUN_503", "Run history requires the database", nil))
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("RUN_400", "Invalid limit", raw))
			return
		}
		limit = n
	}

	runs, err := store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("RUN_500", "Failed to list runs", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GET /api/v1/runs/:id
func (s *Server) getRun(c *gin.Context) {
	store := s.lm.Storage()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("RUN_503", "Run history requires the database", nil))
		return
	}

	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("RUN_400", "Invalid run ID", err.Error()))
		return
	}

	run, err := store.GetRun(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("RUN_404", "Run not found", nil))
		return
	}

	c.JSON(http.StatusOK, run)
}

// GET /api/v1/runs/:id/units
func (s *Server) getRunUnits(c *gin.Context) {
	store := s.lm.Storage()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse("RUN_503", "Run history requires the database", nil))
		return
	}

	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("RUN_400", "Invalid run ID", err.Error()))
		return
	}

	units, err := store.ListRunUnits(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("RUN_500", "Failed to list units", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"units": units})
}
