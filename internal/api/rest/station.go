package rest

import (
	"errors"
	"net/http"

	"github.com/deepmodeling/coincell-station/internal/batch"
	"github.com/deepmodeling/coincell-station/internal/station"
	"github.com/deepmodeling/coincell-station/internal/types"
	"github.com/gin-gonic/gin"
)

type CommandRequest struct {
	Command string `json:"command" binding:"required,oneof=init stop reset"`
}

type StartBatchRequest struct {
	Bottles        int          `json:"bottles" binding:"required,min=1"`
	UnitsPerBottle int          `json:"units_per_bottle" binding:"required,min=1"`
	Recipe         batch.Recipe `json:"recipe"`
}

// GET /api/v1/station/status
func (s *Server) getStationStatus(c *gin.Context) {
	ctrl := s.lm.StationController()
	status := ctrl.Status()

	c.JSON(http.StatusOK, gin.H{
		"station": status,
		"mode":    ctrl.Station().Mode(c.Request.Context()),
		"alarm":   ctrl.Station().Alarm(c.Request.Context()),
	})
}

// GET /api/v1/station/environment
func (s *Server) getEnvironment(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.Environment().Last())
}

// GET /api/v1/station/positions
func (s *Server) getPositions(c *gin.Context) {
	st := s.lm.StationController().Station()
	c.JSON(http.StatusOK, st.Positions(c.Request.Context()))
}

// POST /api/v1/station/command
func (s *Server) executeCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("STATION_400", "Invalid request body", err.Error()))
		return
	}

	ctrl := s.lm.StationController()
	if err := ctrl.ExecuteCommand(c.Request.Context(), station.Command(req.Command)); err != nil {
		c.JSON(http.StatusConflict, types.NewErrorResponse("STATION_409", "Command rejected", err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "command accepted",
		"command": req.Command,
	})
}

// POST /api/v1/station/batch
func (s *Server) startBatch(c *gin.Context) {
	var req StartBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("BATCH_400", "Invalid request body", err.Error()))
		return
	}

	params := batch.Params{
		Bottles:        req.Bottles,
		UnitsPerBottle: req.UnitsPerBottle,
		Recipe:         req.Recipe,
	}

	ctrl := s.lm.StationController()
	if err := ctrl.StartBatch(params); err != nil {
		if errors.Is(err, batch.ErrCheckpointMismatch) {
			c.JSON(http.StatusConflict, types.NewErrorResponse("BATCH_409",
				"A checkpoint from a different batch exists; delete it or rerun with its parameters", err.Error()))
			return
		}
		c.JSON(http.StatusConflict, types.NewErrorResponse("BATCH_409", "Batch rejected", err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "batch started",
		"total":   params.Total(),
	})
}

// GET /api/v1/station/checkpoint
func (s *Server) getCheckpoint(c *gin.Context) {
	cp, err := s.lm.StationController().Engine().PendingCheckpoint()
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("BATCH_500", "Failed to read checkpoint", err.Error()))
		return
	}
	if cp == nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("BATCH_404", "No pending checkpoint", nil))
		return
	}

	c.JSON(http.StatusOK, cp)
}

// DELETE /api/v1/station/checkpoint
func (s *Server) deleteCheckpoint(c *gin.Context) {
	if err := s.lm.StationController().Engine().ClearCheckpoint(); err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("BATCH_500", "Failed to delete checkpoint", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "checkpoint deleted"})
}
