package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	scheduledomain "github.com/billforge/billforge/internal/schedule/domain"
)

func (s *Server) CreateSchedule(c *gin.Context) {
	var req scheduledomain.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", err.Error()))
		return
	}

	sched, err := s.scheduleSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": sched})
}

func (s *Server) UpdateSchedule(c *gin.Context) {
	var req scheduledomain.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", err.Error()))
		return
	}

	sched, err := s.scheduleSvc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sched})
}

func (s *Server) GetSchedule(c *gin.Context) {
	sched, err := s.scheduleSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sched})
}

func (s *Server) ListSchedules(c *gin.Context) {
	req := scheduledomain.ListScheduleRequest{
		PageToken: c.Query("page_token"),
	}
	if raw := strings.TrimSpace(c.Query("is_active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			AbortWithError(c, newValidationError("is_active", "invalid_bool", "is_active must be a boolean"))
			return
		}
		req.IsActive = &active
	}

	schedules, err := s.scheduleSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": schedules})
}

func (s *Server) PauseSchedule(c *gin.Context) {
	sched, err := s.scheduleSvc.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sched})
}

func (s *Server) ResumeSchedule(c *gin.Context) {
	sched, err := s.scheduleSvc.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sched})
}

// RunScheduleBatch triggers one claim-and-materialize pass and returns
// the per-schedule results.
func (s *Server) RunScheduleBatch(c *gin.Context) {
	if s.scheduler == nil {
		AbortWithError(c, ErrInternal)
		return
	}

	result, err := s.scheduler.RunBatch(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
