package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/middleware"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type gradebookService interface {
	StudentReport(ctx context.Context, classID, studentID string) (*dto.StudentReport, error)
	ClassReport(ctx context.Context, classID string) (*dto.ClassReport, error)
	ClassStats(ctx context.Context, classID string) (*dto.ClassStatsResponse, bool, error)
	ValidateWeights(weights []models.Number) dto.WeightValidationResponse
}

// ValidateWeightsRequest carries proposed term unit weights. Entries may be
// numbers or numeric strings; anything else counts as 0.
type ValidateWeightsRequest struct {
	Weights []models.Number `json:"weights" binding:"required"`
}

// GradebookHandler exposes computed marks and statistics.
type GradebookHandler struct {
	service gradebookService
}

// NewGradebookHandler constructs a gradebook handler.
func NewGradebookHandler(svc gradebookService) *GradebookHandler {
	return &GradebookHandler{service: svc}
}

// StudentAverages godoc
// @Summary Student marks and band
// @Tags Gradebook
// @Produce json
// @Param id path string true "Class ID"
// @Param sid path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/students/{sid}/averages [get]
func (h *GradebookHandler) StudentAverages(c *gin.Context) {
	report, err := h.service.StudentReport(c.Request.Context(), c.Param("id"), c.Param("sid"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// ClassAverages godoc
// @Summary Marks of every student in a class
// @Tags Gradebook
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/averages [get]
func (h *GradebookHandler) ClassAverages(c *gin.Context) {
	report, err := h.service.ClassReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// ClassStats godoc
// @Summary Grade band distribution and category averages
// @Tags Gradebook
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/stats [get]
func (h *GradebookHandler) ClassStats(c *gin.Context) {
	start := time.Now()
	stats, hit, err := h.service.ClassStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.OK(c, stats, middleware.ExtractMeta(c, start))
}

// ValidateWeights godoc
// @Summary Check that term unit weights total 100
// @Tags Gradebook
// @Accept json
// @Produce json
// @Param payload body ValidateWeightsRequest true "Weights"
// @Success 200 {object} response.Envelope
// @Router /weights/validate [post]
func (h *GradebookHandler) ValidateWeights(c *gin.Context) {
	var req ValidateWeightsRequest
	if !bindJSON(c, &req) {
		return
	}
	response.OK(c, h.service.ValidateWeights(req.Weights))
}
