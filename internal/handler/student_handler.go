package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gradebook-api/internal/dto"
	"github.com/noah-isme/gradebook-api/internal/models"
	"github.com/noah-isme/gradebook-api/internal/service"
	"github.com/noah-isme/gradebook-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, classID string) ([]models.Student, error)
	Get(ctx context.Context, classID, id string) (*models.Student, error)
	Create(ctx context.Context, classID string, req service.StudentRequest) (*models.Student, error)
	Update(ctx context.Context, classID, id string, req service.StudentRequest) (*models.Student, error)
	Delete(ctx context.Context, classID, id string) error
	RecordGrades(ctx context.Context, classID, id string, req service.RecordGradesRequest) (*dto.RecordGradesResponse, error)
}

// StudentHandler exposes roster and grade entry endpoints.
type StudentHandler struct {
	service studentService
}

// NewStudentHandler constructs a student handler.
func NewStudentHandler(svc studentService) *StudentHandler {
	return &StudentHandler{service: svc}
}

// List godoc
// @Summary List students of a class
// @Tags Students
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/students [get]
func (h *StudentHandler) List(c *gin.Context) {
	students, err := h.service.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, students)
}

// Get godoc
// @Summary Get student
// @Tags Students
// @Produce json
// @Param id path string true "Class ID"
// @Param sid path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/students/{sid} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.service.Get(c.Request.Context(), c.Param("id"), c.Param("sid"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, student)
}

// Create godoc
// @Summary Add student to class
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.StudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Router /classes/{id}/students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.StudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.service.Create(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Update godoc
// @Summary Update student profile
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param sid path string true "Student ID"
// @Param payload body service.StudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/students/{sid} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.StudentRequest
	if !bindJSON(c, &req) {
		return
	}
	student, err := h.service.Update(c.Request.Context(), c.Param("id"), c.Param("sid"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, student)
}

// Delete godoc
// @Summary Remove student
// @Tags Students
// @Param id path string true "Class ID"
// @Param sid path string true "Student ID"
// @Success 204
// @Router /classes/{id}/students/{sid} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), c.Param("sid")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RecordGrades godoc
// @Summary Record grades for a student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param sid path string true "Student ID"
// @Param payload body service.RecordGradesRequest true "Grades keyed by assignment ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/students/{sid}/grades [put]
func (h *StudentHandler) RecordGrades(c *gin.Context) {
	var req service.RecordGradesRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.RecordGrades(c.Request.Context(), c.Param("id"), c.Param("sid"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result, map[string]interface{}{"flag_count": len(result.Flags)})
}
