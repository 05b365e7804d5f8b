package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/internal/service"
	"github.com/noah-isme/sma-merit-api/pkg/response"
)

type teacherReportService interface {
	Create(ctx context.Context, actor models.Actor, req service.CreateTeacherReportRequest) (*models.TeacherReport, error)
	List(ctx context.Context, actor models.Actor, req service.TeacherReportListRequest) ([]models.TeacherReport, *models.Pagination, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.TeacherReport, error)
	UpdateStatus(ctx context.Context, actor models.Actor, id, status string) (*models.TeacherReport, error)
}

type reportStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// TeacherReportHandler exposes teacher observation reports.
type TeacherReportHandler struct {
	reports teacherReportService
}

// NewTeacherReportHandler constructs TeacherReportHandler.
func NewTeacherReportHandler(reports teacherReportService) *TeacherReportHandler {
	return &TeacherReportHandler{reports: reports}
}

// Create godoc
// @Summary File a teacher report
// @Tags TeacherReports
// @Accept json
// @Produce json
// @Param payload body service.CreateTeacherReportRequest true "Report payload"
// @Success 201 {object} response.Envelope
// @Router /teacher-reports [post]
func (h *TeacherReportHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.CreateTeacherReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	report, err := h.reports.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// List godoc
// @Summary List teacher reports
// @Tags TeacherReports
// @Produce json
// @Param teacherId query string false "Author"
// @Param studentId query string false "Student ID"
// @Param status query string false "Report status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teacher-reports [get]
func (h *TeacherReportHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	req := service.TeacherReportListRequest{
		TeacherID: strings.TrimSpace(c.Query("teacherId")),
		StudentID: strings.TrimSpace(c.Query("studentId")),
		Status:    strings.ToUpper(strings.TrimSpace(c.Query("status"))),
	}
	req.Page, req.PageSize = pageParams(c, 20)
	reports, pagination, err := h.reports.List(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, pagination)
}

// Get godoc
// @Summary Get teacher report
// @Tags TeacherReports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Router /teacher-reports/{id} [get]
func (h *TeacherReportHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	report, err := h.reports.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// UpdateStatus godoc
// @Summary Advance a teacher report status
// @Tags TeacherReports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body reportStatusRequest true "Next status"
// @Success 200 {object} response.Envelope
// @Router /teacher-reports/{id} [patch]
func (h *TeacherReportHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req reportStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	report, err := h.reports.UpdateStatus(c.Request.Context(), actor, c.Param("id"), strings.ToUpper(strings.TrimSpace(req.Status)))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
