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

type appealService interface {
	Create(ctx context.Context, actor models.Actor, req service.CreateAppealRequest) (*models.Appeal, error)
	Update(ctx context.Context, actor models.Actor, id string, req service.UpdateAppealRequest) (*models.Appeal, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Appeal, error)
	List(ctx context.Context, actor models.Actor, req service.AppealListRequest) ([]models.Appeal, *models.Pagination, error)
}

// AppealHandler exposes ledger appeal endpoints.
type AppealHandler struct {
	appeals appealService
}

// NewAppealHandler constructs AppealHandler.
func NewAppealHandler(appeals appealService) *AppealHandler {
	return &AppealHandler{appeals: appeals}
}

// Create godoc
// @Summary File an appeal against a ledger entry
// @Tags Appeals
// @Accept json
// @Produce json
// @Param payload body service.CreateAppealRequest true "Appeal payload"
// @Success 201 {object} response.Envelope
// @Router /appeals [post]
func (h *AppealHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.CreateAppealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if req.StudentID == "" {
		req.StudentID = actor.StudentID
	}
	appeal, err := h.appeals.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, appeal)
}

// List godoc
// @Summary List appeals
// @Tags Appeals
// @Produce json
// @Param studentId query string false "Student ID"
// @Param status query string false "Appeal status"
// @Param academicYear query string false "Academic year"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /appeals [get]
func (h *AppealHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	req := service.AppealListRequest{
		StudentID:    strings.TrimSpace(c.Query("studentId")),
		Status:       strings.ToUpper(strings.TrimSpace(c.Query("status"))),
		AcademicYear: strings.TrimSpace(c.Query("academicYear")),
	}
	req.Page, req.PageSize = pageParams(c, 20)
	appeals, pagination, err := h.appeals.List(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appeals, pagination)
}

// Get godoc
// @Summary Get appeal
// @Tags Appeals
// @Produce json
// @Param id path string true "Appeal ID"
// @Success 200 {object} response.Envelope
// @Router /appeals/{id} [get]
func (h *AppealHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	appeal, err := h.appeals.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appeal, nil)
}

// Update godoc
// @Summary Review an appeal
// @Tags Appeals
// @Accept json
// @Produce json
// @Param id path string true "Appeal ID"
// @Param payload body service.UpdateAppealRequest true "Status and notes"
// @Success 200 {object} response.Envelope
// @Router /appeals/{id} [patch]
func (h *AppealHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.UpdateAppealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	appeal, err := h.appeals.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appeal, nil)
}
