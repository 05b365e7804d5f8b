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

type questService interface {
	Create(ctx context.Context, actor models.Actor, req service.QuestRequest) (*models.Quest, error)
	Update(ctx context.Context, actor models.Actor, id string, req service.QuestRequest) (*models.Quest, error)
	Get(ctx context.Context, id string) (*models.Quest, error)
	List(ctx context.Context, req service.QuestListRequest) ([]models.Quest, *models.Pagination, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
}

type participationService interface {
	Join(ctx context.Context, actor models.Actor, questID, studentID string) (*models.QuestParticipant, error)
	Submit(ctx context.Context, actor models.Actor, questID, studentID string) (*models.QuestParticipant, error)
	Review(ctx context.Context, actor models.Actor, questID, studentID string, req service.ReviewRequest) (*models.QuestParticipant, error)
	ListParticipants(ctx context.Context, actor models.Actor, questID, status string) ([]models.QuestParticipant, error)
	ListForStudent(ctx context.Context, actor models.Actor, studentID string) ([]models.StudentQuest, error)
}

// participationRequest names the student acting on a quest. Students may omit it.
type participationRequest struct {
	StudentID string `json:"student_id"`
}

// QuestHandler exposes the quest catalog and the participant lifecycle.
type QuestHandler struct {
	quests        questService
	participation participationService
}

// NewQuestHandler constructs QuestHandler.
func NewQuestHandler(quests questService, participation participationService) *QuestHandler {
	return &QuestHandler{quests: quests, participation: participation}
}

// Create godoc
// @Summary Create quest
// @Tags Quests
// @Accept json
// @Produce json
// @Param payload body service.QuestRequest true "Quest payload"
// @Success 201 {object} response.Envelope
// @Router /quests [post]
func (h *QuestHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.QuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	quest, err := h.quests.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, quest)
}

// List godoc
// @Summary List quests
// @Tags Quests
// @Produce json
// @Param active query bool false "Filter by active flag"
// @Param academicYear query string false "Academic year"
// @Param supervisorId query string false "Supervisor"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /quests [get]
func (h *QuestHandler) List(c *gin.Context) {
	active, err := boolQuery(c, "active")
	if err != nil {
		response.Error(c, err)
		return
	}
	req := service.QuestListRequest{
		Active:       active,
		AcademicYear: strings.TrimSpace(c.Query("academicYear")),
		SupervisorID: strings.TrimSpace(c.Query("supervisorId")),
	}
	req.Page, req.PageSize = pageParams(c, 20)
	quests, pagination, err := h.quests.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quests, pagination)
}

// Get godoc
// @Summary Get quest
// @Tags Quests
// @Produce json
// @Param id path string true "Quest ID"
// @Success 200 {object} response.Envelope
// @Router /quests/{id} [get]
func (h *QuestHandler) Get(c *gin.Context) {
	quest, err := h.quests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quest, nil)
}

// Update godoc
// @Summary Update quest
// @Tags Quests
// @Accept json
// @Produce json
// @Param id path string true "Quest ID"
// @Param payload body service.QuestRequest true "Quest payload"
// @Success 200 {object} response.Envelope
// @Router /quests/{id} [put]
func (h *QuestHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.QuestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	quest, err := h.quests.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quest, nil)
}

// Delete godoc
// @Summary Delete quest
// @Tags Quests
// @Param id path string true "Quest ID"
// @Success 204
// @Router /quests/{id} [delete]
func (h *QuestHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.quests.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Join godoc
// @Summary Join a quest
// @Tags Quests
// @Accept json
// @Produce json
// @Param id path string true "Quest ID"
// @Param payload body participationRequest false "Student acting, defaults to the caller"
// @Success 201 {object} response.Envelope
// @Router /quests/{id}/join [post]
func (h *QuestHandler) Join(c *gin.Context) {
	actor, studentID, ok := h.participant(c)
	if !ok {
		return
	}
	row, err := h.participation.Join(c.Request.Context(), actor, c.Param("id"), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, row)
}

// Submit godoc
// @Summary Submit quest work for review
// @Tags Quests
// @Accept json
// @Produce json
// @Param id path string true "Quest ID"
// @Param payload body participationRequest false "Student acting, defaults to the caller"
// @Success 200 {object} response.Envelope
// @Router /quests/{id}/submit [post]
func (h *QuestHandler) Submit(c *gin.Context) {
	actor, studentID, ok := h.participant(c)
	if !ok {
		return
	}
	row, err := h.participation.Submit(c.Request.Context(), actor, c.Param("id"), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// Review godoc
// @Summary Approve or reject a submission
// @Tags Quests
// @Accept json
// @Produce json
// @Param id path string true "Quest ID"
// @Param studentId path string true "Student ID"
// @Param payload body service.ReviewRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /quests/{id}/participants/{studentId}/review [post]
func (h *QuestHandler) Review(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	row, err := h.participation.Review(c.Request.Context(), actor, c.Param("id"), c.Param("studentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row, nil)
}

// Participants godoc
// @Summary List quest participants
// @Tags Quests
// @Produce json
// @Param id path string true "Quest ID"
// @Param status query string false "Participant status"
// @Success 200 {object} response.Envelope
// @Router /quests/{id}/participants [get]
func (h *QuestHandler) Participants(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	status := strings.ToUpper(strings.TrimSpace(c.Query("status")))
	rows, err := h.participation.ListParticipants(c.Request.Context(), actor, c.Param("id"), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// StudentQuests godoc
// @Summary List a student's quests
// @Tags Quests
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/quests [get]
func (h *QuestHandler) StudentQuests(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	rows, err := h.participation.ListForStudent(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

func (h *QuestHandler) participant(c *gin.Context) (models.Actor, string, bool) {
	actor, ok := actorFromContext(c)
	if !ok {
		return models.Actor{}, "", false
	}
	var req participationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, invalidPayload(err))
			return models.Actor{}, "", false
		}
	}
	studentID := strings.TrimSpace(req.StudentID)
	if studentID == "" {
		studentID = actor.StudentID
	}
	return actor, studentID, true
}
