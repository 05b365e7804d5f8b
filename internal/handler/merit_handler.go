package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/pkg/response"
)

type aggregationService interface {
	StudentSummary(ctx context.Context, actor models.Actor, studentID, academicYear string) (*models.StudentSummary, bool, error)
	Leaderboard(ctx context.Context, scope models.LeaderboardScope) ([]models.LeaderboardEntry, bool, error)
	ClassLeaderboard(ctx context.Context, actor models.Actor, classID, academicYear string) ([]models.LeaderboardEntry, bool, error)
	Dashboard(ctx context.Context, academicYear string) (*models.DashboardSummary, bool, error)
	LeaderboardCSV(ctx context.Context, scope models.LeaderboardScope) ([]byte, error)
	SummaryPDF(ctx context.Context, actor models.Actor, studentID, academicYear string) ([]byte, error)
}

// MeritHandler serves the summary, leaderboard and dashboard read models.
type MeritHandler struct {
	aggregates aggregationService
}

// NewMeritHandler constructs MeritHandler.
func NewMeritHandler(aggregates aggregationService) *MeritHandler {
	return &MeritHandler{aggregates: aggregates}
}

// Summary godoc
// @Summary Student merit summary
// @Tags Merit
// @Produce json
// @Param id path string true "Student ID"
// @Param academicYear query string false "Academic year"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/summary [get]
func (h *MeritHandler) Summary(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	year := strings.TrimSpace(c.Query("academicYear"))
	summary, hit, err := h.aggregates.StudentSummary(c.Request.Context(), actor, c.Param("id"), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, summary, hit, year)
}

// SummaryPDF godoc
// @Summary Download a student summary as PDF
// @Tags Merit
// @Produce application/pdf
// @Param id path string true "Student ID"
// @Param academicYear query string false "Academic year"
// @Success 200 {file} file
// @Router /students/{id}/summary.pdf [get]
func (h *MeritHandler) SummaryPDF(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	studentID := c.Param("id")
	body, err := h.aggregates.SummaryPDF(c.Request.Context(), actor, studentID, strings.TrimSpace(c.Query("academicYear")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, fmt.Sprintf("merit-summary-%s.pdf", studentID), "application/pdf", body)
}

// Leaderboard godoc
// @Summary School leaderboard
// @Tags Merit
// @Produce json
// @Param academicYear query string false "Academic year"
// @Param classId query string false "Restrict to one class"
// @Success 200 {object} response.Envelope
// @Router /leaderboard [get]
func (h *MeritHandler) Leaderboard(c *gin.Context) {
	scope := scopeFromQuery(c)
	board, hit, err := h.aggregates.Leaderboard(c.Request.Context(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, board, hit, scope.AcademicYear)
}

// LeaderboardCSV godoc
// @Summary Download the leaderboard as CSV
// @Tags Merit
// @Produce text/csv
// @Param academicYear query string false "Academic year"
// @Param classId query string false "Restrict to one class"
// @Success 200 {file} file
// @Router /leaderboard.csv [get]
func (h *MeritHandler) LeaderboardCSV(c *gin.Context) {
	body, err := h.aggregates.LeaderboardCSV(c.Request.Context(), scopeFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, "leaderboard.csv", "text/csv", body)
}

// ClassLeaderboard godoc
// @Summary Class leaderboard including the requester's standing
// @Tags Merit
// @Produce json
// @Param classId query string false "Class ID, defaults to the caller's class"
// @Param academicYear query string false "Academic year"
// @Success 200 {object} response.Envelope
// @Router /leaderboard/class [get]
func (h *MeritHandler) ClassLeaderboard(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	year := strings.TrimSpace(c.Query("academicYear"))
	board, hit, err := h.aggregates.ClassLeaderboard(c.Request.Context(), actor, strings.TrimSpace(c.Query("classId")), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, board, hit, year)
}

// Dashboard godoc
// @Summary School-wide merit dashboard
// @Tags Merit
// @Produce json
// @Param academicYear query string false "Academic year"
// @Success 200 {object} response.Envelope
// @Router /dashboard [get]
func (h *MeritHandler) Dashboard(c *gin.Context) {
	year := strings.TrimSpace(c.Query("academicYear"))
	summary, hit, err := h.aggregates.Dashboard(c.Request.Context(), year)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, summary, hit, year)
}

func scopeFromQuery(c *gin.Context) models.LeaderboardScope {
	return models.LeaderboardScope{
		AcademicYear: strings.TrimSpace(c.Query("academicYear")),
		ClassID:      strings.TrimSpace(c.Query("classId")),
	}
}
