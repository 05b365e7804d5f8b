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

type ledgerService interface {
	Append(ctx context.Context, actor models.Actor, req service.AppendRequest) (*models.LedgerEntry, error)
	List(ctx context.Context, actor models.Actor, req service.LedgerListRequest) ([]models.LedgerEntry, *models.Pagination, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.LedgerEntry, error)
	HardDelete(ctx context.Context, actor models.Actor, id string) error
}

// LedgerHandler exposes point log endpoints.
type LedgerHandler struct {
	ledger ledgerService
}

// NewLedgerHandler constructs LedgerHandler.
func NewLedgerHandler(ledger ledgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// Append godoc
// @Summary Append a ledger entry
// @Tags Ledger
// @Accept json
// @Produce json
// @Param payload body service.AppendRequest true "Ledger entry"
// @Success 201 {object} response.Envelope
// @Router /ledger [post]
func (h *LedgerHandler) Append(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.AppendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	entry, err := h.ledger.Append(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// List godoc
// @Summary List ledger entries
// @Tags Ledger
// @Produce json
// @Param studentId query string false "Student ID"
// @Param kind query string false "Comma separated kinds"
// @Param category query string false "Category"
// @Param academicYear query string false "Academic year"
// @Param from query string false "Created at or after"
// @Param to query string false "Created before"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /ledger [get]
func (h *LedgerHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	req := service.LedgerListRequest{
		StudentID:    strings.TrimSpace(c.Query("studentId")),
		Kinds:        listQuery(c, "kind"),
		Category:     strings.TrimSpace(c.Query("category")),
		AcademicYear: strings.TrimSpace(c.Query("academicYear")),
	}
	var err error
	if req.From, err = timeQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if req.To, err = timeQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}
	req.Page, req.PageSize = pageParams(c, 50)

	entries, pagination, err := h.ledger.List(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// Get godoc
// @Summary Get a ledger entry
// @Tags Ledger
// @Produce json
// @Param id path string true "Ledger entry ID"
// @Success 200 {object} response.Envelope
// @Router /ledger/{id} [get]
func (h *LedgerHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	entry, err := h.ledger.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}

// Delete godoc
// @Summary Hard delete a ledger entry
// @Tags Ledger
// @Param id path string true "Ledger entry ID"
// @Success 204
// @Router /ledger/{id} [delete]
func (h *LedgerHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.ledger.HardDelete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
