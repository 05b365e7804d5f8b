package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/pkg/response"
)

type bulkActionService interface {
	Apply(ctx context.Context, actor models.Actor, classID string, action models.BulkAction) (*models.BulkActionResult, error)
	ListPresets(ctx context.Context) ([]models.BehaviorPreset, error)
}

// BulkActionHandler applies class-wide ledger actions.
type BulkActionHandler struct {
	bulk bulkActionService
}

// NewBulkActionHandler constructs BulkActionHandler.
func NewBulkActionHandler(bulk bulkActionService) *BulkActionHandler {
	return &BulkActionHandler{bulk: bulk}
}

// Apply godoc
// @Summary Apply a ledger action to every active student of a class
// @Tags Ledger
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body models.BulkAction true "Points form or preset form"
// @Success 201 {object} response.Envelope
// @Router /classes/{classId}/bulk-actions [post]
func (h *BulkActionHandler) Apply(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var action models.BulkAction
	if err := c.ShouldBindJSON(&action); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	result, err := h.bulk.Apply(c.Request.Context(), actor, c.Param("classId"), action)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Presets godoc
// @Summary List behavior presets
// @Tags Ledger
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /presets [get]
func (h *BulkActionHandler) Presets(c *gin.Context) {
	presets, err := h.bulk.ListPresets(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, presets, nil)
}
