package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

type questStore interface {
	Create(ctx context.Context, quest *models.Quest) error
	Update(ctx context.Context, quest *models.Quest) error
	GetByID(ctx context.Context, id string) (*models.Quest, error)
	List(ctx context.Context, filter models.QuestFilter) ([]models.Quest, int, error)
	Delete(ctx context.Context, id string) error
}

// QuestRequest is the create/update payload for quests.
type QuestRequest struct {
	Title          string     `json:"title" validate:"required,max=200"`
	Description    string     `json:"description" validate:"max=2000"`
	Points         int        `json:"points" validate:"gte=0"`
	RequiredPoints int        `json:"required_points" validate:"gte=0"`
	BadgeTier      *string    `json:"badge_tier" validate:"omitempty,badge_tier"`
	SlotsAvailable *int       `json:"slots_available" validate:"omitempty,gte=1"`
	ExpiresAt      *time.Time `json:"expires_at"`
	AcademicYear   *string    `json:"academic_year" validate:"omitempty,max=20"`
	IsActive       *bool      `json:"is_active"`
	SupervisorID   *string    `json:"supervisor_id"`
}

// QuestListRequest filters quest listings.
type QuestListRequest struct {
	Active       *bool
	AcademicYear string
	SupervisorID string
	Page         int
	PageSize     int
}

// QuestService manages the quest catalog.
type QuestService struct {
	repo      questStore
	authz     *Authorizer
	audit     auditTrail
	validator *validator.Validate
	logger    *zap.Logger
}

// NewQuestService constructs a QuestService.
func NewQuestService(repo questStore, authz *Authorizer, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *QuestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerMeritValidations(validate)
	return &QuestService{repo: repo, authz: authz, audit: newAuditTrail(audit, logger, "quest-service"), validator: validate, logger: logger}
}

// Create adds a quest supervised by the caller unless another supervisor is named.
func (s *QuestService) Create(ctx context.Context, actor models.Actor, req QuestRequest) (*models.Quest, error) {
	if err := s.authz.Authorize(actor.Role, CapQuestManage); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quest payload")
	}
	quest := &models.Quest{IsActive: true, SupervisorID: actor.UserID}
	applyQuestRequest(quest, req)
	if err := s.repo.Create(ctx, quest); err != nil {
		return nil, appErrors.Internal(err, "failed to create quest")
	}
	s.audit.emit(ctx, actor, models.AuditActionQuestCreate, "quest", quest.ID, nil, quest)
	return quest, nil
}

// Update replaces a quest's editable fields.
func (s *QuestService) Update(ctx context.Context, actor models.Actor, id string, req QuestRequest) (*models.Quest, error) {
	if err := s.authz.Authorize(actor.Role, CapQuestManage); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quest payload")
	}
	quest, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureOwner(actor, quest); err != nil {
		return nil, err
	}
	before := *quest
	applyQuestRequest(quest, req)
	if err := s.repo.Update(ctx, quest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quest not found")
		}
		return nil, appErrors.Internal(err, "failed to update quest")
	}
	s.audit.emit(ctx, actor, models.AuditActionQuestUpdate, "quest", quest.ID, before, quest)
	return quest, nil
}

// Get returns a quest by id.
func (s *QuestService) Get(ctx context.Context, id string) (*models.Quest, error) {
	quest, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quest not found")
		}
		return nil, appErrors.Internal(err, "failed to load quest")
	}
	return quest, nil
}

// List returns quests with pagination.
func (s *QuestService) List(ctx context.Context, req QuestListRequest) ([]models.Quest, *models.Pagination, error) {
	filter := models.QuestFilter{
		Active:       req.Active,
		AcademicYear: req.AcademicYear,
		SupervisorID: req.SupervisorID,
		Page:         req.Page,
		PageSize:     req.PageSize,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	quests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list quests")
	}
	return quests, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Delete removes a quest together with its participants.
func (s *QuestService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if err := s.authz.Authorize(actor.Role, CapQuestManage); err != nil {
		return err
	}
	quest, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.ensureOwner(actor, quest); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "quest not found")
		}
		return appErrors.Internal(err, "failed to delete quest")
	}
	s.audit.emit(ctx, actor, models.AuditActionQuestDelete, "quest", id, quest, nil)
	return nil
}

func (s *QuestService) ensureOwner(actor models.Actor, quest *models.Quest) error {
	if quest.SupervisorID == actor.UserID || s.authz.Can(actor.Role, CapQuestReviewAny) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "only the supervisor may change this quest")
}

func applyQuestRequest(quest *models.Quest, req QuestRequest) {
	quest.Title = strings.TrimSpace(req.Title)
	quest.Description = strings.TrimSpace(req.Description)
	quest.Points = req.Points
	quest.RequiredPoints = req.RequiredPoints
	quest.BadgeTier = nil
	if req.BadgeTier != nil {
		tier := models.BadgeTier(*req.BadgeTier)
		quest.BadgeTier = &tier
	}
	quest.SlotsAvailable = req.SlotsAvailable
	quest.ExpiresAt = req.ExpiresAt
	quest.AcademicYear = normalizeOptional(req.AcademicYear)
	if req.IsActive != nil {
		quest.IsActive = *req.IsActive
	}
	if supervisor := normalizeOptional(req.SupervisorID); supervisor != nil {
		quest.SupervisorID = *supervisor
	}
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
