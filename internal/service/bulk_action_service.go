package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-merit-api/internal/models"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

type rosterReader interface {
	ListActiveByClass(ctx context.Context, classID string) ([]models.Student, error)
}

type presetStore interface {
	FindByID(ctx context.Context, id string) (*models.BehaviorPreset, error)
	List(ctx context.Context) ([]models.BehaviorPreset, error)
}

type ledgerBulkAppender interface {
	BulkAppend(ctx context.Context, actor models.Actor, reqs []AppendRequest) ([]*models.LedgerEntry, error)
}

// BulkActionService applies one point action to a whole class.
type BulkActionService struct {
	roster  rosterReader
	presets presetStore
	ledger  ledgerBulkAppender
	authz   *Authorizer
	logger  *zap.Logger
}

// NewBulkActionService constructs the dispatcher.
func NewBulkActionService(roster rosterReader, presets presetStore, ledger ledgerBulkAppender, authz *Authorizer, logger *zap.Logger) *BulkActionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkActionService{roster: roster, presets: presets, ledger: ledger, authz: authz, logger: logger}
}

// Apply writes one ledger entry per non-archived student of the class, all or nothing.
func (s *BulkActionService) Apply(ctx context.Context, actor models.Actor, classID string, action models.BulkAction) (*models.BulkActionResult, error) {
	if err := s.authz.Authorize(actor.Role, CapLedgerBulkApply); err != nil {
		return nil, err
	}
	if strings.TrimSpace(classID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classId is required")
	}
	if err := action.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	template, err := s.template(ctx, action)
	if err != nil {
		return nil, err
	}

	students, err := s.roster.ListActiveByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load class roster")
	}
	result := &models.BulkActionResult{ClassID: classID}
	if len(students) == 0 {
		return result, nil
	}

	reqs := make([]AppendRequest, len(students))
	for i, student := range students {
		req := template
		req.StudentID = student.ID
		reqs[i] = req
	}
	entries, err := s.ledger.BulkAppend(ctx, actor, reqs)
	if err != nil {
		return nil, err
	}
	result.Created = len(entries)
	s.logger.Info("bulk action applied", zap.String("class_id", classID), zap.Int("created", result.Created), zap.String("actor", actor.UserID))
	return result, nil
}

func (s *BulkActionService) template(ctx context.Context, action models.BulkAction) (AppendRequest, error) {
	req := AppendRequest{AcademicYear: strings.TrimSpace(action.AcademicYear)}
	if !action.UsesPreset() {
		points := *action.Points
		req.Points = &points
		req.Kind = string(models.LedgerKindReward)
		if points < 0 {
			req.Kind = string(models.LedgerKindViolation)
		}
		req.Category = *action.Category
		if action.Description != nil {
			req.Description = *action.Description
		}
		return req, nil
	}

	preset, err := s.presets.FindByID(ctx, *action.PresetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return req, appErrors.Clone(appErrors.ErrNotFound, "preset not found")
		}
		return req, appErrors.Internal(err, "failed to load preset")
	}
	kind, ok := preset.Type.LedgerKind()
	if !ok {
		return req, appErrors.Clone(appErrors.ErrValidation, "preset has an unknown type")
	}
	points := preset.Points
	if points < 0 {
		points = -points
	}
	if kind == models.LedgerKindViolation {
		points = -points
	}
	req.Points = &points
	req.Kind = string(kind)
	req.Category = preset.Category
	req.Description = preset.Description
	if req.Description == "" {
		req.Description = preset.Name
	}
	if preset.BadgeTier != nil {
		req.Badge = &BadgeInput{Tier: string(*preset.BadgeTier), Title: preset.Name}
	}
	return req, nil
}

// ListPresets returns every configured preset.
func (s *BulkActionService) ListPresets(ctx context.Context) ([]models.BehaviorPreset, error) {
	presets, err := s.presets.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list presets")
	}
	return presets, nil
}
