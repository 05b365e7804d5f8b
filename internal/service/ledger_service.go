package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/internal/repository"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

type ledgerStore interface {
	Create(ctx context.Context, entry *models.LedgerEntry) error
	BulkCreate(ctx context.Context, entries []*models.LedgerEntry) error
	GetByID(ctx context.Context, id string) (*models.LedgerEntry, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, int, error)
	SumPoints(ctx context.Context, studentID, academicYear string) (int, int, error)
	CategoryTotals(ctx context.Context, studentID, academicYear string) ([]models.CategoryTotal, error)
}

// DefaultMaxPoints is the upper bound of a displayed score.
const DefaultMaxPoints = 100

// ClampScore bounds a raw ledger sum to [0, max].
func ClampScore(raw, max int) int {
	if raw < 0 {
		return 0
	}
	if raw > max {
		return max
	}
	return raw
}

// ScorePercentage expresses a clamped score as a share of max.
func ScorePercentage(total, max int) float64 {
	if max <= 0 {
		return 0
	}
	return float64(total) / float64(max) * 100
}

func registerMeritValidations(v *validator.Validate) {
	v.RegisterValidation("ledger_kind", func(fl validator.FieldLevel) bool {
		return models.LedgerKind(fl.Field().String()).Valid()
	})
	v.RegisterValidation("badge_tier", func(fl validator.FieldLevel) bool {
		return models.BadgeTier(fl.Field().String()).Valid()
	})
}

// BadgeInput describes an optional badge attached to a ledger entry.
type BadgeInput struct {
	Tier  string `json:"tier" validate:"required,badge_tier"`
	Title string `json:"title" validate:"omitempty,max=120"`
}

// AppendRequest is the payload for a single ledger entry.
type AppendRequest struct {
	StudentID    string      `json:"student_id" validate:"required"`
	Points       *int        `json:"points" validate:"required"`
	Kind         string      `json:"kind" validate:"required,ledger_kind"`
	Category     string      `json:"category" validate:"required,max=100"`
	Description  string      `json:"description" validate:"max=1000"`
	Badge        *BadgeInput `json:"badge" validate:"omitempty"`
	AcademicYear string      `json:"academic_year" validate:"omitempty,max=20"`
}

// LedgerListRequest describes ledger listing filters.
type LedgerListRequest struct {
	StudentID    string
	Kinds        []string
	Category     string
	AcademicYear string
	From         *time.Time
	To           *time.Time
	Page         int
	PageSize     int
}

// LedgerServiceConfig tunes ledger scoring.
type LedgerServiceConfig struct {
	MaxPoints    int
	AcademicYear string
}

// LedgerService owns the append-only point ledger.
type LedgerService struct {
	repo      ledgerStore
	authz     *Authorizer
	cache     *CacheService
	metrics   *MetricsService
	audit     auditTrail
	validator *validator.Validate
	logger    *zap.Logger
	cfg       LedgerServiceConfig
}

// LedgerServiceParams groups constructor dependencies.
type LedgerServiceParams struct {
	Repo       ledgerStore
	Authorizer *Authorizer
	Cache      *CacheService
	Metrics    *MetricsService
	Audit      auditLogger
	Validator  *validator.Validate
	Logger     *zap.Logger
	Config     LedgerServiceConfig
}

// NewLedgerService constructs a LedgerService.
func NewLedgerService(params LedgerServiceParams) *LedgerService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := params.Config
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = DefaultMaxPoints
	}
	registerMeritValidations(validate)
	return &LedgerService{
		repo:      params.Repo,
		authz:     params.Authorizer,
		cache:     params.Cache,
		metrics:   params.Metrics,
		audit:     newAuditTrail(params.Audit, logger, "ledger-service"),
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// MaxPoints returns the configured score ceiling.
func (s *LedgerService) MaxPoints() int {
	return s.cfg.MaxPoints
}

// Append validates and persists one entry.
func (s *LedgerService) Append(ctx context.Context, actor models.Actor, req AppendRequest) (*models.LedgerEntry, error) {
	entry, err := s.buildEntry(actor, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrUnknownStudent) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %s not found", entry.StudentID))
		}
		return nil, appErrors.Internal(err, "failed to append ledger entry")
	}
	s.afterWrite(ctx, entry)
	s.audit.emit(ctx, actor, models.AuditActionLedgerAppend, "point_log", entry.ID, nil, entry)
	return entry, nil
}

// BulkAppend validates every request before writing all of them in one transaction.
func (s *LedgerService) BulkAppend(ctx context.Context, actor models.Actor, reqs []AppendRequest) ([]*models.LedgerEntry, error) {
	if len(reqs) == 0 {
		return []*models.LedgerEntry{}, nil
	}
	entries := make([]*models.LedgerEntry, 0, len(reqs))
	for i, req := range reqs {
		entry, err := s.buildEntry(actor, req)
		if err != nil {
			appErr := appErrors.FromError(err)
			return nil, appErrors.Wrap(appErr.Err, appErr.Code, appErr.Status, fmt.Sprintf("entry %d: %s", i, appErr.Message))
		}
		entries = append(entries, entry)
	}
	if err := s.repo.BulkCreate(ctx, entries); err != nil {
		if errors.Is(err, repository.ErrUnknownStudent) {
			return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "ledger entries reference an unknown student")
		}
		return nil, appErrors.Internal(err, "failed to append ledger entries")
	}
	s.afterWrite(ctx, entries...)
	s.audit.emit(ctx, actor, models.AuditActionLedgerBulkAppend, "point_log", entries[0].ID, nil, map[string]interface{}{"count": len(entries)})
	return entries, nil
}

func (s *LedgerService) buildEntry(actor models.Actor, req AppendRequest) (*models.LedgerEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid ledger entry")
	}
	kind := models.LedgerKind(req.Kind)
	if !kind.AcceptsPoints(*req.Points) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("points %d not allowed for kind %s", *req.Points, kind))
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "category is required")
	}
	entry := &models.LedgerEntry{
		StudentID:    strings.TrimSpace(req.StudentID),
		Points:       *req.Points,
		Kind:         kind,
		Category:     category,
		Description:  strings.TrimSpace(req.Description),
		AddedBy:      actor.UserID,
		AcademicYear: strings.TrimSpace(req.AcademicYear),
	}
	if entry.AcademicYear == "" {
		entry.AcademicYear = s.cfg.AcademicYear
	}
	if req.Badge != nil {
		entry.Badge = &models.Badge{Tier: models.BadgeTier(req.Badge.Tier), Title: strings.TrimSpace(req.Badge.Title)}
	}
	return entry, nil
}

func (s *LedgerService) afterWrite(ctx context.Context, entries ...*models.LedgerEntry) {
	s.metrics.RecordLedgerEntries(entries...)
	invalidateLedgerViews(ctx, s.cache, s.logger, entries...)
}

// TotalFor returns the student's clamped score.
func (s *LedgerService) TotalFor(ctx context.Context, studentID, academicYear string) (int, error) {
	if studentID == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	raw, _, err := s.repo.SumPoints(ctx, studentID, academicYear)
	if err != nil {
		return 0, appErrors.Internal(err, "failed to sum ledger")
	}
	return ClampScore(raw, s.cfg.MaxPoints), nil
}

// ByCategory returns signed sums per category.
func (s *LedgerService) ByCategory(ctx context.Context, studentID, academicYear string) (map[string]int, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	totals, err := s.repo.CategoryTotals(ctx, studentID, academicYear)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load category totals")
	}
	result := make(map[string]int, len(totals))
	for _, t := range totals {
		result[t.Category] += t.Points
	}
	return result, nil
}

// List returns ledger entries newest first. Students only ever see their own rows.
func (s *LedgerService) List(ctx context.Context, actor models.Actor, req LedgerListRequest) ([]models.LedgerEntry, *models.Pagination, error) {
	filter := models.LedgerFilter{
		StudentID:    req.StudentID,
		Category:     req.Category,
		AcademicYear: req.AcademicYear,
		From:         req.From,
		To:           req.To,
		Page:         req.Page,
		PageSize:     req.PageSize,
	}
	if !s.authz.Can(actor.Role, CapLedgerViewAny) {
		if actor.StudentID == "" {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list ledger")
		}
		filter.StudentID = actor.StudentID
	}
	for _, k := range req.Kinds {
		kind := models.LedgerKind(strings.ToUpper(strings.TrimSpace(k)))
		if !kind.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown kind %q", k))
		}
		filter.Kinds = append(filter.Kinds, kind)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list ledger")
	}
	return entries, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one entry.
func (s *LedgerService) Get(ctx context.Context, actor models.Actor, id string) (*models.LedgerEntry, error) {
	entry, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.ensureStudentAccess(actor, entry.StudentID, CapLedgerViewAny); err != nil {
		return nil, err
	}
	return entry, nil
}

// HardDelete removes an entry outside the normal flow. Callers must hold ledger.hard_delete.
func (s *LedgerService) HardDelete(ctx context.Context, actor models.Actor, id string) error {
	if err := s.authz.Authorize(actor.Role, CapLedgerHardDelete); err != nil {
		return err
	}
	entry, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "ledger entry not found")
		}
		return appErrors.Internal(err, "failed to delete ledger entry")
	}
	invalidateLedgerViews(ctx, s.cache, s.logger, entry)
	s.logger.Warn("ledger entry hard deleted", zap.String("id", id), zap.String("student_id", entry.StudentID), zap.String("actor", actor.UserID))
	s.audit.emit(ctx, actor, models.AuditActionLedgerHardDelete, "point_log", id, entry, nil)
	return nil
}

func (s *LedgerService) load(ctx context.Context, id string) (*models.LedgerEntry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ledger entry not found")
		}
		return nil, appErrors.Internal(err, "failed to load ledger entry")
	}
	return entry, nil
}
