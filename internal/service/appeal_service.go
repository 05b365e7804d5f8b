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

type appealStore interface {
	Create(ctx context.Context, appeal *models.Appeal) error
	GetByID(ctx context.Context, id string) (*models.Appeal, error)
	List(ctx context.Context, filter models.AppealFilter) ([]models.Appeal, int, error)
	Decide(ctx context.Context, params repository.DecideParams, reversal *models.LedgerEntry) error
	UpdateNotes(ctx context.Context, id string, notes string) error
}

type ledgerEntryReader interface {
	GetByID(ctx context.Context, id string) (*models.LedgerEntry, error)
}

// CreateAppealRequest is the payload students use to dispute a ledger entry.
type CreateAppealRequest struct {
	PointLogID   string `json:"point_log_id" validate:"required"`
	StudentID    string `json:"student_id"`
	Reason       string `json:"reason" validate:"required,max=2000"`
	AcademicYear string `json:"academic_year" validate:"omitempty,max=20"`
}

// UpdateAppealRequest changes the status and/or the review notes of an appeal.
type UpdateAppealRequest struct {
	Status      *string `json:"status"`
	ReviewNotes *string `json:"review_notes" validate:"omitempty,max=2000"`
}

// AppealListRequest filters appeal listings.
type AppealListRequest struct {
	StudentID    string
	Status       string
	AcademicYear string
	Page         int
	PageSize     int
}

// AppealServiceParams groups constructor dependencies.
type AppealServiceParams struct {
	Appeals    appealStore
	Ledger     ledgerEntryReader
	Authorizer *Authorizer
	Cache      *CacheService
	Metrics    *MetricsService
	Audit      auditLogger
	Validator  *validator.Validate
	Logger     *zap.Logger
}

// AppealService runs disputes against ledger entries through a single terminal decision.
type AppealService struct {
	appeals   appealStore
	ledger    ledgerEntryReader
	authz     *Authorizer
	cache     *CacheService
	metrics   *MetricsService
	audit     auditTrail
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAppealService constructs an AppealService.
func NewAppealService(params AppealServiceParams) *AppealService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppealService{
		appeals:   params.Appeals,
		ledger:    params.Ledger,
		authz:     params.Authorizer,
		cache:     params.Cache,
		metrics:   params.Metrics,
		audit:     newAuditTrail(params.Audit, logger, "appeal-service"),
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Create files a PENDING appeal against a ledger entry owned by the student.
func (s *AppealService) Create(ctx context.Context, actor models.Actor, req CreateAppealRequest) (*models.Appeal, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appeal payload")
	}
	studentID := strings.TrimSpace(req.StudentID)
	if s.authz.actsAsSelf(actor) {
		studentID = actor.StudentID
	} else if err := s.authz.Authorize(actor.Role, CapAppealReview); err != nil {
		return nil, err
	}
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}

	entry, err := s.ledger.GetByID(ctx, req.PointLogID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "ledger entry not found")
		}
		return nil, appErrors.Internal(err, "failed to load ledger entry")
	}
	if entry.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "ledger entry not found")
	}

	appeal := &models.Appeal{
		PointLogID:   entry.ID,
		StudentID:    studentID,
		Reason:       strings.TrimSpace(req.Reason),
		AcademicYear: strings.TrimSpace(req.AcademicYear),
		SubmittedAt:  s.now().UTC(),
	}
	if appeal.AcademicYear == "" {
		appeal.AcademicYear = entry.AcademicYear
	}
	if err := s.appeals.Create(ctx, appeal); err != nil {
		if errors.Is(err, repository.ErrDuplicateAppeal) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "ledger entry already has an open or approved appeal")
		}
		return nil, appErrors.Internal(err, "failed to create appeal")
	}
	s.audit.emit(ctx, actor, models.AuditActionAppealCreate, "point_appeal", appeal.ID, nil, appeal)
	return appeal, nil
}

// Update records a reviewer decision and/or notes. Terminal appeals reject further status
// changes. Approval appends a reversing ledger entry in the same transaction.
func (s *AppealService) Update(ctx context.Context, actor models.Actor, id string, req UpdateAppealRequest) (*models.Appeal, error) {
	if err := s.authz.Authorize(actor.Role, CapAppealReview); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appeal update")
	}
	if req.Status == nil && req.ReviewNotes == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status or review_notes is required")
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var next models.AppealStatus
	if req.Status != nil {
		next = models.AppealStatus(strings.ToUpper(strings.TrimSpace(*req.Status)))
		if !next.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", *req.Status))
		}
		if current.Status.Terminal() {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("appeal already %s", current.Status))
		}
	}

	if next == "" || next == models.AppealPending {
		if req.ReviewNotes == nil {
			return current, nil
		}
		if err := s.appeals.UpdateNotes(ctx, id, strings.TrimSpace(*req.ReviewNotes)); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "appeal not found")
			}
			return nil, appErrors.Internal(err, "failed to update appeal notes")
		}
		updated, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		s.audit.emit(ctx, actor, models.AuditActionAppealNotes, "point_appeal", id, current, updated)
		return updated, nil
	}

	if err := s.decide(ctx, actor, current, next, req.ReviewNotes); err != nil {
		return nil, err
	}
	updated, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.audit.emit(ctx, actor, models.AuditActionAppealDecide, "point_appeal", id, current, updated)
	return updated, nil
}

func (s *AppealService) decide(ctx context.Context, actor models.Actor, appeal *models.Appeal, status models.AppealStatus, notes *string) error {
	var reversal *models.LedgerEntry
	if status == models.AppealApproved {
		entry, err := s.ledger.GetByID(ctx, appeal.PointLogID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "appealed ledger entry no longer exists")
			}
			return appErrors.Internal(err, "failed to load appealed entry")
		}
		if entry.Points != 0 {
			reversal = &models.LedgerEntry{
				StudentID:    entry.StudentID,
				Points:       -entry.Points,
				Kind:         models.LedgerKindAppealReversal,
				Category:     entry.Category,
				Description:  fmt.Sprintf("Appeal %s approved", appeal.ID),
				AddedBy:      actor.UserID,
				AcademicYear: entry.AcademicYear,
			}
		}
	}

	err := s.appeals.Decide(ctx, repository.DecideParams{
		ID:          appeal.ID,
		Status:      status,
		ReviewedBy:  actor.UserID,
		ReviewedAt:  s.now().UTC(),
		ReviewNotes: normalizeOptional(notes),
	}, reversal)
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "appeal was already decided")
		}
		return appErrors.Internal(err, "failed to decide appeal")
	}
	s.metrics.RecordAppealDecision(status)
	if reversal != nil {
		s.metrics.RecordLedgerEntries(reversal)
		invalidateLedgerViews(ctx, s.cache, s.logger, reversal)
	}
	return nil
}

// Get returns one appeal. Students may only read their own.
func (s *AppealService) Get(ctx context.Context, actor models.Actor, id string) (*models.Appeal, error) {
	appeal, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authz.ensureStudentAccess(actor, appeal.StudentID, CapAppealReview); err != nil {
		return nil, err
	}
	return appeal, nil
}

// List returns appeals newest first. Students only see their own.
func (s *AppealService) List(ctx context.Context, actor models.Actor, req AppealListRequest) ([]models.Appeal, *models.Pagination, error) {
	filter := models.AppealFilter{
		StudentID:    req.StudentID,
		AcademicYear: req.AcademicYear,
		Page:         req.Page,
		PageSize:     req.PageSize,
	}
	if !s.authz.Can(actor.Role, CapAppealReview) {
		if actor.StudentID == "" {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list appeals")
		}
		filter.StudentID = actor.StudentID
	}
	if req.Status != "" {
		filter.Status = models.AppealStatus(strings.ToUpper(req.Status))
		if !filter.Status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", req.Status))
		}
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 50
	}
	appeals, total, err := s.appeals.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list appeals")
	}
	return appeals, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *AppealService) load(ctx context.Context, id string) (*models.Appeal, error) {
	appeal, err := s.appeals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appeal not found")
		}
		return nil, appErrors.Internal(err, "failed to load appeal")
	}
	return appeal, nil
}
