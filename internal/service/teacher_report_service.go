package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/internal/repository"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

type teacherReportStore interface {
	Create(ctx context.Context, report *models.TeacherReport) error
	GetByID(ctx context.Context, id string) (*models.TeacherReport, error)
	List(ctx context.Context, filter models.TeacherReportFilter) ([]models.TeacherReport, int, error)
	UpdateStatus(ctx context.Context, id string, from, to models.TeacherReportStatus) error
}

// CreateTeacherReportRequest is the payload for filing a report.
type CreateTeacherReportRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	ClassID   *string `json:"class_id"`
	Category  string  `json:"category" validate:"required,max=100"`
	Title     string  `json:"title" validate:"required,max=200"`
	Body      string  `json:"body" validate:"required,max=5000"`
}

// TeacherReportListRequest filters report listings.
type TeacherReportListRequest struct {
	TeacherID string
	StudentID string
	Status    string
	Page      int
	PageSize  int
}

// TeacherReportService persists teacher observations.
type TeacherReportService struct {
	repo      teacherReportStore
	authz     *Authorizer
	audit     auditTrail
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherReportService constructs the service.
func NewTeacherReportService(repo teacherReportStore, authz *Authorizer, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *TeacherReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherReportService{repo: repo, authz: authz, audit: newAuditTrail(audit, logger, "teacher-report-service"), validator: validate, logger: logger}
}

// Create files an OPEN report authored by the caller.
func (s *TeacherReportService) Create(ctx context.Context, actor models.Actor, req CreateTeacherReportRequest) (*models.TeacherReport, error) {
	if err := s.authz.Authorize(actor.Role, CapReportCreate); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	report := &models.TeacherReport{
		TeacherID: actor.UserID,
		StudentID: strings.TrimSpace(req.StudentID),
		ClassID:   normalizeOptional(req.ClassID),
		Category:  strings.TrimSpace(req.Category),
		Title:     strings.TrimSpace(req.Title),
		Body:      strings.TrimSpace(req.Body),
	}
	if err := s.repo.Create(ctx, report); err != nil {
		return nil, appErrors.Internal(err, "failed to create teacher report")
	}
	s.audit.emit(ctx, actor, models.AuditActionReportCreate, "teacher_report", report.ID, nil, report)
	return report, nil
}

// List returns reports. Authors without report.view.any only see their own.
func (s *TeacherReportService) List(ctx context.Context, actor models.Actor, req TeacherReportListRequest) ([]models.TeacherReport, *models.Pagination, error) {
	filter := models.TeacherReportFilter{
		TeacherID: req.TeacherID,
		StudentID: req.StudentID,
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	if !s.authz.Can(actor.Role, CapReportViewAny) {
		if !s.authz.Can(actor.Role, CapReportCreate) {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list reports")
		}
		filter.TeacherID = actor.UserID
	}
	if req.Status != "" {
		filter.Status = models.TeacherReportStatus(strings.ToUpper(req.Status))
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
	reports, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list teacher reports")
	}
	return reports, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one report.
func (s *TeacherReportService) Get(ctx context.Context, actor models.Actor, id string) (*models.TeacherReport, error) {
	report, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher report not found")
		}
		return nil, appErrors.Internal(err, "failed to load teacher report")
	}
	if report.TeacherID != actor.UserID && !s.authz.Can(actor.Role, CapReportViewAny) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this report")
	}
	return report, nil
}

// UpdateStatus moves a report forward through OPEN, ACKNOWLEDGED and RESOLVED.
func (s *TeacherReportService) UpdateStatus(ctx context.Context, actor models.Actor, id, status string) (*models.TeacherReport, error) {
	next := models.TeacherReportStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !next.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
	}
	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanMoveTo(next) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move report from %s to %s", current.Status, next))
	}
	if err := s.repo.UpdateStatus(ctx, id, current.Status, next); err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "report changed concurrently")
		}
		return nil, appErrors.Internal(err, "failed to update teacher report")
	}
	updated, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	s.audit.emit(ctx, actor, models.AuditActionReportUpdate, "teacher_report", id, current, updated)
	return updated, nil
}
