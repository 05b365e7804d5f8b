package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/internal/repository"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

type stubReports struct {
	reports    map[string]models.TeacherReport
	lastFilter models.TeacherReportFilter
}

func (s *stubReports) Create(_ context.Context, r *models.TeacherReport) error {
	if s.reports == nil {
		s.reports = map[string]models.TeacherReport{}
	}
	r.ID = "report-1"
	r.Status = models.TeacherReportOpen
	s.reports[r.ID] = *r
	return nil
}

func (s *stubReports) GetByID(_ context.Context, id string) (*models.TeacherReport, error) {
	r, ok := s.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (s *stubReports) List(_ context.Context, f models.TeacherReportFilter) ([]models.TeacherReport, int, error) {
	s.lastFilter = f
	return nil, 0, nil
}

func (s *stubReports) UpdateStatus(_ context.Context, id string, from, to models.TeacherReportStatus) error {
	r, ok := s.reports[id]
	if !ok || r.Status != from {
		return repository.ErrStaleState
	}
	r.Status = to
	s.reports[id] = r
	return nil
}

type recordingAudit struct {
	logs []models.AuditLog
	err  error
}

func (r *recordingAudit) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, *log)
	return r.err
}

func TestTeacherReportLifecycle(t *testing.T) {
	repo := &stubReports{}
	audit := &recordingAudit{err: errors.New("audit table locked")}
	svc := NewTeacherReportService(repo, testAuthorizer(t), audit, nil, nil)
	ctx := context.Background()

	report, err := svc.Create(ctx, teacherActor, CreateTeacherReportRequest{StudentID: "stu-1", Category: "conduct", Title: "Helped peers", Body: "Tutored two classmates"})
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", report.TeacherID)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionReportCreate, audit.logs[0].Action)

	_, err = svc.Create(ctx, studentActor("stu-1"), CreateTeacherReportRequest{StudentID: "stu-1", Category: "c", Title: "t", Body: "b"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	acked, err := svc.UpdateStatus(ctx, teacherActor, report.ID, "acknowledged")
	require.NoError(t, err)
	assert.Equal(t, models.TeacherReportAcknowledged, acked.Status)

	_, err = svc.UpdateStatus(ctx, teacherActor, report.ID, "OPEN")
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	resolved, err := svc.UpdateStatus(ctx, adminActor, report.ID, "RESOLVED")
	require.NoError(t, err)
	assert.Equal(t, models.TeacherReportResolved, resolved.Status)

	other := models.Actor{UserID: "teacher-2", Role: models.RoleTeacher}
	_, err = svc.Get(ctx, other, report.ID)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestTeacherReportListScopes(t *testing.T) {
	repo := &stubReports{}
	svc := NewTeacherReportService(repo, testAuthorizer(t), nil, nil, nil)
	ctx := context.Background()

	_, _, err := svc.List(ctx, teacherActor, TeacherReportListRequest{TeacherID: "teacher-9"})
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", repo.lastFilter.TeacherID)

	_, _, err = svc.List(ctx, adminActor, TeacherReportListRequest{TeacherID: "teacher-9", Status: "open"})
	require.NoError(t, err)
	assert.Equal(t, "teacher-9", repo.lastFilter.TeacherID)
	assert.Equal(t, models.TeacherReportOpen, repo.lastFilter.Status)

	_, _, err = svc.List(ctx, studentActor("stu-1"), TeacherReportListRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
