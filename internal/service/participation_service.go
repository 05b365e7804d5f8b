package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/internal/repository"
	appErrors "github.com/noah-isme/sma-merit-api/pkg/errors"
)

type participantStore interface {
	Join(ctx context.Context, questID, studentID string, guard func(*models.Quest) error) (*models.QuestParticipant, error)
	Get(ctx context.Context, questID, studentID string) (*models.QuestParticipant, error)
	Transition(ctx context.Context, p repository.TransitionParams) error
	Complete(ctx context.Context, p repository.TransitionParams, award *models.LedgerEntry) error
	ListByQuest(ctx context.Context, questID string, status models.ParticipantStatus) ([]models.QuestParticipant, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.StudentQuest, error)
}

type questReader interface {
	GetByID(ctx context.Context, id string) (*models.Quest, error)
}

// QuestCategory is the ledger category of quest awards.
const QuestCategory = "quest"

// ReviewRequest carries a reviewer's decision.
type ReviewRequest struct {
	Approve *bool   `json:"approve" binding:"required"`
	Notes   *string `json:"notes"`
}

// ParticipationServiceParams groups constructor dependencies.
type ParticipationServiceParams struct {
	Participants        participantStore
	Quests              questReader
	Authorizer          *Authorizer
	Cache               *CacheService
	Metrics             *MetricsService
	Audit               auditLogger
	Logger              *zap.Logger
	DefaultAcademicYear string
}

// ParticipationService drives a student's progress through a quest.
type ParticipationService struct {
	participants participantStore
	quests       questReader
	authz        *Authorizer
	cache        *CacheService
	metrics      *MetricsService
	audit        auditTrail
	logger       *zap.Logger
	year         string
	now          func() time.Time
}

// NewParticipationService constructs the engine.
func NewParticipationService(params ParticipationServiceParams) *ParticipationService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParticipationService{
		participants: params.Participants,
		quests:       params.Quests,
		authz:        params.Authorizer,
		cache:        params.Cache,
		metrics:      params.Metrics,
		audit:        newAuditTrail(params.Audit, logger, "participation-service"),
		logger:       logger,
		year:         params.DefaultAcademicYear,
		now:          time.Now,
	}
}

// Join enrolls a student in a quest. Students may only enroll themselves.
func (s *ParticipationService) Join(ctx context.Context, actor models.Actor, questID, studentID string) (*models.QuestParticipant, error) {
	if err := s.ensureActsFor(actor, studentID); err != nil {
		return nil, err
	}
	now := s.now()
	participant, err := s.participants.Join(ctx, questID, studentID, func(q *models.Quest) error {
		if !q.AcceptsJoins(now) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "quest closed")
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quest not found")
		case errors.Is(err, repository.ErrQuestFull):
			return nil, appErrors.Clone(appErrors.ErrCapacityExceeded, "quest has no remaining slots")
		case errors.Is(err, repository.ErrDuplicateParticipant):
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already joined this quest")
		case errors.Is(err, repository.ErrUnknownStudent):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Internal(err, "failed to join quest")
	}
	s.audit.emit(ctx, actor, models.AuditActionQuestJoin, "quest_participant", participant.ID, nil, participant)
	return participant, nil
}

// Submit moves an IN_PROGRESS participant to SUBMITTED_FOR_REVIEW. Re-submitting returns the
// row unchanged.
func (s *ParticipationService) Submit(ctx context.Context, actor models.Actor, questID, studentID string) (*models.QuestParticipant, error) {
	if err := s.ensureActsFor(actor, studentID); err != nil {
		return nil, err
	}
	current, err := s.participants.Get(ctx, questID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "join the quest before submitting")
		}
		return nil, appErrors.Internal(err, "failed to load participant")
	}
	switch current.Status {
	case models.ParticipantSubmittedForReview:
		return current, nil
	case models.ParticipantCompleted:
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "quest already completed")
	}

	err = s.participants.Transition(ctx, repository.TransitionParams{
		QuestID:   questID,
		StudentID: studentID,
		From:      models.ParticipantInProgress,
		To:        models.ParticipantSubmittedForReview,
		At:        s.now().UTC(),
	})
	if err != nil && !errors.Is(err, repository.ErrStaleState) {
		return nil, appErrors.Internal(err, "failed to submit quest")
	}
	updated, loadErr := s.participants.Get(ctx, questID, studentID)
	if loadErr != nil {
		return nil, appErrors.Internal(loadErr, "failed to reload participant")
	}
	if err != nil && updated.Status != models.ParticipantSubmittedForReview {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("participant is %s", updated.Status))
	}
	if err == nil {
		s.audit.emit(ctx, actor, models.AuditActionQuestSubmit, "quest_participant", updated.ID, current, updated)
	}
	return updated, nil
}

// Review approves or rejects a submission. Approval completes the participant and awards the
// quest points in one transaction; a reviewer that loses a race gets InvalidTransition.
func (s *ParticipationService) Review(ctx context.Context, actor models.Actor, questID, studentID string, req ReviewRequest) (*models.QuestParticipant, error) {
	if req.Approve == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "approve is required")
	}
	quest, err := s.loadQuest(ctx, questID)
	if err != nil {
		return nil, err
	}
	if quest.SupervisorID != actor.UserID && !s.authz.Can(actor.Role, CapQuestReviewAny) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the quest supervisor may review")
	}
	current, err := s.participants.Get(ctx, questID, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "participant not found")
		}
		return nil, appErrors.Internal(err, "failed to load participant")
	}
	if current.Status != models.ParticipantSubmittedForReview {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("participant is %s", current.Status))
	}

	reviewer := actor.UserID
	params := repository.TransitionParams{
		QuestID:     questID,
		StudentID:   studentID,
		From:        models.ParticipantSubmittedForReview,
		At:          s.now().UTC(),
		ReviewedBy:  &reviewer,
		ReviewNotes: normalizeOptional(req.Notes),
	}

	var award *models.LedgerEntry
	action := models.AuditActionQuestReject
	if *req.Approve {
		action = models.AuditActionQuestApprove
		award = s.questAward(quest, studentID, reviewer)
		err = s.participants.Complete(ctx, params, award)
	} else {
		params.To = models.ParticipantInProgress
		err = s.participants.Transition(ctx, params)
	}
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "submission was already reviewed")
		}
		return nil, appErrors.Internal(err, "failed to record review")
	}

	if *req.Approve {
		s.metrics.RecordQuestReview("approved")
		if award != nil {
			s.metrics.RecordLedgerEntries(award)
			invalidateLedgerViews(ctx, s.cache, s.logger, award)
		}
	} else {
		s.metrics.RecordQuestReview("rejected")
	}

	updated, err := s.participants.Get(ctx, questID, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to reload participant")
	}
	s.audit.emit(ctx, actor, action, "quest_participant", updated.ID, current, updated)
	return updated, nil
}

func (s *ParticipationService) questAward(quest *models.Quest, studentID, reviewer string) *models.LedgerEntry {
	if quest.Points <= 0 {
		return nil
	}
	award := &models.LedgerEntry{
		StudentID:    studentID,
		Points:       quest.Points,
		Kind:         models.LedgerKindQuest,
		Category:     QuestCategory,
		Description:  fmt.Sprintf("Quest completed: %s", quest.Title),
		AddedBy:      reviewer,
		AcademicYear: s.year,
	}
	if quest.AcademicYear != nil {
		award.AcademicYear = *quest.AcademicYear
	}
	if quest.BadgeTier != nil {
		award.Badge = &models.Badge{Tier: *quest.BadgeTier, Title: quest.Title}
	}
	return award
}

// ListParticipants returns the participants of a quest, optionally by status.
func (s *ParticipationService) ListParticipants(ctx context.Context, actor models.Actor, questID, status string) ([]models.QuestParticipant, error) {
	if err := s.authz.Authorize(actor.Role, CapLedgerViewAny); err != nil {
		return nil, err
	}
	st := models.ParticipantStatus(status)
	if status != "" && !st.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
	}
	if _, err := s.loadQuest(ctx, questID); err != nil {
		return nil, err
	}
	rows, err := s.participants.ListByQuest(ctx, questID, st)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list participants")
	}
	return rows, nil
}

// ListForStudent returns every quest the student joined.
func (s *ParticipationService) ListForStudent(ctx context.Context, actor models.Actor, studentID string) ([]models.StudentQuest, error) {
	if err := s.authz.ensureStudentAccess(actor, studentID, CapLedgerViewAny); err != nil {
		return nil, err
	}
	rows, err := s.participants.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list student quests")
	}
	return rows, nil
}

func (s *ParticipationService) ensureActsFor(actor models.Actor, studentID string) error {
	if studentID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	if s.authz.actsAsSelf(actor) {
		if actor.StudentID != studentID {
			return appErrors.Clone(appErrors.ErrForbidden, "students may only act for themselves")
		}
		return nil
	}
	return s.authz.Authorize(actor.Role, CapQuestManage)
}

func (s *ParticipationService) loadQuest(ctx context.Context, id string) (*models.Quest, error) {
	quest, err := s.quests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "quest not found")
		}
		return nil, appErrors.Internal(err, "failed to load quest")
	}
	return quest, nil
}
