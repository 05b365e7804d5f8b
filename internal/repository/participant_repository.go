package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-merit-api/internal/models"
	"github.com/noah-isme/sma-merit-api/pkg/database"
)

const participantColumns = `id, quest_id, student_id, status, joined_at, submitted_at, completed_at, reviewed_by, review_notes, updated_at`

// ParticipantRepository persists quest progress rows.
type ParticipantRepository struct {
	db *sqlx.DB
}

// NewParticipantRepository constructs the repository.
func NewParticipantRepository(db *sqlx.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// Join locks the quest row, rejects a pair that already joined, runs guard against the quest,
// checks the slot limit and inserts the participant in IN_PROGRESS. Concurrent joins of the
// same quest serialize on the lock.
func (r *ParticipantRepository) Join(ctx context.Context, questID, studentID string, guard func(*models.Quest) error) (*models.QuestParticipant, error) {
	var participant *models.QuestParticipant
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var quest models.Quest
		query := fmt.Sprintf("SELECT %s FROM quests WHERE id = $1 FOR UPDATE", questColumns)
		if err := tx.GetContext(ctx, &quest, query, questID); err != nil {
			return err
		}
		var exists bool
		if err := tx.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM quest_participants WHERE quest_id = $1 AND student_id = $2)", questID, studentID); err != nil {
			return fmt.Errorf("check participant: %w", err)
		}
		if exists {
			return ErrDuplicateParticipant
		}
		if guard != nil {
			if err := guard(&quest); err != nil {
				return err
			}
		}
		if quest.SlotsAvailable != nil {
			var taken int
			if err := tx.GetContext(ctx, &taken, "SELECT COUNT(*) FROM quest_participants WHERE quest_id = $1", questID); err != nil {
				return fmt.Errorf("count participants: %w", err)
			}
			if taken >= *quest.SlotsAvailable {
				return ErrQuestFull
			}
		}

		now := time.Now().UTC()
		row := &models.QuestParticipant{
			ID:        uuid.NewString(),
			QuestID:   questID,
			StudentID: studentID,
			Status:    models.ParticipantInProgress,
			JoinedAt:  now,
			UpdatedAt: now,
		}
		const insert = `INSERT INTO quest_participants (id, quest_id, student_id, status, joined_at, updated_at)
VALUES (:id, :quest_id, :student_id, :status, :joined_at, :updated_at)
ON CONFLICT (quest_id, student_id) DO NOTHING`
		res, err := tx.NamedExecContext(ctx, insert, row)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateParticipant
			}
			if isForeignKeyViolation(err) {
				return ErrUnknownStudent
			}
			return fmt.Errorf("insert participant: %w", err)
		}
		if rows, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("insert participant rows: %w", err)
		} else if rows == 0 {
			return ErrDuplicateParticipant
		}
		participant = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return participant, nil
}

// Get fetches the participant row for a pair.
func (r *ParticipantRepository) Get(ctx context.Context, questID, studentID string) (*models.QuestParticipant, error) {
	var p models.QuestParticipant
	query := fmt.Sprintf("SELECT %s FROM quest_participants WHERE quest_id = $1 AND student_id = $2", participantColumns)
	if err := r.db.GetContext(ctx, &p, query, questID, studentID); err != nil {
		return nil, err
	}
	return &p, nil
}

// TransitionParams describes a compare-and-swap status change.
type TransitionParams struct {
	QuestID     string
	StudentID   string
	From        models.ParticipantStatus
	To          models.ParticipantStatus
	At          time.Time
	ReviewedBy  *string
	ReviewNotes *string
}

func (p TransitionParams) args() map[string]interface{} {
	return map[string]interface{}{
		"quest_id":     p.QuestID,
		"student_id":   p.StudentID,
		"from_status":  p.From,
		"to_status":    p.To,
		"at":           p.At,
		"reviewed_by":  p.ReviewedBy,
		"review_notes": p.ReviewNotes,
	}
}

func transitionQuery(to models.ParticipantStatus) string {
	set := "status = :to_status, updated_at = :at"
	switch to {
	case models.ParticipantSubmittedForReview:
		set += ", submitted_at = :at"
	case models.ParticipantCompleted:
		set += ", completed_at = :at, reviewed_by = :reviewed_by, review_notes = :review_notes"
	case models.ParticipantInProgress:
		set += ", reviewed_by = :reviewed_by, review_notes = :review_notes"
	}
	return fmt.Sprintf("UPDATE quest_participants SET %s WHERE quest_id = :quest_id AND student_id = :student_id AND status = :from_status", set)
}

// Transition moves a participant from p.From to p.To. ErrStaleState is returned when the row
// is not in p.From any more.
func (r *ParticipantRepository) Transition(ctx context.Context, p TransitionParams) error {
	if err := expectOneRow(r.db.NamedExecContext(ctx, transitionQuery(p.To), p.args())); err != nil {
		if errors.Is(err, ErrStaleState) {
			return err
		}
		return fmt.Errorf("transition participant: %w", err)
	}
	return nil
}

// Complete moves a SUBMITTED_FOR_REVIEW participant to COMPLETED and appends award in the same
// transaction. A nil award only changes the status.
func (r *ParticipantRepository) Complete(ctx context.Context, p TransitionParams, award *models.LedgerEntry) error {
	p.From = models.ParticipantSubmittedForReview
	p.To = models.ParticipantCompleted
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := expectOneRow(tx.NamedExecContext(ctx, transitionQuery(p.To), p.args())); err != nil {
			if errors.Is(err, ErrStaleState) {
				return err
			}
			return fmt.Errorf("complete participant: %w", err)
		}
		if award == nil {
			return nil
		}
		award.CreatedAt = p.At
		return insertLedgerEntry(ctx, tx, award)
	})
}

// ListByQuest returns the participants of a quest, optionally filtered by status.
func (r *ParticipantRepository) ListByQuest(ctx context.Context, questID string, status models.ParticipantStatus) ([]models.QuestParticipant, error) {
	query := fmt.Sprintf("SELECT %s FROM quest_participants WHERE quest_id = $1", participantColumns)
	args := []interface{}{questID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY joined_at"
	var rows []models.QuestParticipant
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return rows, nil
}

// ListByStudent returns every quest a student joined with its headline.
func (r *ParticipantRepository) ListByStudent(ctx context.Context, studentID string) ([]models.StudentQuest, error) {
	const query = `SELECT p.id, p.quest_id, p.student_id, p.status, p.joined_at, p.submitted_at, p.completed_at,
       p.reviewed_by, p.review_notes, p.updated_at, q.title AS quest_title, q.points AS quest_points
FROM quest_participants p
JOIN quests q ON q.id = p.quest_id
WHERE p.student_id = $1
ORDER BY p.joined_at DESC`
	var rows []models.StudentQuest
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list student quests: %w", err)
	}
	return rows, nil
}

// CountByStatus counts participants in a status, scoped to quests of a year when given.
func (r *ParticipantRepository) CountByStatus(ctx context.Context, status models.ParticipantStatus, academicYear string) (int, error) {
	query := "SELECT COUNT(*) FROM quest_participants p JOIN quests q ON q.id = p.quest_id WHERE p.status = $1"
	args := []interface{}{status}
	if academicYear != "" {
		query += " AND q.academic_year = $2"
		args = append(args, academicYear)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return count, nil
}
