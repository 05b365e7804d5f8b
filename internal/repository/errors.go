package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
)

var (
	// ErrQuestFull is returned when a join would exceed the quest's slot limit.
	ErrQuestFull = errors.New("quest has no remaining slots")
	// ErrDuplicateParticipant is returned when the student already joined the quest.
	ErrDuplicateParticipant = errors.New("participant already exists")
	// ErrDuplicateAppeal is returned when the ledger entry already has an open or approved appeal.
	ErrDuplicateAppeal = errors.New("appeal already exists for point log")
	// ErrUnknownStudent is returned when a write references a student id missing from the roster.
	ErrUnknownStudent = errors.New("student does not exist")
	// ErrStaleState is returned when a compare-and-swap update matched no row in the expected state.
	ErrStaleState = errors.New("row is no longer in the expected state")
)

type namedExecer interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgerrcode.UniqueViolation
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgerrcode.ForeignKeyViolation
	}
	return false
}

func pageBounds(page, size int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	return size, (page - 1) * size
}

func expectOneRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrStaleState
	}
	return nil
}
