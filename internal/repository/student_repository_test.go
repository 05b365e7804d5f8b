package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudentRepositoryListActiveByClass(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "nis", "full_name", "class_id", "archived", "created_at", "updated_at"}).
		AddRow("stu-1", "001", "Ayu", "class-1", false, now, now).
		AddRow("stu-2", "002", "Budi", "class-1", false, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE class_id = $1 AND archived = FALSE")).WithArgs("class-1").WillReturnRows(rows)

	students, err := repo.ListActiveByClass(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "class-1", *students[0].ClassID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
