package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

var constraintRowColumns = []string{"id", "academic_year_id", "type", "target_id", "payload", "created_at", "updated_at"}

func TestConstraintRepositoryListDecodesVariants(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConstraintRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(constraintRowColumns).
		AddRow("c1", "2025", "not-available", "t1", `{"targetType":"teacher","targetId":"t1","day":"Mon","periodId":"p1"}`, now, now).
		AddRow("c2", "2025", "subject-rule", "10A", `{"subjectId":"math","classGroupId":"10A","lessonDefinitions":[{"count":4,"duration":2}],"minDaysApart":1}`, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, academic_year_id, type, target_id, payload, created_at, updated_at FROM time_constraints WHERE academic_year_id = $1 AND type = $2 AND target_id = $3 ORDER BY created_at ASC, id ASC")).
		WithArgs("2025", models.ConstraintNotAvailable, "t1").
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.ConstraintFilter{AcademicYearID: "2025", Type: models.ConstraintNotAvailable, TargetID: "t1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	na, ok := list[0].NotAvailable()
	require.True(t, ok)
	assert.Equal(t, "p1", na.PeriodID)
	rule, ok := list[1].SubjectRule()
	require.True(t, ok)
	assert.Equal(t, 8, rule.RequiredPeriods())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConstraintRepositoryListRejectsUnknownType(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConstraintRepository(db)

	now := time.Now()
	mock.ExpectQuery("FROM time_constraints WHERE academic_year_id = \\$1 ORDER BY").
		WithArgs("2025").
		WillReturnRows(sqlmock.NewRows(constraintRowColumns).AddRow("c9", "2025", "room-capacity", "r1", `{}`, now, now))

	_, err := repo.List(context.Background(), models.ConstraintFilter{AcademicYearID: "2025"})
	assert.ErrorContains(t, err, "unknown constraint type")
}

func TestConstraintRepositoryCreateStoresTargetKey(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConstraintRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO time_constraints")).
		WithArgs(sqlmock.AnyArg(), "2025", "teacher-max-periods-day", "t7", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	c := &models.TimeConstraint{AcademicYearID: "2025", Rule: models.TeacherMaxPeriodsDay{TeacherID: "t7", MaxPeriods: 6}}
	require.NoError(t, repo.Create(context.Background(), nil, c))
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConstraintRepositoryFindForUpdateInTx(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConstraintRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM time_constraints WHERE id = $1 FOR UPDATE")).
		WithArgs("c2").
		WillReturnRows(sqlmock.NewRows(constraintRowColumns).
			AddRow("c2", "2025", "subject-rule", "10A", `{"subjectId":"math","classGroupId":"10A","lessonDefinitions":[{"count":1,"duration":1}],"minDaysApart":0,"maxPeriodsPerDay":2}`, now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE time_constraints SET type = ?, target_id = ?, payload = ?, updated_at = ? WHERE id = ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	c, err := repo.FindByID(context.Background(), tx, "c2")
	require.NoError(t, err)
	rule, _ := c.SubjectRule()
	require.NotNil(t, rule.MaxPeriodsPerDay)
	rule.MaxPeriodsPerDay = nil
	c.Rule = rule
	require.NoError(t, repo.Update(context.Background(), tx, c))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConstraintRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConstraintRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM time_constraints WHERE id = $1")).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM time_constraints WHERE id = $1")).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), nil, "c1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), nil, "ghost"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConstraintRepositoryDeleteTeacherUnavailability(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConstraintRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM time_constraints WHERE academic_year_id = $1 AND type = $2 AND target_id = $3 AND payload->>'targetType' = $4 AND payload->>'periodId' = ANY($5)")).
		WithArgs("2025", models.ConstraintNotAvailable, "t1", models.TargetTeacher, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteTeacherUnavailability(context.Background(), nil, "2025", "t1", []string{"p1", "p2"})
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	n, err = repo.DeleteTeacherUnavailability(context.Background(), nil, "2025", "t1", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
