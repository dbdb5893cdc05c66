package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func TestTimeGridRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimeGridRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "days", "periods", "created_at", "updated_at"}).
		AddRow("g1", "Regular", `["Mon","Tue"]`, `[{"id":"p1","type":"Lesson","startTime":"07:00","endTime":"07:45"},{"id":"b1","type":"Break","startTime":"07:45","endTime":"08:00"}]`, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, days, periods, created_at, updated_at FROM time_grids WHERE id = $1")).
		WithArgs("g1").
		WillReturnRows(rows)

	grid, err := repo.FindByID(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, grid.Capacity())
	assert.True(t, grid.HasDay("Tue"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeGridRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimeGridRepository(db)

	mock.ExpectExec("INSERT INTO time_grids").
		WithArgs("g1", "Regular", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	grid := &models.TimeGrid{ID: "g1", Name: "Regular", Days: models.StringList{"Mon"}}
	require.NoError(t, repo.Upsert(context.Background(), grid))
	assert.False(t, grid.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassGroupRepositoryListAndSubjects(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewClassGroupRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, time_grid_id, subject_ids, created_at, updated_at FROM class_groups WHERE time_grid_id = $1 ORDER BY name ASC")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "time_grid_id", "subject_ids", "created_at", "updated_at"}).
			AddRow("10A", "10 A", "g1", `["math","bio"]`, now, now))

	groups, err := repo.List(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.True(t, groups[0].HasSubject("bio"))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, elective_group FROM subjects ORDER BY name ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "elective_group"}).
			AddRow("bio", "Biology", "science").
			AddRow("math", "Mathematics", nil))

	subjects, err := repo.ListSubjects(context.Background())
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.True(t, subjects[0].InElectiveGroup("science"))
	assert.Nil(t, subjects[1].ElectiveGroup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, academic_year_id, name, status, lessons, created_at FROM generated_timetables WHERE id = $1")).
		WithArgs("tt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "academic_year_id", "name", "status", "lessons", "created_at"}).
			AddRow("tt-1", "2025", "Draft A", "draft", `[{"classGroupId":"10A","subjectId":"math","teacherId":"t1","day":"Mon","periodId":"p1","duration":2}]`, time.Now()))

	timetable, err := repo.FindByID(context.Background(), "tt-1")
	require.NoError(t, err)
	require.Len(t, timetable.Lessons, 1)
	assert.Equal(t, 2, timetable.Lessons[0].Duration)
	assert.NoError(t, mock.ExpectationsWereMet())
}
