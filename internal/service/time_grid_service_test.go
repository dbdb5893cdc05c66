package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type timeGridRepoStub struct {
	gridStoreStub
	saved []models.TimeGrid
}

func (s *timeGridRepoStub) Upsert(_ context.Context, grid *models.TimeGrid) error {
	grid.UpdatedAt = time.Now()
	s.saved = append(s.saved, *grid)
	return nil
}

func validGrid() models.TimeGrid {
	return models.TimeGrid{
		Name: "Regular",
		Days: models.StringList{"Mon", "Tue"},
		Periods: models.Periods{
			{ID: "p1", Type: models.PeriodTypeLesson, StartTime: "07:00", EndTime: "07:45"},
			{ID: "b1", Type: models.PeriodTypeBreak, StartTime: "07:45", EndTime: "08:00"},
		},
	}
}

func TestTimeGridServiceUpsert(t *testing.T) {
	repo := &timeGridRepoStub{}
	audit := &auditWriterStub{}
	cacheRepo := newCacheRepoRecorder()
	svc := NewTimeGridService(repo, audit, NewCacheService(cacheRepo, nil, time.Minute, nil, true), nil, nil)

	grid, err := svc.Upsert(context.Background(), "g1", validGrid(), testActor)
	require.NoError(t, err)
	assert.Equal(t, "g1", grid.ID)
	assert.Equal(t, 2, grid.Capacity())
	require.Len(t, repo.saved, 1)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionTimeGridUpsert, audit.entries[0].Action)
	assert.Equal(t, []string{"analysis:*"}, cacheRepo.invalidated)
}

func TestTimeGridServiceValidation(t *testing.T) {
	svc := NewTimeGridService(&timeGridRepoStub{}, nil, nil, nil, nil)

	cases := map[string]func(g *models.TimeGrid){
		"no days":         func(g *models.TimeGrid) { g.Days = nil },
		"duplicate day":   func(g *models.TimeGrid) { g.Days = models.StringList{"Mon", "Mon"} },
		"no periods":      func(g *models.TimeGrid) { g.Periods = nil },
		"duplicate id":    func(g *models.TimeGrid) { g.Periods[1].ID = "p1" },
		"unknown type":    func(g *models.TimeGrid) { g.Periods[0].Type = "Assembly" },
		"bad clock":       func(g *models.TimeGrid) { g.Periods[0].StartTime = "7am" },
		"start after end": func(g *models.TimeGrid) { g.Periods[0].StartTime = "08:00" },
		"equal bounds":    func(g *models.TimeGrid) { g.Periods[0].EndTime = "07:00" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			grid := validGrid()
			mutate(&grid)
			_, err := svc.Upsert(context.Background(), "g1", grid, testActor)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestTimeGridServiceGetNotFound(t *testing.T) {
	svc := NewTimeGridService(&timeGridRepoStub{}, nil, nil, nil, nil)

	_, err := svc.Get(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

type classGroupRepoStub struct {
	groups []models.ClassGroup
}

func (s *classGroupRepoStub) List(_ context.Context, timeGridID string) ([]models.ClassGroup, error) {
	var out []models.ClassGroup
	for _, g := range s.groups {
		if timeGridID == "" || g.TimeGridID == timeGridID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *classGroupRepoStub) FindByID(_ context.Context, id string) (*models.ClassGroup, error) {
	for i := range s.groups {
		if s.groups[i].ID == id {
			return &s.groups[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *classGroupRepoStub) ListSubjects(context.Context) ([]models.Subject, error) {
	return []models.Subject{{ID: "bio", Name: "Biology", ElectiveGroup: strPtr("science")}}, nil
}

func TestClassGroupService(t *testing.T) {
	svc := NewClassGroupService(&classGroupRepoStub{groups: []models.ClassGroup{
		{ID: "10A", TimeGridID: "g1"},
		{ID: "11B", TimeGridID: "g2"},
	}})

	groups, err := svc.List(context.Background(), "g2")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "11B", groups[0].ID)

	_, err = svc.Get(context.Background(), "12C")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	subjects, err := svc.Subjects(context.Background())
	require.NoError(t, err)
	assert.True(t, subjects[0].InElectiveGroup("science"))
}
