package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type sqlTxMock struct {
	db *sqlx.DB
}

func newSQLTxMock(t *testing.T) (*sqlTxMock, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &sqlTxMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (m *sqlTxMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return m.db.BeginTxx(ctx, opts)
}

type constraintStoreStub struct {
	items      map[string]models.TimeConstraint
	updated    []models.TimeConstraint
	deleted    []string
	cleared    []string
	clearCount int64
	updateErr  error
}

func newConstraintStoreStub(items ...models.TimeConstraint) *constraintStoreStub {
	stub := &constraintStoreStub{items: map[string]models.TimeConstraint{}}
	for _, item := range items {
		stub.items[item.ID] = item
	}
	return stub
}

func (s *constraintStoreStub) List(_ context.Context, filter models.ConstraintFilter) ([]models.TimeConstraint, error) {
	var out []models.TimeConstraint
	for _, item := range s.items {
		if item.AcademicYearID == filter.AcademicYearID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *constraintStoreStub) FindByID(_ context.Context, _ sqlx.ExtContext, id string) (*models.TimeConstraint, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &item, nil
}

func (s *constraintStoreStub) Create(_ context.Context, _ sqlx.ExtContext, c *models.TimeConstraint) error {
	c.ID = "new-constraint"
	c.CreatedAt = time.Now()
	s.items[c.ID] = *c
	return nil
}

func (s *constraintStoreStub) Update(_ context.Context, _ sqlx.ExtContext, c *models.TimeConstraint) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.items[c.ID] = *c
	s.updated = append(s.updated, *c)
	return nil
}

func (s *constraintStoreStub) Delete(_ context.Context, _ sqlx.ExtContext, id string) error {
	if _, ok := s.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *constraintStoreStub) DeleteTeacherUnavailability(_ context.Context, _ sqlx.ExtContext, _, _ string, periodIDs []string) (int64, error) {
	s.cleared = append(s.cleared, periodIDs...)
	return s.clearCount, nil
}

type gridStoreStub struct {
	grids []models.TimeGrid
}

func (s *gridStoreStub) List(context.Context) ([]models.TimeGrid, error) {
	return s.grids, nil
}

func (s *gridStoreStub) FindByID(_ context.Context, id string) (*models.TimeGrid, error) {
	for i := range s.grids {
		if s.grids[i].ID == id {
			grid := s.grids[i]
			return &grid, nil
		}
	}
	return nil, sql.ErrNoRows
}

type auditWriterStub struct {
	entries []models.AuditLog
}

func (s *auditWriterStub) Create(_ context.Context, _ sqlx.ExtContext, log *models.AuditLog) error {
	s.entries = append(s.entries, *log)
	return nil
}

type cacheRepoRecorder struct {
	values      map[string][]byte
	invalidated []string
}

func newCacheRepoRecorder() *cacheRepoRecorder {
	return &cacheRepoRecorder{values: map[string][]byte{}}
}

func (c *cacheRepoRecorder) Get(_ context.Context, key string, dest interface{}) error {
	data, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *cacheRepoRecorder) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = data
	return nil
}

func (c *cacheRepoRecorder) DeleteByPattern(_ context.Context, pattern string) error {
	c.invalidated = append(c.invalidated, pattern)
	return nil
}

type constraintServiceFixture struct {
	svc   *ConstraintService
	store *constraintStoreStub
	audit *auditWriterStub
	cache *cacheRepoRecorder
	mock  sqlmock.Sqlmock
}

func newConstraintServiceFixture(t *testing.T, items ...models.TimeConstraint) constraintServiceFixture {
	tx, mock := newSQLTxMock(t)
	store := newConstraintStoreStub(items...)
	audit := &auditWriterStub{}
	cacheRepo := newCacheRepoRecorder()
	grids := &gridStoreStub{grids: []models.TimeGrid{testGrid("g1", 5, 6, 1)}}
	svc := NewConstraintService(store, grids, audit, tx, NewCacheService(cacheRepo, nil, time.Minute, nil, true), NewMetricsService(), nil, nil)
	return constraintServiceFixture{svc: svc, store: store, audit: audit, cache: cacheRepo, mock: mock}
}

var testActor = models.Actor{UserID: "admin-1", Role: models.RoleAdmin, IP: "127.0.0.1"}

func TestConstraintServiceCreateValidatesPeriod(t *testing.T) {
	f := newConstraintServiceFixture(t)

	_, err := f.svc.Create(context.Background(), models.TimeConstraint{
		AcademicYearID: "2025",
		Rule:           models.NotAvailable{TargetType: models.TargetTeacher, TargetID: "t1", Day: "Mon", PeriodID: "nope"},
	}, testActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	created, err := f.svc.Create(context.Background(), models.TimeConstraint{
		AcademicYearID: "2025",
		Rule:           models.NotAvailable{TargetType: models.TargetTeacher, TargetID: "t1", Day: "Mon", PeriodID: "g1-p1"},
	}, testActor)
	require.NoError(t, err)
	assert.Equal(t, "new-constraint", created.ID)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditActionConstraintCreate, f.audit.entries[0].Action)
	assert.Equal(t, []string{"analysis:2025:*"}, f.cache.invalidated)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConstraintServiceCreateRejectsInvalidRule(t *testing.T) {
	f := newConstraintServiceFixture(t)

	_, err := f.svc.Create(context.Background(), models.TimeConstraint{
		AcademicYearID: "2025",
		Rule:           models.TeacherMaxPeriodsDay{TeacherID: "t1", MaxPeriods: 0},
	}, testActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Create(context.Background(), models.TimeConstraint{AcademicYearID: "2025"}, testActor)
	require.Error(t, err)
	assert.Empty(t, f.audit.entries)
}

func TestConstraintServiceUpdateKeepsAcademicYear(t *testing.T) {
	existing := models.TimeConstraint{ID: "c1", AcademicYearID: "2025", Rule: models.TeacherMaxPeriodsDay{TeacherID: "t1", MaxPeriods: 4}}
	f := newConstraintServiceFixture(t, existing)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	updated, err := f.svc.Update(context.Background(), "c1", models.TimeConstraint{
		AcademicYearID: "2099",
		Rule:           models.TeacherMaxPeriodsDay{TeacherID: "t1", MaxPeriods: 6},
	}, testActor)
	require.NoError(t, err)
	assert.Equal(t, "2025", updated.AcademicYearID)
	require.Len(t, f.audit.entries, 1)
	assert.NotEmpty(t, f.audit.entries[0].OldValues)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConstraintServiceDeleteMissingRollsBack(t *testing.T) {
	f := newConstraintServiceFixture(t)

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	err := f.svc.Delete(context.Background(), "ghost", testActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.cache.invalidated)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConstraintServiceApplyClearTeacherUnavailability(t *testing.T) {
	f := newConstraintServiceFixture(t)
	f.store.clearCount = 3

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	result, err := f.svc.ApplyFix(context.Background(), "2025", models.NewClearTeacherUnavailability("t1", "g1"), testActor)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Changed)
	assert.Len(t, f.store.cleared, 7)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditActionApplyFix, f.audit.entries[0].Action)
	assert.Equal(t, []string{"analysis:2025:*"}, f.cache.invalidated)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConstraintServiceApplyClearUnknownGrid(t *testing.T) {
	f := newConstraintServiceFixture(t)

	_, err := f.svc.ApplyFix(context.Background(), "2025", models.NewClearTeacherUnavailability("t1", "missing"), testActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidFix.Code, appErrors.FromError(err).Code)
}

func TestConstraintServiceApplyRelaxSubjectRule(t *testing.T) {
	rule := subjectRule("c2", "10A", "math", 5, 1)
	rule.AcademicYearID = "2025"
	sr, _ := rule.SubjectRule()
	sr.MustBeEveryDay = boolPtr(true)
	sr.MaxPeriodsPerDay = intPtr(2)
	rule.Rule = sr
	f := newConstraintServiceFixture(t, rule)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	result, err := f.svc.ApplyFix(context.Background(), "2025", models.NewRelaxSubjectRule("c2", models.RelaxMustBeEveryDay, false), testActor)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Changed)
	got, _ := f.store.items["c2"].SubjectRule()
	require.NotNil(t, got.MustBeEveryDay)
	assert.False(t, *got.MustBeEveryDay)
	require.NotNil(t, got.MaxPeriodsPerDay)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	_, err = f.svc.ApplyFix(context.Background(), "2025", models.NewRelaxSubjectRule("c2", models.RelaxMaxPeriodsPerDay, nil), testActor)
	require.NoError(t, err)
	got, _ = f.store.items["c2"].SubjectRule()
	assert.Nil(t, got.MaxPeriodsPerDay)
	assert.Len(t, f.audit.entries, 2)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConstraintServiceApplyRelaxRejections(t *testing.T) {
	notRule := models.TimeConstraint{ID: "c3", AcademicYearID: "2025", Rule: models.TeacherMaxConsecutive{TeacherID: "t1", MaxConsecutive: 3}}
	otherYear := subjectRule("c4", "10A", "math", 2, 1)
	otherYear.AcademicYearID = "2024"
	f := newConstraintServiceFixture(t, notRule, otherYear)

	cases := []struct {
		name   string
		year   string
		action models.FixAction
		code   string
	}{
		{"not a subject rule", "2025", models.NewRelaxSubjectRule("c3", models.RelaxMustBeEveryDay, false), appErrors.ErrInvalidFix.Code},
		{"other academic year", "2025", models.NewRelaxSubjectRule("c4", models.RelaxMustBeEveryDay, false), appErrors.ErrInvalidFix.Code},
		{"missing constraint", "2025", models.NewRelaxSubjectRule("ghost", models.RelaxMustBeEveryDay, false), appErrors.ErrNotFound.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.mock.ExpectBegin()
			f.mock.ExpectRollback()
			_, err := f.svc.ApplyFix(context.Background(), tc.year, tc.action, testActor)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
	assert.Empty(t, f.audit.entries)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConstraintServiceApplyMalformedAction(t *testing.T) {
	f := newConstraintServiceFixture(t)

	for _, action := range []models.FixAction{
		{Kind: models.FixRelaxSubjectRule},
		models.NewRelaxSubjectRule("c4", models.RelaxMaxPeriodsPerDay, "three"),
		models.NewRelaxSubjectRule("c4", models.RelaxMaxPeriodsPerDay, 0),
	} {
		_, err := f.svc.ApplyFix(context.Background(), "2025", action, testActor)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrInvalidFix.Code, appErrors.FromError(err).Code)
	}
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestConstraintServiceUpdateFailureRollsBack(t *testing.T) {
	rule := subjectRule("c2", "10A", "math", 5, 1)
	rule.AcademicYearID = "2025"
	f := newConstraintServiceFixture(t, rule)
	f.store.updateErr = errors.New("db down")

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
	_, err := f.svc.ApplyFix(context.Background(), "2025", models.NewRelaxSubjectRule("c2", models.RelaxMustBeEveryDay, false), testActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.cache.invalidated)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
