package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type snapshotConstraintReader interface {
	List(ctx context.Context, filter models.ConstraintFilter) ([]models.TimeConstraint, error)
}

type snapshotGridReader interface {
	List(ctx context.Context) ([]models.TimeGrid, error)
}

type snapshotGroupReader interface {
	List(ctx context.Context, timeGridID string) ([]models.ClassGroup, error)
	ListSubjects(ctx context.Context) ([]models.Subject, error)
}

type timetableReader interface {
	FindByID(ctx context.Context, id string) (*models.GeneratedTimetable, error)
}

// AnalysisCacheKey is the cache key of one lesson analysis.
func AnalysisCacheKey(academicYearID string, lesson models.LessonRef) string {
	return fmt.Sprintf("analysis:%s:%s", academicYearID, lesson.Key())
}

// AnalysisCachePattern matches every cached analysis of an academic year.
func AnalysisCachePattern(academicYearID string) string {
	return fmt.Sprintf("analysis:%s:*", academicYearID)
}

// ConstraintAnalysisService loads constraint snapshots and runs the analyzer over them.
type ConstraintAnalysisService struct {
	constraints snapshotConstraintReader
	grids       snapshotGridReader
	groups      snapshotGroupReader
	timetables  timetableReader
	analyzer    *ConstraintAnalyzer
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cacheTTL    time.Duration
}

// ConstraintAnalysisConfig tunes the analysis service.
type ConstraintAnalysisConfig struct {
	ElectiveFallback bool
	CacheTTL         time.Duration
}

// NewConstraintAnalysisService wires the analysis service.
func NewConstraintAnalysisService(
	constraints snapshotConstraintReader,
	grids snapshotGridReader,
	groups snapshotGroupReader,
	timetables timetableReader,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ConstraintAnalysisConfig,
) *ConstraintAnalysisService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConstraintAnalysisService{
		constraints: constraints,
		grids:       grids,
		groups:      groups,
		timetables:  timetables,
		analyzer:    NewConstraintAnalyzer(cfg.ElectiveFallback),
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cacheTTL:    cfg.CacheTTL,
	}
}

// AnalyzeLesson analyses one lesson and reports whether the result came from the cache.
// An unresolvable lesson yields Available=false, not an error.
func (s *ConstraintAnalysisService) AnalyzeLesson(ctx context.Context, academicYearID string, lesson models.LessonRef) (*models.AnalysisResult, bool, error) {
	if academicYearID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "academicYearId is required")
	}
	if err := s.validator.Struct(lesson); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson")
	}

	key := AnalysisCacheKey(academicYearID, lesson)
	var cached models.AnalysisResult
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	start := time.Now()
	snap, err := s.LoadSnapshot(ctx, academicYearID)
	if err != nil {
		return nil, false, err
	}
	result := s.analyzer.Analyze(snap, &lesson)
	s.metrics.ObserveAnalysis("lesson", time.Since(start))

	if !result.Available {
		s.logger.Debug("lesson analysis unavailable",
			zap.String("academic_year_id", academicYearID),
			zap.String("class_group_id", lesson.ClassGroupID),
			zap.String("reason", result.Reason))
		return &result, false, nil
	}
	s.metrics.RecordReport(result.Report)
	s.cache.Set(ctx, key, result, s.cacheTTL)
	return &result, false, nil
}

// AnalyzeTimetable analyses every distinct lesson of a generated timetable against one snapshot.
func (s *ConstraintAnalysisService) AnalyzeTimetable(ctx context.Context, timetableID string) (*models.TimetableAnalysis, error) {
	timetable, err := s.timetables.FindByID(ctx, timetableID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Internal(err, "failed to load timetable")
	}

	start := time.Now()
	snap, err := s.LoadSnapshot(ctx, timetable.AcademicYearID)
	if err != nil {
		return nil, err
	}

	refs := timetable.DistinctLessons()
	analysis := &models.TimetableAnalysis{
		TimetableID:    timetable.ID,
		AcademicYearID: timetable.AcademicYearID,
		Lessons:        make([]models.LessonAnalysis, 0, len(refs)),
	}
	for i := range refs {
		result := s.analyzer.Analyze(snap, &refs[i])
		analysis.Lessons = append(analysis.Lessons, models.LessonAnalysis{
			Lesson:    refs[i],
			Available: result.Available,
			Reason:    result.Reason,
			Report:    result.Report,
		})
		countLesson(&analysis.Counters, result)
		s.metrics.RecordReport(result.Report)
	}
	analysis.GeneratedAt = time.Now().UTC()
	s.metrics.ObserveAnalysis("timetable", time.Since(start))

	s.logger.Info("timetable analysed",
		zap.String("timetable_id", timetable.ID),
		zap.Int("lessons", analysis.Counters.Lessons),
		zap.Int("errors", analysis.Counters.Errors),
		zap.Int("suggestions", analysis.Counters.Suggestions))
	return analysis, nil
}

// LoadSnapshot reads the constraint data of one academic year.
func (s *ConstraintAnalysisService) LoadSnapshot(ctx context.Context, academicYearID string) (*AnalysisSnapshot, error) {
	constraints, err := s.constraints.List(ctx, models.ConstraintFilter{AcademicYearID: academicYearID})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load constraints")
	}
	grids, err := s.grids.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load time grids")
	}
	groups, err := s.groups.List(ctx, "")
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load class groups")
	}
	subjects, err := s.groups.ListSubjects(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load subjects")
	}
	return NewAnalysisSnapshot(academicYearID, constraints, grids, groups, subjects), nil
}

// WorstStatus returns the more severe of the report's availability and saturation statuses.
func WorstStatus(report *models.ConstraintAnalysisReport) models.AnalysisStatus {
	rank := map[models.AnalysisStatus]int{models.StatusOK: 0, models.StatusWarning: 1, models.StatusError: 2}
	a, b := report.TeacherAvailability.Status, report.GroupSaturation.Status
	if rank[b] > rank[a] {
		return b
	}
	return a
}

func countLesson(counters *models.AnalysisCounters, result models.AnalysisResult) {
	counters.Lessons++
	if !result.Available {
		counters.Unavailable++
		return
	}
	switch WorstStatus(result.Report) {
	case models.StatusError:
		counters.Errors++
	case models.StatusWarning:
		counters.Warnings++
	default:
		counters.OK++
	}
	if result.Report.Suggestion != nil {
		counters.Suggestions++
	}
}
