package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

const constraintResource = "time_constraint"

type constraintStore interface {
	List(ctx context.Context, filter models.ConstraintFilter) ([]models.TimeConstraint, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeConstraint, error)
	Create(ctx context.Context, exec sqlx.ExtContext, c *models.TimeConstraint) error
	Update(ctx context.Context, exec sqlx.ExtContext, c *models.TimeConstraint) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	DeleteTeacherUnavailability(ctx context.Context, exec sqlx.ExtContext, academicYearID, teacherID string, periodIDs []string) (int64, error)
}

type constraintGridReader interface {
	List(ctx context.Context) ([]models.TimeGrid, error)
	FindByID(ctx context.Context, id string) (*models.TimeGrid, error)
}

type auditWriter interface {
	Create(ctx context.Context, exec sqlx.ExtContext, log *models.AuditLog) error
}

type txBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// ConstraintService owns the constraint store: CRUD plus applying suggested fixes.
type ConstraintService struct {
	repo      constraintStore
	grids     constraintGridReader
	audit     auditWriter
	tx        txBeginner
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewConstraintService wires the constraint store owner.
func NewConstraintService(repo constraintStore, grids constraintGridReader, audit auditWriter, tx txBeginner, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ConstraintService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConstraintService{
		repo:      repo,
		grids:     grids,
		audit:     audit,
		tx:        tx,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// List returns constraints of an academic year.
func (s *ConstraintService) List(ctx context.Context, filter models.ConstraintFilter) ([]models.TimeConstraint, error) {
	if filter.AcademicYearID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "academicYearId is required")
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown constraint type %q", filter.Type))
	}
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list constraints")
	}
	return items, nil
}

// Get returns a single constraint.
func (s *ConstraintService) Get(ctx context.Context, id string) (*models.TimeConstraint, error) {
	c, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, s.translateLookup(err)
	}
	return c, nil
}

// Create validates and stores a new constraint.
func (s *ConstraintService) Create(ctx context.Context, c models.TimeConstraint, actor models.Actor) (*models.TimeConstraint, error) {
	c.ID = ""
	if err := s.validateConstraint(ctx, &c); err != nil {
		return nil, err
	}
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repo.Create(ctx, tx, &c); err != nil {
			return appErrors.Internal(err, "failed to create constraint")
		}
		return s.writeAudit(ctx, tx, actor, models.AuditActionConstraintCreate, c.ID, nil, c)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, c.AcademicYearID)
	return &c, nil
}

// Update replaces the rule of an existing constraint. The academic year cannot change.
func (s *ConstraintService) Update(ctx context.Context, id string, c models.TimeConstraint, actor models.Actor) (*models.TimeConstraint, error) {
	var updated *models.TimeConstraint
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return s.translateLookup(err)
		}
		c.ID = existing.ID
		c.AcademicYearID = existing.AcademicYearID
		c.CreatedAt = existing.CreatedAt
		if err := s.validateConstraint(ctx, &c); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, &c); err != nil {
			return appErrors.Internal(err, "failed to update constraint")
		}
		updated = &c
		return s.writeAudit(ctx, tx, actor, models.AuditActionConstraintUpdate, id, existing, c)
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, updated.AcademicYearID)
	return updated, nil
}

// Delete removes a constraint.
func (s *ConstraintService) Delete(ctx context.Context, id string, actor models.Actor) error {
	var academicYearID string
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return s.translateLookup(err)
		}
		academicYearID = existing.AcademicYearID
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return s.translateLookup(err)
		}
		return s.writeAudit(ctx, tx, actor, models.AuditActionConstraintDelete, id, existing, nil)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, academicYearID)
	return nil
}

// ApplyFix executes a suggested fix against the store in one transaction.
func (s *ConstraintService) ApplyFix(ctx context.Context, academicYearID string, action models.FixAction, actor models.Actor) (*models.FixResult, error) {
	if academicYearID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "academicYearId is required")
	}
	if err := action.Validate(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidFix.Code, appErrors.ErrInvalidFix.Status, err.Error())
	}

	var (
		changed int64
		err     error
	)
	switch action.Kind {
	case models.FixClearTeacherUnavailability:
		changed, err = s.clearTeacherUnavailability(ctx, academicYearID, *action.ClearTeacherUnavailability, actor)
	case models.FixRelaxSubjectRule:
		changed, err = s.relaxSubjectRule(ctx, academicYearID, *action.RelaxSubjectRule, actor)
	}
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, academicYearID)
	s.metrics.RecordFixApplied(action.Kind)
	s.logger.Info("fix applied",
		zap.String("academic_year_id", academicYearID),
		zap.String("kind", string(action.Kind)),
		zap.Int64("changed", changed),
		zap.String("actor", actor.UserID),
		zap.String("request_id", requestid.FromContext(ctx)))
	return &models.FixResult{Action: action, Changed: int(changed)}, nil
}

func (s *ConstraintService) clearTeacherUnavailability(ctx context.Context, academicYearID string, payload models.ClearTeacherUnavailability, actor models.Actor) (int64, error) {
	grid, err := s.grids.FindByID(ctx, payload.GridID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, appErrors.Clone(appErrors.ErrInvalidFix, "time grid not found")
		}
		return 0, appErrors.Internal(err, "failed to load time grid")
	}
	periodIDs := make([]string, 0, len(grid.Periods))
	for _, period := range grid.Periods {
		periodIDs = append(periodIDs, period.ID)
	}

	var changed int64
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		n, err := s.repo.DeleteTeacherUnavailability(ctx, tx, academicYearID, payload.TeacherID, periodIDs)
		if err != nil {
			return appErrors.Internal(err, "failed to clear teacher unavailability")
		}
		changed = n
		return s.writeAudit(ctx, tx, actor, models.AuditActionApplyFix, payload.TeacherID, nil, map[string]interface{}{
			"action":  models.NewClearTeacherUnavailability(payload.TeacherID, payload.GridID),
			"deleted": n,
		})
	})
	return changed, err
}

func (s *ConstraintService) relaxSubjectRule(ctx context.Context, academicYearID string, payload models.RelaxSubjectRule, actor models.Actor) (int64, error) {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := s.repo.FindByID(ctx, tx, payload.ConstraintID)
		if err != nil {
			return s.translateLookup(err)
		}
		if existing.AcademicYearID != academicYearID {
			return appErrors.Clone(appErrors.ErrInvalidFix, "constraint belongs to another academic year")
		}
		rule, ok := existing.SubjectRule()
		if !ok {
			return appErrors.Clone(appErrors.ErrInvalidFix, "constraint is not a subject rule")
		}
		relaxed, err := relaxRule(rule, payload)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInvalidFix.Code, appErrors.ErrInvalidFix.Status, err.Error())
		}

		next := *existing
		next.Rule = relaxed
		if err := s.repo.Update(ctx, tx, &next); err != nil {
			return appErrors.Internal(err, "failed to update subject rule")
		}
		return s.writeAudit(ctx, tx, actor, models.AuditActionApplyFix, existing.ID, existing, next)
	})
	if err != nil {
		return 0, err
	}
	return 1, nil
}

func relaxRule(rule models.SubjectRule, payload models.RelaxSubjectRule) (models.SubjectRule, error) {
	switch payload.Field {
	case models.RelaxMustBeEveryDay:
		v, err := payload.BoolValue()
		if err != nil {
			return rule, err
		}
		rule.MustBeEveryDay = &v
	case models.RelaxMaxPeriodsPerDay:
		v, err := payload.MaxPeriodsValue()
		if err != nil {
			return rule, err
		}
		rule.MaxPeriodsPerDay = v
	default:
		return rule, fmt.Errorf("unsupported field %q", payload.Field)
	}
	return rule, nil
}

func (s *ConstraintService) validateConstraint(ctx context.Context, c *models.TimeConstraint) error {
	if c.AcademicYearID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "academicYearId is required")
	}
	if c.Rule == nil {
		return appErrors.Clone(appErrors.ErrValidation, "constraint type is required")
	}
	if err := s.validator.Struct(c.Rule); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid %s constraint", c.Type()))
	}

	rule, ok := c.NotAvailable()
	if !ok {
		return nil
	}
	grids, err := s.grids.List(ctx)
	if err != nil {
		return appErrors.Internal(err, "failed to load time grids")
	}
	for i := range grids {
		if grids[i].HasPeriod(rule.PeriodID) {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("period %q does not exist in any time grid", rule.PeriodID))
}

func (s *ConstraintService) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Internal(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Internal(err, "failed to commit transaction")
	}
	return nil
}

func (s *ConstraintService) writeAudit(ctx context.Context, exec sqlx.ExtContext, actor models.Actor, action, resourceID string, oldValue, newValue interface{}) error {
	entry := &models.AuditLog{
		Action:     action,
		Resource:   constraintResource,
		ResourceID: &resourceID,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}
	if actor.UserID != "" {
		entry.UserID = &actor.UserID
	}
	var err error
	if entry.OldValues, err = marshalAuditValue(oldValue); err != nil {
		return appErrors.Internal(err, "failed to encode audit values")
	}
	if entry.NewValues, err = marshalAuditValue(newValue); err != nil {
		return appErrors.Internal(err, "failed to encode audit values")
	}
	if err := s.audit.Create(ctx, exec, entry); err != nil {
		return appErrors.Internal(err, "failed to write audit log")
	}
	return nil
}

func marshalAuditValue(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if c, ok := v.(*models.TimeConstraint); ok && c == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func (s *ConstraintService) invalidate(ctx context.Context, academicYearID string) {
	if err := s.cache.Invalidate(ctx, AnalysisCachePattern(academicYearID)); err != nil {
		s.logger.Warn("failed to invalidate analysis cache", zap.String("academic_year_id", academicYearID), zap.Error(err))
	}
}

func (s *ConstraintService) translateLookup(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "constraint not found")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Internal(err, "failed to load constraint")
}
