package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

const clockLayout = "15:04"

type timeGridRepository interface {
	List(ctx context.Context) ([]models.TimeGrid, error)
	FindByID(ctx context.Context, id string) (*models.TimeGrid, error)
	Upsert(ctx context.Context, grid *models.TimeGrid) error
}

// TimeGridService manages the day × period grids.
type TimeGridService struct {
	repo      timeGridRepository
	audit     auditWriter
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimeGridService constructs a TimeGridService.
func NewTimeGridService(repo timeGridRepository, audit auditWriter, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *TimeGridService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeGridService{repo: repo, audit: audit, cache: cache, validator: validate, logger: logger}
}

// List returns every grid.
func (s *TimeGridService) List(ctx context.Context) ([]models.TimeGrid, error) {
	grids, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list time grids")
	}
	return grids, nil
}

// Get returns one grid.
func (s *TimeGridService) Get(ctx context.Context, id string) (*models.TimeGrid, error) {
	grid, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "time grid not found")
		}
		return nil, appErrors.Internal(err, "failed to load time grid")
	}
	return grid, nil
}

// Upsert validates and stores a grid under the given id.
func (s *TimeGridService) Upsert(ctx context.Context, id string, grid models.TimeGrid, actor models.Actor) (*models.TimeGrid, error) {
	grid.ID = id
	if err := s.validateGrid(&grid); err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, &grid); err != nil {
		return nil, appErrors.Internal(err, "failed to save time grid")
	}

	if s.audit != nil {
		payload, _ := json.Marshal(grid)
		entry := &models.AuditLog{
			Action:     models.AuditActionTimeGridUpsert,
			Resource:   "time_grid",
			ResourceID: &grid.ID,
			NewValues:  payload,
			IPAddress:  actor.IP,
			UserAgent:  actor.UserAgent,
		}
		if actor.UserID != "" {
			entry.UserID = &actor.UserID
		}
		if err := s.audit.Create(ctx, nil, entry); err != nil {
			s.logger.Warn("failed to record time grid audit log", zap.Error(err))
		}
	}

	// Grids are shared across academic years.
	if err := s.cache.Invalidate(ctx, "analysis:*"); err != nil {
		s.logger.Warn("failed to invalidate analysis cache", zap.Error(err))
	}
	return &grid, nil
}

func (s *TimeGridService) validateGrid(grid *models.TimeGrid) error {
	invalid := func(msg string) error {
		return appErrors.Clone(appErrors.ErrValidation, msg)
	}
	if grid.ID == "" {
		return invalid("id is required")
	}
	if grid.Name == "" {
		return invalid("name is required")
	}
	if len(grid.Days) == 0 {
		return invalid("days must not be empty")
	}
	if len(grid.Periods) == 0 {
		return invalid("periods must not be empty")
	}

	days := make(map[string]struct{}, len(grid.Days))
	for _, day := range grid.Days {
		if day == "" {
			return invalid("day names must not be empty")
		}
		if _, dup := days[day]; dup {
			return invalid(fmt.Sprintf("duplicate day %q", day))
		}
		days[day] = struct{}{}
	}

	ids := make(map[string]struct{}, len(grid.Periods))
	for i, period := range grid.Periods {
		if err := s.validator.Struct(period); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid period at index %d", i))
		}
		if _, dup := ids[period.ID]; dup {
			return invalid(fmt.Sprintf("duplicate period id %q", period.ID))
		}
		ids[period.ID] = struct{}{}

		start, err := time.Parse(clockLayout, period.StartTime)
		if err != nil {
			return invalid(fmt.Sprintf("period %q startTime must be HH:MM", period.ID))
		}
		end, err := time.Parse(clockLayout, period.EndTime)
		if err != nil {
			return invalid(fmt.Sprintf("period %q endTime must be HH:MM", period.ID))
		}
		if !start.Before(end) {
			return invalid(fmt.Sprintf("period %q must start before it ends", period.ID))
		}
	}
	return nil
}
