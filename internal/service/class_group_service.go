package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type classGroupRepository interface {
	List(ctx context.Context, timeGridID string) ([]models.ClassGroup, error)
	FindByID(ctx context.Context, id string) (*models.ClassGroup, error)
	ListSubjects(ctx context.Context) ([]models.Subject, error)
}

// ClassGroupService exposes class groups and the subjects they are taught.
type ClassGroupService struct {
	repo classGroupRepository
}

// NewClassGroupService constructs a ClassGroupService.
func NewClassGroupService(repo classGroupRepository) *ClassGroupService {
	return &ClassGroupService{repo: repo}
}

// List returns class groups, optionally restricted to one time grid.
func (s *ClassGroupService) List(ctx context.Context, timeGridID string) ([]models.ClassGroup, error) {
	groups, err := s.repo.List(ctx, timeGridID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list class groups")
	}
	return groups, nil
}

// Get returns one class group.
func (s *ClassGroupService) Get(ctx context.Context, id string) (*models.ClassGroup, error) {
	group, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class group not found")
		}
		return nil, appErrors.Internal(err, "failed to load class group")
	}
	return group, nil
}

// Subjects returns every subject with its elective group.
func (s *ClassGroupService) Subjects(ctx context.Context) ([]models.Subject, error) {
	subjects, err := s.repo.ListSubjects(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list subjects")
	}
	return subjects, nil
}
