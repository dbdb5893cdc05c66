package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// ClassGroupRepository reads class groups and the subjects they are taught.
type ClassGroupRepository struct {
	db *sqlx.DB
}

// NewClassGroupRepository constructs the repository.
func NewClassGroupRepository(db *sqlx.DB) *ClassGroupRepository {
	return &ClassGroupRepository{db: db}
}

// List returns class groups, optionally narrowed to one grid.
func (r *ClassGroupRepository) List(ctx context.Context, timeGridID string) ([]models.ClassGroup, error) {
	query := `SELECT id, name, time_grid_id, subject_ids, created_at, updated_at FROM class_groups`
	var args []interface{}
	if timeGridID != "" {
		query += ` WHERE time_grid_id = $1`
		args = append(args, timeGridID)
	}
	query += ` ORDER BY name ASC`

	var groups []models.ClassGroup
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, fmt.Errorf("list class groups: %w", err)
	}
	return groups, nil
}

// FindByID loads one class group.
func (r *ClassGroupRepository) FindByID(ctx context.Context, id string) (*models.ClassGroup, error) {
	const query = `SELECT id, name, time_grid_id, subject_ids, created_at, updated_at FROM class_groups WHERE id = $1`
	var group models.ClassGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// ListSubjects returns every subject with its elective group.
func (r *ClassGroupRepository) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	const query = `SELECT id, name, elective_group FROM subjects ORDER BY name ASC`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}
