package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// TimeGridRepository persists time grids. Days and periods are stored as JSONB.
type TimeGridRepository struct {
	db *sqlx.DB
}

// NewTimeGridRepository constructs the repository.
func NewTimeGridRepository(db *sqlx.DB) *TimeGridRepository {
	return &TimeGridRepository{db: db}
}

// List returns every grid ordered by name.
func (r *TimeGridRepository) List(ctx context.Context) ([]models.TimeGrid, error) {
	const query = `SELECT id, name, days, periods, created_at, updated_at FROM time_grids ORDER BY name ASC`
	var grids []models.TimeGrid
	if err := r.db.SelectContext(ctx, &grids, query); err != nil {
		return nil, fmt.Errorf("list time grids: %w", err)
	}
	return grids, nil
}

// FindByID loads a grid by identifier.
func (r *TimeGridRepository) FindByID(ctx context.Context, id string) (*models.TimeGrid, error) {
	const query = `SELECT id, name, days, periods, created_at, updated_at FROM time_grids WHERE id = $1`
	var grid models.TimeGrid
	if err := r.db.GetContext(ctx, &grid, query, id); err != nil {
		return nil, err
	}
	return &grid, nil
}

// Upsert creates or replaces a grid.
func (r *TimeGridRepository) Upsert(ctx context.Context, grid *models.TimeGrid) error {
	if grid.ID == "" {
		grid.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grid.CreatedAt.IsZero() {
		grid.CreatedAt = now
	}
	grid.UpdatedAt = now

	const query = `INSERT INTO time_grids (id, name, days, periods, created_at, updated_at)
		VALUES (:id, :name, :days, :periods, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    days = EXCLUDED.days,
		    periods = EXCLUDED.periods,
		    updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, grid); err != nil {
		return fmt.Errorf("upsert time grid: %w", err)
	}
	return nil
}
