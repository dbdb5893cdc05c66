package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// TimetableRepository reads generated timetables imported from the solver.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs the repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// FindByID loads a timetable with its lessons.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.GeneratedTimetable, error) {
	const query = `SELECT id, academic_year_id, name, status, lessons, created_at FROM generated_timetables WHERE id = $1`
	var timetable models.GeneratedTimetable
	if err := r.db.GetContext(ctx, &timetable, query, id); err != nil {
		return nil, err
	}
	return &timetable, nil
}
