package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const constraintColumns = `id, academic_year_id, type, target_id, payload, created_at, updated_at`

type constraintRow struct {
	ID             string                `db:"id"`
	AcademicYearID string                `db:"academic_year_id"`
	Type           models.ConstraintType `db:"type"`
	TargetID       string                `db:"target_id"`
	Payload        types.JSONText        `db:"payload"`
	CreatedAt      time.Time             `db:"created_at"`
	UpdatedAt      time.Time             `db:"updated_at"`
}

func (r constraintRow) toModel() (models.TimeConstraint, error) {
	rule, err := models.DecodeConstraintRule(r.Type, r.Payload)
	if err != nil {
		return models.TimeConstraint{}, fmt.Errorf("constraint %s: %w", r.ID, err)
	}
	return models.TimeConstraint{
		ID:             r.ID,
		AcademicYearID: r.AcademicYearID,
		Rule:           rule,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}, nil
}

func newConstraintRow(c *models.TimeConstraint) (constraintRow, error) {
	if c.Rule == nil {
		return constraintRow{}, fmt.Errorf("constraint rule is nil")
	}
	payload, err := json.Marshal(c.Rule)
	if err != nil {
		return constraintRow{}, fmt.Errorf("marshal constraint payload: %w", err)
	}
	return constraintRow{
		ID:             c.ID,
		AcademicYearID: c.AcademicYearID,
		Type:           c.Type(),
		TargetID:       c.Rule.TargetKey(),
		Payload:        types.JSONText(payload),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}, nil
}

// ConstraintRepository persists time constraints. The variant payload lives in a JSONB column.
type ConstraintRepository struct {
	db *sqlx.DB
}

// NewConstraintRepository constructs the repository.
func NewConstraintRepository(db *sqlx.DB) *ConstraintRepository {
	return &ConstraintRepository{db: db}
}

func (r *ConstraintRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns the constraints of an academic year in creation order.
func (r *ConstraintRepository) List(ctx context.Context, filter models.ConstraintFilter) ([]models.TimeConstraint, error) {
	conditions := []string{"academic_year_id = $1"}
	args := []interface{}{filter.AcademicYearID}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.TargetID != "" {
		args = append(args, filter.TargetID)
		conditions = append(conditions, fmt.Sprintf("target_id = $%d", len(args)))
	}

	query := fmt.Sprintf("SELECT %s FROM time_constraints WHERE %s ORDER BY created_at ASC, id ASC", constraintColumns, strings.Join(conditions, " AND "))
	var rows []constraintRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list constraints: %w", err)
	}

	constraints := make([]models.TimeConstraint, 0, len(rows))
	for _, row := range rows {
		c, err := row.toModel()
		if err != nil {
			return nil, err
		}
		constraints = append(constraints, c)
	}
	return constraints, nil
}

// FindByID loads a constraint. It returns sql.ErrNoRows when missing.
func (r *ConstraintRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeConstraint, error) {
	query := fmt.Sprintf("SELECT %s FROM time_constraints WHERE id = $1", constraintColumns)
	if exec != nil {
		query += " FOR UPDATE"
	}
	var row constraintRow
	if err := sqlx.GetContext(ctx, r.exec(exec), &row, query, id); err != nil {
		return nil, err
	}
	c, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new constraint.
func (r *ConstraintRepository) Create(ctx context.Context, exec sqlx.ExtContext, c *models.TimeConstraint) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	row, err := newConstraintRow(c)
	if err != nil {
		return err
	}
	const query = `INSERT INTO time_constraints (id, academic_year_id, type, target_id, payload, created_at, updated_at)
VALUES (:id, :academic_year_id, :type, :target_id, :payload, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, row); err != nil {
		return fmt.Errorf("create constraint: %w", err)
	}
	return nil
}

// Update rewrites the payload of an existing constraint.
func (r *ConstraintRepository) Update(ctx context.Context, exec sqlx.ExtContext, c *models.TimeConstraint) error {
	c.UpdatedAt = time.Now().UTC()
	row, err := newConstraintRow(c)
	if err != nil {
		return err
	}
	const query = `UPDATE time_constraints SET type = :type, target_id = :target_id, payload = :payload, updated_at = :updated_at WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, row)
	if err != nil {
		return fmt.Errorf("update constraint: %w", err)
	}
	return expectAffected(result, "update constraint")
}

// Delete removes a constraint. It returns sql.ErrNoRows when nothing was deleted.
func (r *ConstraintRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM time_constraints WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete constraint: %w", err)
	}
	return expectAffected(result, "delete constraint")
}

// DeleteTeacherUnavailability removes a teacher's not-available slots on the given periods.
func (r *ConstraintRepository) DeleteTeacherUnavailability(ctx context.Context, exec sqlx.ExtContext, academicYearID, teacherID string, periodIDs []string) (int64, error) {
	if len(periodIDs) == 0 {
		return 0, nil
	}
	const query = `DELETE FROM time_constraints
WHERE academic_year_id = $1 AND type = $2 AND target_id = $3
AND payload->>'targetType' = $4 AND payload->>'periodId' = ANY($5)`
	result, err := r.exec(exec).ExecContext(ctx, query,
		academicYearID, models.ConstraintNotAvailable, teacherID, models.TargetTeacher, pq.Array(periodIDs))
	if err != nil {
		return 0, fmt.Errorf("delete teacher unavailability: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("teacher unavailability rows affected: %w", err)
	}
	return affected, nil
}

func expectAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
