package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// PeriodType tags a grid period as teachable or not.
type PeriodType string

const (
	PeriodTypeLesson PeriodType = "Lesson"
	PeriodTypeBreak  PeriodType = "Break"
)

// Period is one row of a time grid.
type Period struct {
	ID        string     `json:"id" validate:"required"`
	Name      string     `json:"name"`
	Type      PeriodType `json:"type" validate:"required,oneof=Lesson Break"`
	StartTime string     `json:"startTime" validate:"required"`
	EndTime   string     `json:"endTime" validate:"required"`
}

// Periods is persisted as a JSON array.
type Periods []Period

// Value marshals periods for persistence.
func (p Periods) Value() (driver.Value, error) {
	if p == nil {
		p = Periods{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal periods: %w", err)
	}
	return data, nil
}

// Scan unmarshals periods from a JSON column.
func (p *Periods) Scan(value interface{}) error {
	return scanJSON(value, p, "periods")
}

// StringList is a JSON-encoded list of strings (grid day names).
type StringList []string

// Value marshals the list for persistence.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		s = StringList{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return data, nil
}

// Scan unmarshals the list from a JSON column.
func (s *StringList) Scan(value interface{}) error {
	return scanJSON(value, s, "string list")
}

// TimeGrid is the day × period coordinate system a class group is scheduled against.
type TimeGrid struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Days      StringList `db:"days" json:"days"`
	Periods   Periods    `db:"periods" json:"periods"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `db:"updated_at" json:"updatedAt"`
}

// LessonPeriods returns the number of Lesson-typed periods.
func (g *TimeGrid) LessonPeriods() int {
	if g == nil {
		return 0
	}
	count := 0
	for _, period := range g.Periods {
		if period.Type == PeriodTypeLesson {
			count++
		}
	}
	return count
}

// Capacity is days × lesson periods. Break periods never count.
func (g *TimeGrid) Capacity() int {
	if g == nil {
		return 0
	}
	return len(g.Days) * g.LessonPeriods()
}

// HasPeriod reports whether the grid defines a period with the given id.
func (g *TimeGrid) HasPeriod(periodID string) bool {
	if g == nil {
		return false
	}
	for _, period := range g.Periods {
		if period.ID == periodID {
			return true
		}
	}
	return false
}

// HasDay reports whether the grid schedules the given day.
func (g *TimeGrid) HasDay(day string) bool {
	if g == nil {
		return false
	}
	for _, d := range g.Days {
		if d == day {
			return true
		}
	}
	return false
}

func scanJSON(value interface{}, dest interface{}, label string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, label)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", label, err)
	}
	return nil
}
