package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TimetableStatus tracks a generated timetable's lifecycle.
type TimetableStatus string

const (
	TimetableDraft     TimetableStatus = "draft"
	TimetablePublished TimetableStatus = "published"
)

// TimetableLesson places one lesson on the grid.
type TimetableLesson struct {
	ClassGroupID string `json:"classGroupId"`
	SubjectID    string `json:"subjectId"`
	TeacherID    string `json:"teacherId"`
	Day          string `json:"day"`
	PeriodID     string `json:"periodId"`
	Duration     int    `json:"duration"`
}

// Ref drops the placement and keeps the lesson tuple.
func (l TimetableLesson) Ref() LessonRef {
	duration := l.Duration
	if duration < 1 {
		duration = 1
	}
	return LessonRef{ClassGroupID: l.ClassGroupID, SubjectID: l.SubjectID, TeacherID: l.TeacherID, Duration: duration}
}

// TimetableLessons is persisted as a JSON array.
type TimetableLessons []TimetableLesson

// Value marshals lessons for persistence.
func (l TimetableLessons) Value() (driver.Value, error) {
	if l == nil {
		l = TimetableLessons{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal timetable lessons: %w", err)
	}
	return data, nil
}

// Scan unmarshals lessons from a JSON column.
func (l *TimetableLessons) Scan(value interface{}) error {
	return scanJSON(value, l, "timetable lessons")
}

// GeneratedTimetable is solver output imported for analysis.
type GeneratedTimetable struct {
	ID             string           `db:"id" json:"id"`
	AcademicYearID string           `db:"academic_year_id" json:"academicYearId"`
	Name           string           `db:"name" json:"name"`
	Status         TimetableStatus  `db:"status" json:"status"`
	Lessons        TimetableLessons `db:"lessons" json:"lessons"`
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
}

// DistinctLessons returns each lesson tuple once, in first-seen order.
func (t *GeneratedTimetable) DistinctLessons() []LessonRef {
	if t == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(t.Lessons))
	refs := make([]LessonRef, 0, len(t.Lessons))
	for _, lesson := range t.Lessons {
		ref := lesson.Ref()
		if _, ok := seen[ref.Key()]; ok {
			continue
		}
		seen[ref.Key()] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}

// LessonAnalysis is one row of a timetable-wide analysis.
type LessonAnalysis struct {
	Lesson    LessonRef                 `json:"lesson"`
	Available bool                      `json:"available"`
	Reason    string                    `json:"reason,omitempty"`
	Report    *ConstraintAnalysisReport `json:"report,omitempty"`
}

// AnalysisCounters aggregate statuses across a timetable.
type AnalysisCounters struct {
	Lessons     int `json:"lessons"`
	Unavailable int `json:"unavailable"`
	Errors      int `json:"errors"`
	Warnings    int `json:"warnings"`
	OK          int `json:"ok"`
	Suggestions int `json:"suggestions"`
}

// TimetableAnalysis is the audit of every distinct lesson in a timetable.
type TimetableAnalysis struct {
	TimetableID    string           `json:"timetableId"`
	AcademicYearID string           `json:"academicYearId"`
	Counters       AnalysisCounters `json:"counters"`
	Lessons        []LessonAnalysis `json:"lessons"`
	GeneratedAt    time.Time        `json:"generatedAt"`
}

// AnalysisResult wraps a single lesson analysis, which may be unavailable.
type AnalysisResult struct {
	Available bool                      `json:"available"`
	Reason    string                    `json:"reason,omitempty"`
	Report    *ConstraintAnalysisReport `json:"report,omitempty"`
}
