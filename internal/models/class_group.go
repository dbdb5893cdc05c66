package models

import "time"

// ClassGroup is a cohort of learners scheduled together against one time grid.
type ClassGroup struct {
	ID         string     `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	TimeGridID string     `db:"time_grid_id" json:"timeGridId"`
	SubjectIDs StringList `db:"subject_ids" json:"subjectIds"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
}

// HasSubject reports whether the subject is taught to the class group.
func (c *ClassGroup) HasSubject(subjectID string) bool {
	if c == nil {
		return false
	}
	for _, id := range c.SubjectIDs {
		if id == subjectID {
			return true
		}
	}
	return false
}

// Subject is a taught subject. Electives sharing an ElectiveGroup compete for the same slots.
type Subject struct {
	ID            string  `db:"id" json:"id"`
	Name          string  `db:"name" json:"name"`
	ElectiveGroup *string `db:"elective_group" json:"electiveGroup,omitempty"`
}

// InElectiveGroup reports whether the subject belongs to the named elective group.
func (s *Subject) InElectiveGroup(group string) bool {
	return s != nil && s.ElectiveGroup != nil && group != "" && *s.ElectiveGroup == group
}
