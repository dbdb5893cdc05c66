package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConstraintType discriminates the TimeConstraint variants.
type ConstraintType string

const (
	ConstraintNotAvailable          ConstraintType = "not-available"
	ConstraintTeacherMaxPeriodsDay  ConstraintType = "teacher-max-periods-day"
	ConstraintTeacherMaxConsecutive ConstraintType = "teacher-max-consecutive"
	ConstraintSubjectRule           ConstraintType = "subject-rule"
)

// Valid reports whether t names a known variant.
func (t ConstraintType) Valid() bool {
	switch t {
	case ConstraintNotAvailable, ConstraintTeacherMaxPeriodsDay, ConstraintTeacherMaxConsecutive, ConstraintSubjectRule:
		return true
	}
	return false
}

// TargetType names what a not-available slot blocks.
type TargetType string

const (
	TargetTeacher    TargetType = "teacher"
	TargetClassGroup TargetType = "class-group"
	TargetRoom       TargetType = "room"
)

// PreferredTime biases a subject towards one half of the day.
type PreferredTime string

const (
	PreferredMorning   PreferredTime = "morning"
	PreferredAfternoon PreferredTime = "afternoon"
)

// ConstraintRule is implemented by every TimeConstraint variant.
type ConstraintRule interface {
	ConstraintType() ConstraintType
	// TargetKey is the id the constraint is indexed by: a teacher, class group or room.
	TargetKey() string
}

// NotAvailable blocks a single day/period slot for a target.
type NotAvailable struct {
	TargetType TargetType `json:"targetType" validate:"required,oneof=teacher class-group room"`
	TargetID   string     `json:"targetId" validate:"required"`
	Day        string     `json:"day" validate:"required"`
	PeriodID   string     `json:"periodId" validate:"required"`
}

func (NotAvailable) ConstraintType() ConstraintType { return ConstraintNotAvailable }
func (r NotAvailable) TargetKey() string            { return r.TargetID }

// BlocksTeacher reports whether the slot belongs to the given teacher.
func (r NotAvailable) BlocksTeacher(teacherID string) bool {
	return r.TargetType == TargetTeacher && r.TargetID == teacherID
}

// TeacherMaxPeriodsDay caps the periods a teacher can teach per day.
type TeacherMaxPeriodsDay struct {
	TeacherID  string `json:"teacherId" validate:"required"`
	MaxPeriods int    `json:"maxPeriods" validate:"min=1"`
}

func (TeacherMaxPeriodsDay) ConstraintType() ConstraintType { return ConstraintTeacherMaxPeriodsDay }
func (r TeacherMaxPeriodsDay) TargetKey() string            { return r.TeacherID }

// TeacherMaxConsecutive caps back-to-back periods for a teacher.
type TeacherMaxConsecutive struct {
	TeacherID      string `json:"teacherId" validate:"required"`
	MaxConsecutive int    `json:"maxConsecutive" validate:"min=1"`
}

func (TeacherMaxConsecutive) ConstraintType() ConstraintType { return ConstraintTeacherMaxConsecutive }
func (r TeacherMaxConsecutive) TargetKey() string            { return r.TeacherID }

// LessonDefinition asks for Count lessons of Duration consecutive periods.
type LessonDefinition struct {
	Count    int `json:"count" validate:"min=1"`
	Duration int `json:"duration" validate:"min=1"`
}

// SubjectRule holds the scheduling rules of one subject within one class group.
type SubjectRule struct {
	SubjectID         string             `json:"subjectId" validate:"required"`
	ClassGroupID      string             `json:"classGroupId" validate:"required"`
	ElectiveGroup     *string            `json:"electiveGroup,omitempty"`
	LessonDefinitions []LessonDefinition `json:"lessonDefinitions" validate:"required,min=1,dive"`
	MinDaysApart      int                `json:"minDaysApart" validate:"min=0"`
	MaxPeriodsPerDay  *int               `json:"maxPeriodsPerDay,omitempty" validate:"omitempty,min=1"`
	MaxConsecutive    *int               `json:"maxConsecutive,omitempty" validate:"omitempty,min=1"`
	MustBeEveryDay    *bool              `json:"mustBeEveryDay,omitempty"`
	PreferredTime     *PreferredTime     `json:"preferredTime,omitempty" validate:"omitempty,oneof=morning afternoon"`
}

func (SubjectRule) ConstraintType() ConstraintType { return ConstraintSubjectRule }
func (r SubjectRule) TargetKey() string            { return r.ClassGroupID }

// RequiredPeriods is the weekly number of periods the rule claims.
func (r SubjectRule) RequiredPeriods() int {
	total := 0
	for _, def := range r.LessonDefinitions {
		total += def.Count * def.Duration
	}
	return total
}

// RequiresEveryDay reports whether mustBeEveryDay is set and true.
func (r SubjectRule) RequiresEveryDay() bool {
	return r.MustBeEveryDay != nil && *r.MustBeEveryDay
}

// TimeConstraint is one entry of the constraint store for an academic year.
type TimeConstraint struct {
	ID             string
	AcademicYearID string
	Rule           ConstraintRule
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Type returns the variant discriminator.
func (c TimeConstraint) Type() ConstraintType {
	if c.Rule == nil {
		return ""
	}
	return c.Rule.ConstraintType()
}

// NotAvailable returns the not-available payload when c holds one.
func (c TimeConstraint) NotAvailable() (NotAvailable, bool) {
	rule, ok := c.Rule.(NotAvailable)
	return rule, ok
}

// SubjectRule returns the subject-rule payload when c holds one.
func (c TimeConstraint) SubjectRule() (SubjectRule, bool) {
	rule, ok := c.Rule.(SubjectRule)
	return rule, ok
}

type constraintEnvelope struct {
	ID             string         `json:"id,omitempty"`
	AcademicYearID string         `json:"academicYearId,omitempty"`
	Type           ConstraintType `json:"type"`
	CreatedAt      *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt      *time.Time     `json:"updatedAt,omitempty"`
}

// MarshalJSON flattens the variant payload next to the envelope fields.
func (c TimeConstraint) MarshalJSON() ([]byte, error) {
	if c.Rule == nil {
		return nil, fmt.Errorf("constraint %s has no rule", c.ID)
	}
	payload, err := json.Marshal(c.Rule)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	env := constraintEnvelope{ID: c.ID, AcademicYearID: c.AcademicYearID, Type: c.Type()}
	if !c.CreatedAt.IsZero() {
		env.CreatedAt = &c.CreatedAt
	}
	if !c.UpdatedAt.IsZero() {
		env.UpdatedAt = &c.UpdatedAt
	}
	head, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(head, &fields); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// UnmarshalJSON reads the envelope then decodes the payload by type.
func (c *TimeConstraint) UnmarshalJSON(data []byte) error {
	var env constraintEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	rule, err := DecodeConstraintRule(env.Type, data)
	if err != nil {
		return err
	}
	*c = TimeConstraint{ID: env.ID, AcademicYearID: env.AcademicYearID, Rule: rule}
	if env.CreatedAt != nil {
		c.CreatedAt = *env.CreatedAt
	}
	if env.UpdatedAt != nil {
		c.UpdatedAt = *env.UpdatedAt
	}
	return nil
}

// DecodeConstraintRule decodes a variant payload for the given type.
func DecodeConstraintRule(t ConstraintType, payload []byte) (ConstraintRule, error) {
	switch t {
	case ConstraintNotAvailable:
		var rule NotAvailable
		if err := json.Unmarshal(payload, &rule); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		return rule, nil
	case ConstraintTeacherMaxPeriodsDay:
		var rule TeacherMaxPeriodsDay
		if err := json.Unmarshal(payload, &rule); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		return rule, nil
	case ConstraintTeacherMaxConsecutive:
		var rule TeacherMaxConsecutive
		if err := json.Unmarshal(payload, &rule); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		return rule, nil
	case ConstraintSubjectRule:
		var rule SubjectRule
		if err := json.Unmarshal(payload, &rule); err != nil {
			return nil, fmt.Errorf("decode %s: %w", t, err)
		}
		return rule, nil
	default:
		return nil, fmt.Errorf("unknown constraint type %q", t)
	}
}

// ConstraintFilter narrows constraint listing.
type ConstraintFilter struct {
	AcademicYearID string
	Type           ConstraintType
	TargetID       string
}
