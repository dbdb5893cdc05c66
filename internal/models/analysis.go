package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// AnalysisStatus grades a percentage against fixed thresholds.
type AnalysisStatus string

const (
	StatusOK      AnalysisStatus = "ok"
	StatusWarning AnalysisStatus = "warning"
	StatusError   AnalysisStatus = "error"
)

// LessonRef identifies the lesson under analysis.
type LessonRef struct {
	ClassGroupID string `json:"classGroupId" validate:"required"`
	SubjectID    string `json:"subjectId" validate:"required"`
	TeacherID    string `json:"teacherId" validate:"required"`
	Duration     int    `json:"duration" validate:"min=1"`
}

// Key is a stable identity for the lesson tuple.
func (l LessonRef) Key() string {
	return fmt.Sprintf("%s:%s:%s:%d", l.ClassGroupID, l.SubjectID, l.TeacherID, l.Duration)
}

// TeacherAvailability is the share of grid capacity a teacher has not blocked.
type TeacherAvailability struct {
	TeacherID   string         `json:"teacherId"`
	Total       int            `json:"total"`
	Unavailable int            `json:"unavailable"`
	Available   int            `json:"available"`
	Percent     float64        `json:"percent"`
	Status      AnalysisStatus `json:"status"`
}

// RuleMatchKind records how a subject rule was found.
type RuleMatchKind string

const (
	RuleMatchExact         RuleMatchKind = "exact"
	RuleMatchElectiveGroup RuleMatchKind = "elective-group"
)

// SubjectRuleMatch is the result of a subject-rule lookup.
type SubjectRuleMatch struct {
	Found        bool          `json:"found"`
	MatchedBy    RuleMatchKind `json:"matchedBy,omitempty"`
	ConstraintID string        `json:"constraintId,omitempty"`
	Rule         *SubjectRule  `json:"rule,omitempty"`
}

// SubjectLoad is one subject's contribution to a class group's saturation.
type SubjectLoad struct {
	SubjectID    string `json:"subjectId"`
	ConstraintID string `json:"constraintId,omitempty"`
	Periods      int    `json:"periods"`
}

// GroupSaturation is the share of grid capacity claimed by a class group's subject rules.
type GroupSaturation struct {
	ClassGroupID    string         `json:"classGroupId"`
	Total           int            `json:"total"`
	PeriodsRequired int            `json:"periodsRequired"`
	Percent         float64        `json:"percent"`
	Status          AnalysisStatus `json:"status"`
	Subjects        []SubjectLoad  `json:"subjects"`
}

// FixSuggestion pairs an actionable fix with a human readable summary.
type FixSuggestion struct {
	Action  FixAction `json:"action"`
	Message string    `json:"message"`
}

// ConstraintAnalysisReport is the engine output for one lesson.
type ConstraintAnalysisReport struct {
	Lesson              LessonRef           `json:"lesson"`
	GridID              string              `json:"gridId"`
	TeacherAvailability TeacherAvailability `json:"teacherAvailability"`
	SubjectRule         SubjectRuleMatch    `json:"subjectRule"`
	GroupSaturation     GroupSaturation     `json:"groupSaturation"`
	Suggestion          *FixSuggestion      `json:"suggestion,omitempty"`
}

// FixKind discriminates FixAction payloads.
type FixKind string

const (
	FixClearTeacherUnavailability FixKind = "CLEAR_TEACHER_UNAVAILABILITY"
	FixRelaxSubjectRule           FixKind = "RELAX_SUBJECT_RULE"
)

// RelaxField names the subject-rule field a relax fix rewrites.
type RelaxField string

const (
	RelaxMustBeEveryDay   RelaxField = "mustBeEveryDay"
	RelaxMaxPeriodsPerDay RelaxField = "maxPeriodsPerDay"
)

// ClearTeacherUnavailability removes a teacher's not-available slots on one grid.
type ClearTeacherUnavailability struct {
	TeacherID string `json:"teacherId"`
	GridID    string `json:"gridId"`
}

// RelaxSubjectRule rewrites one field of a subject rule.
type RelaxSubjectRule struct {
	ConstraintID string      `json:"constraintId"`
	Field        RelaxField  `json:"field"`
	NewValue     interface{} `json:"newValue"`
}

// BoolValue returns NewValue for mustBeEveryDay.
func (r RelaxSubjectRule) BoolValue() (bool, error) {
	v, ok := r.NewValue.(bool)
	if !ok {
		return false, fmt.Errorf("%s expects a boolean, got %T", r.Field, r.NewValue)
	}
	return v, nil
}

// MaxPeriodsValue returns NewValue for maxPeriodsPerDay. Nil clears the cap.
func (r RelaxSubjectRule) MaxPeriodsValue() (*int, error) {
	var n int
	switch v := r.NewValue.(type) {
	case nil:
		return nil, nil
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("%s expects an integer, got %v", r.Field, v)
		}
		n = int(v)
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("%s expects an integer: %w", r.Field, err)
		}
		n = int(parsed)
	default:
		return nil, fmt.Errorf("%s expects an integer or null, got %T", r.Field, r.NewValue)
	}
	if n < 1 {
		return nil, fmt.Errorf("%s must be positive", r.Field)
	}
	return &n, nil
}

// FixAction is a tagged union: exactly one payload matches Kind.
type FixAction struct {
	Kind                       FixKind
	ClearTeacherUnavailability *ClearTeacherUnavailability
	RelaxSubjectRule           *RelaxSubjectRule
}

// NewClearTeacherUnavailability builds a CLEAR_TEACHER_UNAVAILABILITY action.
func NewClearTeacherUnavailability(teacherID, gridID string) FixAction {
	return FixAction{
		Kind:                       FixClearTeacherUnavailability,
		ClearTeacherUnavailability: &ClearTeacherUnavailability{TeacherID: teacherID, GridID: gridID},
	}
}

// NewRelaxSubjectRule builds a RELAX_SUBJECT_RULE action.
func NewRelaxSubjectRule(constraintID string, field RelaxField, newValue interface{}) FixAction {
	return FixAction{
		Kind:             FixRelaxSubjectRule,
		RelaxSubjectRule: &RelaxSubjectRule{ConstraintID: constraintID, Field: field, NewValue: newValue},
	}
}

var errFixShape = errors.New("fix action must carry exactly one payload matching its type")

// Validate checks the payload shape without touching storage.
func (a FixAction) Validate() error {
	switch a.Kind {
	case FixClearTeacherUnavailability:
		p := a.ClearTeacherUnavailability
		if p == nil || a.RelaxSubjectRule != nil {
			return errFixShape
		}
		if p.TeacherID == "" || p.GridID == "" {
			return errors.New("teacherId and gridId are required")
		}
		return nil
	case FixRelaxSubjectRule:
		p := a.RelaxSubjectRule
		if p == nil || a.ClearTeacherUnavailability != nil {
			return errFixShape
		}
		if p.ConstraintID == "" {
			return errors.New("constraintId is required")
		}
		switch p.Field {
		case RelaxMustBeEveryDay:
			_, err := p.BoolValue()
			return err
		case RelaxMaxPeriodsPerDay:
			_, err := p.MaxPeriodsValue()
			return err
		default:
			return fmt.Errorf("unsupported field %q", p.Field)
		}
	default:
		return fmt.Errorf("unknown fix type %q", a.Kind)
	}
}

type fixEnvelope struct {
	Type    FixKind         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON encodes the action as {"type": ..., "payload": ...}.
func (a FixAction) MarshalJSON() ([]byte, error) {
	var payload interface{}
	switch a.Kind {
	case FixClearTeacherUnavailability:
		payload = a.ClearTeacherUnavailability
	case FixRelaxSubjectRule:
		payload = a.RelaxSubjectRule
	default:
		return nil, fmt.Errorf("unknown fix type %q", a.Kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(fixEnvelope{Type: a.Kind, Payload: raw})
}

// UnmarshalJSON decodes the payload selected by type.
func (a *FixAction) UnmarshalJSON(data []byte) error {
	var env fixEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Type {
	case FixClearTeacherUnavailability:
		var p ClearTeacherUnavailability
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		*a = FixAction{Kind: env.Type, ClearTeacherUnavailability: &p}
	case FixRelaxSubjectRule:
		var p RelaxSubjectRule
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", env.Type, err)
		}
		*a = FixAction{Kind: env.Type, RelaxSubjectRule: &p}
	default:
		return fmt.Errorf("unknown fix type %q", env.Type)
	}
	return nil
}

// FixResult reports the outcome of applying a fix.
type FixResult struct {
	Action  FixAction `json:"action"`
	Changed int       `json:"changed"`
}
