package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeGridCapacity(t *testing.T) {
	grid := &TimeGrid{
		Days: StringList{"Mon", "Tue", "Wed"},
		Periods: Periods{
			{ID: "p1", Type: PeriodTypeLesson},
			{ID: "br", Type: PeriodTypeBreak},
			{ID: "p2", Type: PeriodTypeLesson},
		},
	}
	assert.Equal(t, 2, grid.LessonPeriods())
	assert.Equal(t, 6, grid.Capacity())
	assert.True(t, grid.HasPeriod("br"))
	assert.False(t, grid.HasPeriod("p3"))

	var missing *TimeGrid
	assert.Equal(t, 0, missing.Capacity())
}

func TestTimeConstraintJSONIsFlat(t *testing.T) {
	every := true
	c := TimeConstraint{
		ID:             "c1",
		AcademicYearID: "2025",
		Rule: SubjectRule{
			SubjectID:         "math",
			ClassGroupID:      "10A",
			LessonDefinitions: []LessonDefinition{{Count: 3, Duration: 2}},
			MustBeEveryDay:    &every,
		},
	}

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var flat map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Equal(t, "subject-rule", flat["type"])
	assert.Equal(t, "c1", flat["id"])
	assert.Equal(t, "2025", flat["academicYearId"])
	assert.Equal(t, "10A", flat["classGroupId"])
	assert.Equal(t, true, flat["mustBeEveryDay"])
	assert.NotContains(t, flat, "Rule")

	var decoded TimeConstraint
	require.NoError(t, json.Unmarshal(data, &decoded))
	rule, ok := decoded.SubjectRule()
	require.True(t, ok)
	assert.Equal(t, 6, rule.RequiredPeriods())
	assert.True(t, rule.RequiresEveryDay())
}

func TestTimeConstraintDecodeVariants(t *testing.T) {
	var c TimeConstraint
	require.NoError(t, json.Unmarshal([]byte(`{"id":"n1","type":"not-available","targetType":"teacher","targetId":"t1","day":"Mon","periodId":"p1"}`), &c))
	na, ok := c.NotAvailable()
	require.True(t, ok)
	assert.True(t, na.BlocksTeacher("t1"))
	assert.Equal(t, "t1", c.Rule.TargetKey())

	require.NoError(t, json.Unmarshal([]byte(`{"type":"teacher-max-consecutive","teacherId":"t2","maxConsecutive":3}`), &c))
	assert.Equal(t, ConstraintTeacherMaxConsecutive, c.Type())
	assert.Equal(t, TeacherMaxConsecutive{TeacherID: "t2", MaxConsecutive: 3}, c.Rule)

	err := json.Unmarshal([]byte(`{"type":"room-capacity"}`), &c)
	assert.ErrorContains(t, err, "unknown constraint type")

	_, err = json.Marshal(TimeConstraint{ID: "empty"})
	assert.Error(t, err)
}

func TestFixActionJSON(t *testing.T) {
	action := NewClearTeacherUnavailability("t1", "g1")
	data, err := json.Marshal(action)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"CLEAR_TEACHER_UNAVAILABILITY","payload":{"teacherId":"t1","gridId":"g1"}}`, string(data))

	var relax FixAction
	require.NoError(t, json.Unmarshal([]byte(`{"type":"RELAX_SUBJECT_RULE","payload":{"constraintId":"c1","field":"maxPeriodsPerDay","newValue":null}}`), &relax))
	require.NotNil(t, relax.RelaxSubjectRule)
	assert.Nil(t, relax.ClearTeacherUnavailability)
	assert.NoError(t, relax.Validate())

	assert.Error(t, json.Unmarshal([]byte(`{"type":"DROP_TABLE","payload":{}}`), &relax))
}

func TestFixActionValidate(t *testing.T) {
	cases := []struct {
		name    string
		action  FixAction
		wantErr bool
	}{
		{"clear ok", NewClearTeacherUnavailability("t1", "g1"), false},
		{"clear missing grid", NewClearTeacherUnavailability("t1", ""), true},
		{"every day bool", NewRelaxSubjectRule("c1", RelaxMustBeEveryDay, false), false},
		{"every day wrong type", NewRelaxSubjectRule("c1", RelaxMustBeEveryDay, "no"), true},
		{"max periods positive float", NewRelaxSubjectRule("c1", RelaxMaxPeriodsPerDay, float64(3)), false},
		{"max periods fractional", NewRelaxSubjectRule("c1", RelaxMaxPeriodsPerDay, 2.5), true},
		{"max periods zero", NewRelaxSubjectRule("c1", RelaxMaxPeriodsPerDay, 0), true},
		{"unknown field", NewRelaxSubjectRule("c1", RelaxField("minDaysApart"), 1), true},
		{"missing constraint", NewRelaxSubjectRule("", RelaxMustBeEveryDay, true), true},
		{"two payloads", FixAction{
			Kind:                       FixClearTeacherUnavailability,
			ClearTeacherUnavailability: &ClearTeacherUnavailability{TeacherID: "t", GridID: "g"},
			RelaxSubjectRule:           &RelaxSubjectRule{ConstraintID: "c"},
		}, true},
		{"no kind", FixAction{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.action.Validate()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestGeneratedTimetableDistinctLessons(t *testing.T) {
	tt := &GeneratedTimetable{Lessons: TimetableLessons{
		{ClassGroupID: "10A", SubjectID: "math", TeacherID: "t1", Day: "Mon", PeriodID: "p1", Duration: 2},
		{ClassGroupID: "10A", SubjectID: "math", TeacherID: "t1", Day: "Tue", PeriodID: "p3", Duration: 2},
		{ClassGroupID: "10A", SubjectID: "bio", TeacherID: "t2", Day: "Mon", PeriodID: "p3"},
	}}
	refs := tt.DistinctLessons()
	require.Len(t, refs, 2)
	assert.Equal(t, 1, refs[1].Duration)
}
