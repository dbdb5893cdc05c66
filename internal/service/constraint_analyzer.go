package service

import (
	"fmt"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const (
	availabilityErrorBelow   = 50.0
	availabilityWarningBelow = 75.0
	saturationErrorAbove     = 90.0
	saturationWarningFrom    = 75.0
	relaxSaturationAbove     = 80.0
	relaxMaxPeriodsCeiling   = 2
)

// Reasons reported when a lesson cannot be analysed.
const (
	ReasonNoLesson         = "no lesson selected"
	ReasonUnknownGroup     = "class group not found"
	ReasonUnresolvableGrid = "time grid for class group not found"
)

// AnalysisSnapshot is a read-only view of one academic year's constraint data.
type AnalysisSnapshot struct {
	AcademicYearID string
	Constraints    []models.TimeConstraint
	Grids          map[string]*models.TimeGrid
	ClassGroups    map[string]*models.ClassGroup
	Subjects       map[string]*models.Subject
}

// NewAnalysisSnapshot indexes the loaded rows by id.
func NewAnalysisSnapshot(academicYearID string, constraints []models.TimeConstraint, grids []models.TimeGrid, groups []models.ClassGroup, subjects []models.Subject) *AnalysisSnapshot {
	snap := &AnalysisSnapshot{
		AcademicYearID: academicYearID,
		Constraints:    constraints,
		Grids:          make(map[string]*models.TimeGrid, len(grids)),
		ClassGroups:    make(map[string]*models.ClassGroup, len(groups)),
		Subjects:       make(map[string]*models.Subject, len(subjects)),
	}
	for i := range grids {
		snap.Grids[grids[i].ID] = &grids[i]
	}
	for i := range groups {
		snap.ClassGroups[groups[i].ID] = &groups[i]
	}
	for i := range subjects {
		snap.Subjects[subjects[i].ID] = &subjects[i]
	}
	return snap
}

// ConstraintAnalyzer evaluates lessons against a snapshot.
type ConstraintAnalyzer struct {
	electiveFallback bool
}

// NewConstraintAnalyzer builds an analyzer; electiveFallback enables elective-group rule lookup.
func NewConstraintAnalyzer(electiveFallback bool) *ConstraintAnalyzer {
	return &ConstraintAnalyzer{electiveFallback: electiveFallback}
}

// Analyze runs the full analysis or explains why it is unavailable.
func (a *ConstraintAnalyzer) Analyze(snap *AnalysisSnapshot, lesson *models.LessonRef) models.AnalysisResult {
	if lesson == nil {
		return models.AnalysisResult{Reason: ReasonNoLesson}
	}
	if snap == nil {
		return models.AnalysisResult{Reason: ReasonUnknownGroup}
	}
	group, ok := snap.ClassGroups[lesson.ClassGroupID]
	if !ok || group == nil {
		return models.AnalysisResult{Reason: ReasonUnknownGroup}
	}
	grid, ok := snap.Grids[group.TimeGridID]
	if !ok || grid == nil {
		return models.AnalysisResult{Reason: ReasonUnresolvableGrid}
	}

	availability := TeacherAvailabilityFor(grid, snap.Constraints, lesson.TeacherID)
	match := FindSubjectRule(snap.Constraints, snap.Subjects, lesson.ClassGroupID, lesson.SubjectID, a.electiveFallback)
	saturation := GroupSaturationFor(grid, group, snap.Constraints)

	report := &models.ConstraintAnalysisReport{
		Lesson:              *lesson,
		GridID:              grid.ID,
		TeacherAvailability: availability,
		SubjectRule:         match,
		GroupSaturation:     saturation,
		Suggestion:          SuggestFix(lesson.TeacherID, grid.ID, availability, match, saturation),
	}
	return models.AnalysisResult{Available: true, Report: report}
}

// AnalyzeLesson returns the report, or ok=false when the analysis is unavailable.
func (a *ConstraintAnalyzer) AnalyzeLesson(snap *AnalysisSnapshot, lesson *models.LessonRef) (*models.ConstraintAnalysisReport, bool) {
	result := a.Analyze(snap, lesson)
	return result.Report, result.Available
}

// TeacherAvailabilityFor counts the teacher's not-available slots against the grid capacity.
func TeacherAvailabilityFor(grid *models.TimeGrid, constraints []models.TimeConstraint, teacherID string) models.TeacherAvailability {
	total := grid.Capacity()
	unavailable := 0
	for _, c := range constraints {
		if rule, ok := c.NotAvailable(); ok && rule.BlocksTeacher(teacherID) {
			unavailable++
		}
	}
	available := total - unavailable
	if available < 0 {
		available = 0
	}
	percent := percentOf(available, total)
	return models.TeacherAvailability{
		TeacherID:   teacherID,
		Total:       total,
		Unavailable: unavailable,
		Available:   available,
		Percent:     percent,
		Status:      AvailabilityStatus(percent),
	}
}

// AvailabilityStatus grades a teacher availability percentage.
func AvailabilityStatus(percent float64) models.AnalysisStatus {
	switch {
	case percent < availabilityErrorBelow:
		return models.StatusError
	case percent < availabilityWarningBelow:
		return models.StatusWarning
	default:
		return models.StatusOK
	}
}

// SaturationStatus grades a class-group saturation percentage.
func SaturationStatus(percent float64) models.AnalysisStatus {
	switch {
	case percent > saturationErrorAbove:
		return models.StatusError
	case percent >= saturationWarningFrom:
		return models.StatusWarning
	default:
		return models.StatusOK
	}
}

// FindSubjectRule looks up the subject rule for a class group and subject.
// An exact match always wins. With allowElective, the first rule of the same class
// group whose subject or electiveGroup tag shares the lesson subject's elective group is used.
func FindSubjectRule(constraints []models.TimeConstraint, subjects map[string]*models.Subject, classGroupID, subjectID string, allowElective bool) models.SubjectRuleMatch {
	for _, c := range constraints {
		rule, ok := c.SubjectRule()
		if ok && rule.ClassGroupID == classGroupID && rule.SubjectID == subjectID {
			return newRuleMatch(c.ID, rule, models.RuleMatchExact)
		}
	}
	if !allowElective {
		return models.SubjectRuleMatch{}
	}

	group := electiveGroupOf(subjects[subjectID])
	if group == "" {
		return models.SubjectRuleMatch{}
	}
	for _, c := range constraints {
		rule, ok := c.SubjectRule()
		if !ok || rule.ClassGroupID != classGroupID {
			continue
		}
		if (rule.ElectiveGroup != nil && *rule.ElectiveGroup == group) || subjects[rule.SubjectID].InElectiveGroup(group) {
			return newRuleMatch(c.ID, rule, models.RuleMatchElectiveGroup)
		}
	}
	return models.SubjectRuleMatch{}
}

// GroupSaturationFor sums the periods claimed by the class group's subjects.
// Only exact rule matches contribute; elective fallback never applies here.
func GroupSaturationFor(grid *models.TimeGrid, group *models.ClassGroup, constraints []models.TimeConstraint) models.GroupSaturation {
	total := grid.Capacity()
	result := models.GroupSaturation{Total: total, Subjects: []models.SubjectLoad{}}
	if group == nil {
		result.Status = SaturationStatus(0)
		return result
	}
	result.ClassGroupID = group.ID

	seen := make(map[string]struct{}, len(group.SubjectIDs))
	for _, subjectID := range group.SubjectIDs {
		if _, dup := seen[subjectID]; dup {
			continue
		}
		seen[subjectID] = struct{}{}

		load := models.SubjectLoad{SubjectID: subjectID}
		match := FindSubjectRule(constraints, nil, group.ID, subjectID, false)
		if match.Found {
			load.ConstraintID = match.ConstraintID
			load.Periods = match.Rule.RequiredPeriods()
		}
		result.PeriodsRequired += load.Periods
		result.Subjects = append(result.Subjects, load)
	}
	result.Percent = percentOf(result.PeriodsRequired, total)
	result.Status = SaturationStatus(result.Percent)
	return result
}

// SuggestFix walks the ordered decision list and returns the first applicable fix, or nil.
func SuggestFix(teacherID, gridID string, availability models.TeacherAvailability, match models.SubjectRuleMatch, saturation models.GroupSaturation) *models.FixSuggestion {
	if availability.Percent < availabilityErrorBelow && availability.Unavailable > 0 {
		return &models.FixSuggestion{
			Action: models.NewClearTeacherUnavailability(teacherID, gridID),
			Message: fmt.Sprintf("Teacher is available for only %.1f%% of the grid. Clear the %d unavailability entries on this grid.",
				availability.Percent, availability.Unavailable),
		}
	}
	if !match.Found || match.Rule == nil || saturation.Percent <= relaxSaturationAbove {
		return nil
	}
	if match.Rule.RequiresEveryDay() {
		return &models.FixSuggestion{
			Action: models.NewRelaxSubjectRule(match.ConstraintID, models.RelaxMustBeEveryDay, false),
			Message: fmt.Sprintf("Class group is %.1f%% saturated. Stop requiring this subject every day.",
				saturation.Percent),
		}
	}
	if limit := match.Rule.MaxPeriodsPerDay; limit != nil && *limit <= relaxMaxPeriodsCeiling {
		return &models.FixSuggestion{
			Action: models.NewRelaxSubjectRule(match.ConstraintID, models.RelaxMaxPeriodsPerDay, nil),
			Message: fmt.Sprintf("Class group is %.1f%% saturated. Remove the limit of %d periods per day.",
				saturation.Percent, *limit),
		}
	}
	return nil
}

func newRuleMatch(constraintID string, rule models.SubjectRule, kind models.RuleMatchKind) models.SubjectRuleMatch {
	copied := cloneSubjectRule(rule)
	return models.SubjectRuleMatch{Found: true, MatchedBy: kind, ConstraintID: constraintID, Rule: &copied}
}

func cloneSubjectRule(rule models.SubjectRule) models.SubjectRule {
	out := rule
	out.LessonDefinitions = append([]models.LessonDefinition(nil), rule.LessonDefinitions...)
	if rule.ElectiveGroup != nil {
		v := *rule.ElectiveGroup
		out.ElectiveGroup = &v
	}
	if rule.MaxPeriodsPerDay != nil {
		v := *rule.MaxPeriodsPerDay
		out.MaxPeriodsPerDay = &v
	}
	if rule.MaxConsecutive != nil {
		v := *rule.MaxConsecutive
		out.MaxConsecutive = &v
	}
	if rule.MustBeEveryDay != nil {
		v := *rule.MustBeEveryDay
		out.MustBeEveryDay = &v
	}
	if rule.PreferredTime != nil {
		v := *rule.PreferredTime
		out.PreferredTime = &v
	}
	return out
}

func electiveGroupOf(subject *models.Subject) string {
	if subject == nil || subject.ElectiveGroup == nil {
		return ""
	}
	return *subject.ElectiveGroup
}

func percentOf(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
