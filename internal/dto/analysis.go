package dto

import "github.com/noah-isme/sma-timetable-api/internal/models"

// LessonAnalysisRequest is the POST /analysis/lessons payload.
type LessonAnalysisRequest struct {
	AcademicYearID string `json:"academicYearId" binding:"required"`
	models.LessonRef
}

// ApplyFixRequest is the POST /constraints/apply-fix payload.
type ApplyFixRequest struct {
	AcademicYearID string           `json:"academicYearId" binding:"required"`
	Action         models.FixAction `json:"action"`
}
