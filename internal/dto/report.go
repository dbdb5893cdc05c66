package dto

import (
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// ReportRequest captures POST /reports/constraint-audit payload.
type ReportRequest struct {
	TimetableID  string              `json:"timetableId" validate:"required"`
	Format       models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
	OnlyProblems bool                `json:"onlyProblems"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata. ResultURL is set once the
// audit is FINISHED and points at the signed download route.
type ReportStatusResponse struct {
	ID          string              `json:"id"`
	TimetableID string              `json:"timetableId"`
	Format      models.ReportFormat `json:"format"`
	Status      models.ReportStatus `json:"status"`
	Progress    int                 `json:"progress"`
	ResultURL   *string             `json:"resultUrl,omitempty"`
	Error       *string             `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	FinishedAt  *time.Time          `json:"finishedAt,omitempty"`
}
