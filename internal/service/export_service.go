package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

// Audit dataset column keys.
const (
	colClassGroup   = "class_group"
	colSubject      = "subject"
	colTeacher      = "teacher"
	colDuration     = "duration"
	colAvailability = "availability_pct"
	colAvailStatus  = "availability_status"
	colSaturation   = "saturation_pct"
	colSatStatus    = "saturation_status"
	colMatchedRule  = "matched_rule"
	colSuggestedFix = "suggested_fix"
)

var auditColumns = []export.Column{
	{Key: colClassGroup, Label: "Class Group"},
	{Key: colSubject, Label: "Subject"},
	{Key: colTeacher, Label: "Teacher"},
	{Key: colDuration, Label: "Duration", Weight: 0.6},
	{Key: colAvailability, Label: "Availability (%)", Weight: 0.8},
	{Key: colAvailStatus, Label: "Availability Status", Weight: 0.8},
	{Key: colSaturation, Label: "Saturation (%)", Weight: 0.8},
	{Key: colSatStatus, Label: "Saturation Status", Weight: 0.8},
	{Key: colMatchedRule, Label: "Matched Rule", Weight: 1.2},
	{Key: colSuggestedFix, Label: "Suggested Fix", Weight: 2.2},
}

type timetableAnalyzer interface {
	AnalyzeTimetable(ctx context.Context, timetableID string) (*models.TimetableAnalysis, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService renders constraint audits and persists the files.
type ExportService struct {
	analyzer  timetableAnalyzer
	storage   fileStorage
	renderers map[models.ReportFormat]export.Exporter
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService. Renderers are keyed by their
// extension; csv and pdf are filled in when absent.
func NewExportService(analyzer timetableAnalyzer, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, renderers ...export.Exporter) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	byFormat := map[models.ReportFormat]export.Exporter{
		models.ReportFormatCSV: export.NewCSVExporter(),
		models.ReportFormatPDF: export.NewPDFExporter(),
	}
	for _, r := range renderers {
		if r != nil {
			byFormat[models.ReportFormat(r.Extension())] = r
		}
	}
	return &ExportService{
		analyzer:  analyzer,
		storage:   storage,
		renderers: byFormat,
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
	}
}

// Generate analyses the job's timetable and stores the rendered audit.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	if job.Type != models.ReportTypeConstraintAudit {
		return nil, fmt.Errorf("unsupported report type %s", job.Type)
	}
	analysis, err := s.analyzer.AnalyzeTimetable(ctx, job.Params.TimetableID)
	if err != nil {
		return nil, err
	}
	renderer, ok := s.renderers[job.Params.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	dataset := BuildAuditDataset(analysis, job.Params.OnlyProblems)
	dataset.Title = fmt.Sprintf("Constraint Audit %s", job.Params.TimetableID)

	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job, renderer.Extension()), payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("constraint audit rendered",
		zap.String("job_id", job.ID),
		zap.String("timetable_id", job.Params.TimetableID),
		zap.Int("rows", len(dataset.Rows)))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/reports/download/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob, ext string) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s/%s_%s_%s.%s", sanitizeFilename(job.ID), job.Type, sanitizeFilename(job.Params.TimetableID), timestamp, ext)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

// BuildAuditDataset flattens a timetable analysis into one row per lesson.
// With onlyProblems, lessons that are ok on both axes and carry no suggestion are skipped.
func BuildAuditDataset(analysis *models.TimetableAnalysis, onlyProblems bool) export.Dataset {
	dataset := export.Dataset{Columns: auditColumns}
	if analysis == nil {
		return dataset
	}
	for _, item := range analysis.Lessons {
		row := export.Row{
			colClassGroup: item.Lesson.ClassGroupID,
			colSubject:    item.Lesson.SubjectID,
			colTeacher:    item.Lesson.TeacherID,
			colDuration:   fmt.Sprintf("%d", item.Lesson.Duration),
		}
		if !item.Available || item.Report == nil {
			row[colAvailStatus] = "unavailable"
			row[colSatStatus] = "unavailable"
			row[colSuggestedFix] = item.Reason
			dataset.Rows = append(dataset.Rows, row)
			continue
		}

		report := item.Report
		if onlyProblems && WorstStatus(report) == models.StatusOK && report.Suggestion == nil {
			continue
		}
		row[colAvailability] = fmt.Sprintf("%.1f", report.TeacherAvailability.Percent)
		row[colAvailStatus] = string(report.TeacherAvailability.Status)
		row[colSaturation] = fmt.Sprintf("%.1f", report.GroupSaturation.Percent)
		row[colSatStatus] = string(report.GroupSaturation.Status)
		row[colMatchedRule] = describeMatch(report.SubjectRule)
		if report.Suggestion != nil {
			row[colSuggestedFix] = report.Suggestion.Message
		}
		dataset.Rows = append(dataset.Rows, row)
	}
	return dataset
}

func describeMatch(match models.SubjectRuleMatch) string {
	if !match.Found {
		return "none"
	}
	return fmt.Sprintf("%s (%s)", match.ConstraintID, match.MatchedBy)
}
