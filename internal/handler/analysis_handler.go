package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type analysisService interface {
	AnalyzeLesson(ctx context.Context, academicYearID string, lesson models.LessonRef) (*models.AnalysisResult, bool, error)
	AnalyzeTimetable(ctx context.Context, timetableID string) (*models.TimetableAnalysis, error)
}

// AnalysisHandler exposes constraint analysis of lessons and whole timetables.
type AnalysisHandler struct {
	service analysisService
}

// NewAnalysisHandler constructs the handler.
func NewAnalysisHandler(service analysisService) *AnalysisHandler {
	return &AnalysisHandler{service: service}
}

// AnalyzeLesson godoc
// @Summary Analyse one lesson against the constraint store
// @Description An unresolvable lesson returns available=false with a reason rather than an error.
// @Tags Analysis
// @Accept json
// @Produce json
// @Param payload body dto.LessonAnalysisRequest true "Lesson"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /analysis/lessons [post]
func (h *AnalysisHandler) AnalyzeLesson(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.LessonAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lesson payload"))
		return
	}
	if claims.Role == models.RoleTeacher && claims.TeacherID != req.TeacherID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "teachers may only analyse their own lessons"))
		return
	}

	result, cacheHit, err := h.service.AnalyzeLesson(c.Request.Context(), req.AcademicYearID, req.LessonRef)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// AnalyzeTimetable godoc
// @Summary Analyse every lesson of a generated timetable
// @Tags Analysis
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id}/analysis [get]
func (h *AnalysisHandler) AnalyzeTimetable(c *gin.Context) {
	analysis, err := h.service.AnalyzeTimetable(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analysis, nil, middleware.ExtractMeta(c))
}
