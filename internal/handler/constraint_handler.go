package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type constraintService interface {
	List(ctx context.Context, filter models.ConstraintFilter) ([]models.TimeConstraint, error)
	Get(ctx context.Context, id string) (*models.TimeConstraint, error)
	Create(ctx context.Context, c models.TimeConstraint, actor models.Actor) (*models.TimeConstraint, error)
	Update(ctx context.Context, id string, c models.TimeConstraint, actor models.Actor) (*models.TimeConstraint, error)
	Delete(ctx context.Context, id string, actor models.Actor) error
	ApplyFix(ctx context.Context, academicYearID string, action models.FixAction, actor models.Actor) (*models.FixResult, error)
}

// ConstraintHandler manages the constraint store over HTTP.
type ConstraintHandler struct {
	service constraintService
}

// NewConstraintHandler constructs the handler.
func NewConstraintHandler(service constraintService) *ConstraintHandler {
	return &ConstraintHandler{service: service}
}

// List godoc
// @Summary List constraints of an academic year
// @Tags Constraints
// @Produce json
// @Param academicYearId query string true "Academic year ID"
// @Param type query string false "Constraint type"
// @Param teacherId query string false "Target teacher (or class group for subject rules)"
// @Success 200 {object} response.Envelope
// @Router /constraints [get]
func (h *ConstraintHandler) List(c *gin.Context) {
	target := strings.TrimSpace(c.Query("teacherId"))
	if target == "" {
		target = strings.TrimSpace(c.Query("targetId"))
	}
	filter := models.ConstraintFilter{
		AcademicYearID: strings.TrimSpace(c.Query("academicYearId")),
		Type:           models.ConstraintType(strings.TrimSpace(c.Query("type"))),
		TargetID:       target,
	}
	items, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get constraint
// @Tags Constraints
// @Produce json
// @Param id path string true "Constraint ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /constraints/{id} [get]
func (h *ConstraintHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Create constraint
// @Description The body carries "type" plus the fields of that constraint variant.
// @Tags Constraints
// @Accept json
// @Produce json
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /constraints [post]
func (h *ConstraintHandler) Create(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload models.TimeConstraint
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid constraint payload"))
		return
	}
	created, err := h.service.Create(c.Request.Context(), payload, *actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Update godoc
// @Summary Replace constraint
// @Tags Constraints
// @Accept json
// @Produce json
// @Param id path string true "Constraint ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /constraints/{id} [put]
func (h *ConstraintHandler) Update(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var payload models.TimeConstraint
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid constraint payload"))
		return
	}
	updated, err := h.service.Update(c.Request.Context(), c.Param("id"), payload, *actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Delete godoc
// @Summary Delete constraint
// @Tags Constraints
// @Param id path string true "Constraint ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /constraints/{id} [delete]
func (h *ConstraintHandler) Delete(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), *actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ApplyFix godoc
// @Summary Apply a suggested fix
// @Tags Constraints
// @Accept json
// @Produce json
// @Param payload body dto.ApplyFixRequest true "Fix"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /constraints/apply-fix [post]
func (h *ConstraintHandler) ApplyFix(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ApplyFixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid fix payload"))
		return
	}
	result, err := h.service.ApplyFix(c.Request.Context(), req.AcademicYearID, req.Action, *actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
