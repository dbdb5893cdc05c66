package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type timeGridService interface {
	List(ctx context.Context) ([]models.TimeGrid, error)
	Get(ctx context.Context, id string) (*models.TimeGrid, error)
	Upsert(ctx context.Context, id string, grid models.TimeGrid, actor models.Actor) (*models.TimeGrid, error)
}

type classGroupService interface {
	List(ctx context.Context, timeGridID string) ([]models.ClassGroup, error)
	Get(ctx context.Context, id string) (*models.ClassGroup, error)
}

// TimeGridHandler exposes time grids and the class groups scheduled on them.
type TimeGridHandler struct {
	grids  timeGridService
	groups classGroupService
}

// NewTimeGridHandler constructs the handler.
func NewTimeGridHandler(grids timeGridService, groups classGroupService) *TimeGridHandler {
	return &TimeGridHandler{grids: grids, groups: groups}
}

// List godoc
// @Summary List time grids
// @Tags Time Grids
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /time-grids [get]
func (h *TimeGridHandler) List(c *gin.Context) {
	grids, err := h.grids.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grids, nil)
}

// Get godoc
// @Summary Get time grid
// @Tags Time Grids
// @Produce json
// @Param id path string true "Time grid ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /time-grids/{id} [get]
func (h *TimeGridHandler) Get(c *gin.Context) {
	grid, err := h.grids.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grid, nil)
}

// Upsert godoc
// @Summary Create or replace a time grid
// @Tags Time Grids
// @Accept json
// @Produce json
// @Param id path string true "Time grid ID"
// @Param payload body models.TimeGrid true "Grid"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /time-grids/{id} [put]
func (h *TimeGridHandler) Upsert(c *gin.Context) {
	actor := actorFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var grid models.TimeGrid
	if err := c.ShouldBindJSON(&grid); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid time grid payload"))
		return
	}
	saved, err := h.grids.Upsert(c.Request.Context(), c.Param("id"), grid, *actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, saved, nil)
}

// ListClassGroups godoc
// @Summary List class groups
// @Tags Class Groups
// @Produce json
// @Param timeGridId query string false "Only groups on this grid"
// @Success 200 {object} response.Envelope
// @Router /class-groups [get]
func (h *TimeGridHandler) ListClassGroups(c *gin.Context) {
	groups, err := h.groups.List(c.Request.Context(), strings.TrimSpace(c.Query("timeGridId")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// GetClassGroup godoc
// @Summary Get class group
// @Tags Class Groups
// @Produce json
// @Param id path string true "Class group ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /class-groups/{id} [get]
func (h *TimeGridHandler) GetClassGroup(c *gin.Context) {
	group, err := h.groups.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}
