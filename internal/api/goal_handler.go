package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/fiufit-grupo-4/goals-microservice/internal/domain"
	"github.com/fiufit-grupo-4/goals-microservice/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type GoalHandler struct {
	goalService service.GoalService
	log         logrus.FieldLogger
}

func NewGoalHandler(goalService service.GoalService, log logrus.FieldLogger) *GoalHandler {
	return &GoalHandler{goalService: goalService, log: log}
}

// --- DTOs ---

type CreateGoalRequest struct {
	Title          string     `json:"title" binding:"required"`
	Description    string     `json:"description"`
	Metric         string     `json:"metric" binding:"required"`
	QuantityTarget float64    `json:"quantity_target" binding:"required"`
	LimitTime      *time.Time `json:"limit_time"`
	DateInit       *time.Time `json:"date_init"`
	TrainingID     *string    `json:"training_id"`
}

// ProgressRequest carries raw steps; the goal's metric decides the conversion.
type ProgressRequest struct {
	Progress *float64 `json:"progress" binding:"required"`
}

type GoalResponse struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	TrainingID     *string    `json:"training_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Metric         string     `json:"metric"`
	QuantityTarget float64    `json:"quantity_target"`
	Progress       float64    `json:"progress"`
	State          int        `json:"state"`
	StateName      string     `json:"state_name"`
	LimitTime      *time.Time `json:"limit_time"`
	DateInit       *time.Time `json:"date_init"`
	DateComplete   *time.Time `json:"date_complete"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type ReceiptResponse struct {
	URL string `json:"url"`
}

func MapGoalToResponse(g *domain.Goal) GoalResponse {
	return GoalResponse{
		ID:             g.ID.Hex(),
		UserID:         g.UserID.Hex(),
		TrainingID:     g.TrainingID,
		Title:          g.Title,
		Description:    g.Description,
		Metric:         string(g.Metric),
		QuantityTarget: g.QuantityTarget,
		Progress:       g.Progress,
		State:          int(g.State),
		StateName:      g.State.String(),
		LimitTime:      g.LimitTime,
		DateInit:       g.DateInit,
		DateComplete:   g.DateComplete,
		CreatedAt:      g.CreatedAt,
		UpdatedAt:      g.UpdatedAt,
	}
}

func MapGoalsToResponse(goals []domain.Goal) []GoalResponse {
	res := make([]GoalResponse, len(goals))
	for i := range goals {
		res[i] = MapGoalToResponse(&goals[i])
	}
	return res
}

// --- Handler Methods ---

// CreateGoal godoc
// @Summary Create a goal
// @Description Creates a goal for the authenticated athlete. Goals linked to a training start immediately.
// @Tags Goals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param goal body CreateGoalRequest true "Goal details"
// @Success 201 {object} GoalResponse "Goal created"
// @Failure 400 {object} gin.H "Invalid input"
// @Failure 401 {object} gin.H "Unauthorized"
// @Failure 500 {object} gin.H "Internal Server Error"
// @Router /goals [post]
func (h *GoalHandler) CreateGoal(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req CreateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	goal, err := h.goalService.CreateGoal(c.Request.Context(), caller, service.CreateGoalInput{
		Title:          req.Title,
		Description:    req.Description,
		Metric:         domain.Metric(req.Metric),
		QuantityTarget: req.QuantityTarget,
		LimitTime:      req.LimitTime,
		DateInit:       req.DateInit,
		TrainingID:     req.TrainingID,
	})
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusCreated, MapGoalToResponse(goal))
}

// ListGoals godoc
// @Summary List my goals
// @Tags Goals
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum number of goals (1-1024)"
// @Success 200 {array} GoalResponse "List of goals"
// @Failure 400 {object} gin.H "Invalid limit"
// @Failure 401 {object} gin.H "Unauthorized"
// @Router /goals [get]
func (h *GoalHandler) ListGoals(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	limit := 0
	if raw, present := c.GetQuery("limit"); present {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			abortWithError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	goals, err := h.goalService.ListGoals(c.Request.Context(), caller, limit)
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, MapGoalsToResponse(goals))
}

// GetGoal godoc
// @Summary Get a goal
// @Tags Goals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Goal ObjectID Hex"
// @Success 200 {object} GoalResponse
// @Failure 400 {object} gin.H "Invalid goal ID format"
// @Failure 404 {object} gin.H "Goal not found"
// @Router /goals/{id} [get]
func (h *GoalHandler) GetGoal(c *gin.Context) {
	caller, goalID, ok := h.callerAndGoalID(c)
	if !ok {
		return
	}

	goal, err := h.goalService.GetGoal(c.Request.Context(), caller, goalID)
	if err != nil {
		h.respondError(c, err, goalID.Hex())
		return
	}
	c.JSON(http.StatusOK, MapGoalToResponse(goal))
}

// UpdateGoal godoc
// @Summary Update a goal
// @Description Partially updates title, description and limit_time. A future limit_time on an expired goal restarts it.
// @Tags Goals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Goal ObjectID Hex"
// @Param goal body domain.GoalPatch true "Fields to update"
// @Success 200 {object} GoalResponse
// @Failure 400 {object} gin.H "Invalid input or no values to update"
// @Failure 404 {object} gin.H "Goal not found"
// @Router /goals/{id} [patch]
func (h *GoalHandler) UpdateGoal(c *gin.Context) {
	caller, goalID, ok := h.callerAndGoalID(c)
	if !ok {
		return
	}

	var patch domain.GoalPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		if errors.Is(err, io.EOF) {
			h.respondError(c, service.ErrNoOpUpdate, goalID.Hex())
			return
		}
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	goal, err := h.goalService.UpdateGoal(c.Request.Context(), caller, goalID, patch)
	if err != nil {
		h.respondError(c, err, goalID.Hex())
		return
	}
	c.JSON(http.StatusOK, MapGoalToResponse(goal))
}

// DeleteGoal godoc
// @Summary Delete a goal
// @Tags Goals
// @Security BearerAuth
// @Param id path string true "Goal ObjectID Hex"
// @Success 204 "Goal deleted"
// @Failure 404 {object} gin.H "Goal not found"
// @Router /goals/{id} [delete]
func (h *GoalHandler) DeleteGoal(c *gin.Context) {
	caller, goalID, ok := h.callerAndGoalID(c)
	if !ok {
		return
	}

	if err := h.goalService.DeleteGoal(c.Request.Context(), caller, goalID); err != nil {
		h.respondError(c, err, goalID.Hex())
		return
	}
	c.Status(http.StatusNoContent)
}

// StartGoal godoc
// @Summary Start a goal
// @Tags Goals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Goal ObjectID Hex"
// @Success 200 {object} GoalResponse
// @Failure 400 {object} gin.H "Transition not allowed"
// @Failure 404 {object} gin.H "Goal not found"
// @Router /goals/{id}/start [patch]
func (h *GoalHandler) StartGoal(c *gin.Context) {
	h.changeState(c, h.goalService.StartGoal)
}

// CompleteGoal godoc
// @Summary Complete a goal
// @Description Marks a started goal complete and notifies the training and user services.
// @Tags Goals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Goal ObjectID Hex"
// @Success 200 {object} GoalResponse
// @Failure 400 {object} gin.H "Transition not allowed"
// @Failure 404 {object} gin.H "Goal not found"
// @Failure 500 {object} gin.H "Goal completed but a downstream service failed"
// @Router /goals/{id}/complete [patch]
func (h *GoalHandler) CompleteGoal(c *gin.Context) {
	h.changeState(c, h.goalService.CompleteGoal)
}

// StopGoal godoc
// @Summary Stop a goal
// @Tags Goals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Goal ObjectID Hex"
// @Success 200 {object} GoalResponse
// @Failure 400 {object} gin.H "Transition not allowed"
// @Failure 404 {object} gin.H "Goal not found"
// @Router /goals/{id}/stop [patch]
func (h *GoalHandler) StopGoal(c *gin.Context) {
	h.changeState(c, h.goalService.StopGoal)
}

type stateChangeFunc func(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID) (*domain.Goal, error)

func (h *GoalHandler) changeState(c *gin.Context, change stateChangeFunc) {
	caller, goalID, ok := h.callerAndGoalID(c)
	if !ok {
		return
	}

	goal, err := change(c.Request.Context(), caller, goalID)
	if err != nil {
		h.respondError(c, err, goalID.Hex())
		return
	}
	c.JSON(http.StatusOK, MapGoalToResponse(goal))
}

// ApplyProgress godoc
// @Summary Report progress for one goal
// @Tags Goals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Goal ObjectID Hex"
// @Param progress body ProgressRequest true "Raw steps"
// @Success 200 {object} GoalResponse
// @Failure 400 {object} gin.H "Invalid progress"
// @Failure 404 {object} gin.H "Goal not found"
// @Failure 500 {object} gin.H "Goal completed but a downstream service failed"
// @Router /goals/{id}/progress [patch]
func (h *GoalHandler) ApplyProgress(c *gin.Context) {
	caller, goalID, ok := h.callerAndGoalID(c)
	if !ok {
		return
	}
	steps, ok := bindProgress(c)
	if !ok {
		return
	}

	goal, err := h.goalService.ApplyProgress(c.Request.Context(), caller, goalID, steps)
	if err != nil {
		h.respondError(c, err, goalID.Hex())
		return
	}
	c.JSON(http.StatusOK, MapGoalToResponse(goal))
}

// ApplyProgressForUser godoc
// @Summary Report progress for all my started goals
// @Description Adds raw steps to every started goal of the caller, converted to each goal's metric.
// @Tags Goals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param progress body ProgressRequest true "Raw steps"
// @Success 200 {object} service.ProgressSummary
// @Failure 400 {object} gin.H "Invalid progress"
// @Router /goals/progress [patch]
func (h *GoalHandler) ApplyProgressForUser(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}
	steps, ok := bindProgress(c)
	if !ok {
		return
	}

	summary, err := h.goalService.ApplyProgressForUser(c.Request.Context(), caller, steps)
	if err != nil {
		h.respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetReceipt godoc
// @Summary Get the completion receipt link
// @Tags Goals
// @Produce json
// @Security BearerAuth
// @Param id path string true "Goal ObjectID Hex"
// @Success 200 {object} ReceiptResponse
// @Failure 404 {object} gin.H "Goal or receipt not found"
// @Router /goals/{id}/receipt [get]
func (h *GoalHandler) GetReceipt(c *gin.Context) {
	caller, goalID, ok := h.callerAndGoalID(c)
	if !ok {
		return
	}

	url, err := h.goalService.GetReceiptURL(c.Request.Context(), caller, goalID)
	if err != nil {
		h.respondError(c, err, goalID.Hex())
		return
	}
	c.JSON(http.StatusOK, ReceiptResponse{URL: url})
}

// --- Helpers ---

func bindProgress(c *gin.Context) (float64, bool) {
	var req ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return 0, false
	}
	return *req.Progress, true
}

func (h *GoalHandler) caller(c *gin.Context) (domain.Caller, bool) {
	caller, err := getCallerFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, "Unable to identify user.")
		return domain.Caller{}, false
	}
	return caller, true
}

func (h *GoalHandler) callerAndGoalID(c *gin.Context) (domain.Caller, primitive.ObjectID, bool) {
	caller, ok := h.caller(c)
	if !ok {
		return domain.Caller{}, primitive.NilObjectID, false
	}
	goalID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid goal ID format")
		return domain.Caller{}, primitive.NilObjectID, false
	}
	return caller, goalID, true
}

// respondError maps service errors to status codes.
func (h *GoalHandler) respondError(c *gin.Context, err error, goalID string) {
	switch {
	case errors.Is(err, service.ErrGoalNotFound):
		abortWithError(c, http.StatusNotFound, fmt.Sprintf("Goal %s not found", goalID))
	case errors.Is(err, service.ErrNoOpUpdate):
		abortWithError(c, http.StatusBadRequest, "No values specified to update")
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrValidation):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrConcurrentUpdate):
		abortWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrReceiptUnavailable):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrDownstreamUnavailable):
		abortWithError(c, http.StatusInternalServerError, err.Error())
	default:
		h.log.WithFields(logrus.Fields{
			"goal_id":    goalID,
			"request_id": c.GetString(ContextRequestIDKey),
		}).WithError(err).Error("Unhandled goal service error")
		abortWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}
