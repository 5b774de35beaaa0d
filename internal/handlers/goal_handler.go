package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachOps/internal/models"
	"github.com/saeid-a/CoachOps/internal/repository"
	"github.com/saeid-a/CoachOps/internal/services"
)

type GoalHandler struct {
	service goalApplicationService
}

type goalApplicationService interface {
	CreateGoal(ctx context.Context, actor models.Actor, input services.CreateGoalInput) (*models.Goal, error)
	GetGoal(ctx context.Context, actor models.Actor, goalID string) (*models.Goal, error)
	ListGoals(ctx context.Context, actor models.Actor, filter repository.GoalFilter) ([]models.Goal, error)
	UpdateGoal(ctx context.Context, actor models.Actor, goalID string, input services.UpdateGoalInput) (*models.Goal, error)
	AddMilestone(ctx context.Context, actor models.Actor, goalID string, input services.MilestoneInput) (*models.Goal, error)
	UpdateMilestoneStatus(ctx context.Context, actor models.Actor, goalID, milestoneID string, status models.MilestoneStatus, notes *string) (*models.Goal, error)
	RecomputeProgress(ctx context.Context, actor models.Actor, goalID string) (*models.Goal, error)
	SetProgressDirectly(ctx context.Context, actor models.Actor, goalID string, progress int) (*models.Goal, error)
	AddComment(ctx context.Context, actor models.Actor, goalID string, text string) (*models.Goal, error)
	AddCollaborator(ctx context.Context, actor models.Actor, goalID string, userID string, role string) (*models.Goal, error)
	LinkSession(ctx context.Context, actor models.Actor, goalID string, sessionID string) (*models.Goal, error)
}

func NewGoalHandler(service *services.GoalService) *GoalHandler {
	return &GoalHandler{service: service}
}

type milestoneRequest struct {
	Title      string  `json:"title"`
	Status     string  `json:"status"`
	TargetDate *string `json:"target_date"`
	Notes      string  `json:"notes"`
}

type createGoalRequest struct {
	EntrepreneurID string             `json:"entrepreneur_id"`
	CoachID        string             `json:"coach_id"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	Status         string             `json:"status"`
	Priority       string             `json:"priority"`
	Progress       *int               `json:"progress"`
	TargetDate     *string            `json:"target_date"`
	Milestones     []milestoneRequest `json:"milestones"`
}

type updateGoalRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	TargetDate  *string `json:"target_date"`
	IsArchived  *bool   `json:"is_archived"`
}

type updateProgressRequest struct {
	Progress  *int `json:"progress"`
	Recompute bool `json:"recompute"`
}

type updateMilestoneRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes"`
}

type addCommentRequest struct {
	Text string `json:"text"`
}

type addCollaboratorRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h *GoalHandler) CreateGoal(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req createGoalRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", nil)
	}
	targetDate, err := parseOptionalTimestamp(req.TargetDate)
	if err != nil {
		return badRequest(c, "target_date must be a valid RFC3339 timestamp", nil)
	}

	input := services.CreateGoalInput{
		EntrepreneurID: strings.TrimSpace(req.EntrepreneurID),
		CoachID:        strings.TrimSpace(req.CoachID),
		Title:          req.Title,
		Description:    req.Description,
		Status:         models.GoalStatus(strings.TrimSpace(req.Status)),
		Priority:       models.GoalPriority(strings.TrimSpace(req.Priority)),
		Progress:       req.Progress,
		TargetDate:     targetDate,
	}
	for _, m := range req.Milestones {
		milestone, err := m.input()
		if err != nil {
			return badRequest(c, "milestone target_date must be a valid RFC3339 timestamp", nil)
		}
		input.Milestones = append(input.Milestones, milestone)
	}

	goal, err := h.service.CreateGoal(c.UserContext(), actor, input)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"goal": goal})
}

func (h *GoalHandler) ListGoals(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	opts, meta := listOptions(c)
	goals, err := h.service.ListGoals(c.UserContext(), actor, repository.GoalFilter{
		EntrepreneurID:  strings.TrimSpace(c.Query("entrepreneur_id")),
		CoachID:         strings.TrimSpace(c.Query("coach_id")),
		IncludeArchived: c.QueryBool("include_archived", false),
		ListOptions:     opts,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	meta.Count = len(goals)
	return c.JSON(fiber.Map{"goals": goals, "pagination": meta})
}

func (h *GoalHandler) GetGoal(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	goal, err := h.service.GetGoal(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"goal": goal})
}

func (h *GoalHandler) UpdateGoal(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req updateGoalRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", nil)
	}
	targetDate, err := parseOptionalTimestamp(req.TargetDate)
	if err != nil {
		return badRequest(c, "target_date must be a valid RFC3339 timestamp", nil)
	}

	input := services.UpdateGoalInput{
		Title:       req.Title,
		Description: req.Description,
		TargetDate:  targetDate,
		IsArchived:  req.IsArchived,
	}
	if req.Status != nil {
		status := models.GoalStatus(strings.TrimSpace(*req.Status))
		input.Status = &status
	}
	if req.Priority != nil {
		priority := models.GoalPriority(strings.TrimSpace(*req.Priority))
		input.Priority = &priority
	}

	goal, err := h.service.UpdateGoal(c.UserContext(), actor, c.Params("id"), input)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"goal": goal})
}

// UpdateProgress writes progress directly, or recomputes it from milestones
// when the body asks for it.
func (h *GoalHandler) UpdateProgress(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req updateProgressRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", nil)
	}

	var goal *models.Goal
	switch {
	case req.Recompute:
		goal, err = h.service.RecomputeProgress(c.UserContext(), actor, c.Params("id"))
	case req.Progress != nil:
		goal, err = h.service.SetProgressDirectly(c.UserContext(), actor, c.Params("id"), *req.Progress)
	default:
		return badRequest(c, "progress is required", map[string]any{"progress": "progress is required"})
	}
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"goal": goal})
}

func (h *GoalHandler) AddMilestone(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req milestoneRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", nil)
	}
	input, err := req.input()
	if err != nil {
		return badRequest(c, "target_date must be a valid RFC3339 timestamp", nil)
	}

	goal, err := h.service.AddMilestone(c.UserContext(), actor, c.Params("id"), input)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"goal": goal})
}

func (h *GoalHandler) UpdateMilestone(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req updateMilestoneRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", nil)
	}
	status := models.MilestoneStatus(strings.TrimSpace(req.Status))

	goal, err := h.service.UpdateMilestoneStatus(c.UserContext(), actor, c.Params("id"), c.Params("milestoneId"), status, req.Notes)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"goal": goal})
}

func (h *GoalHandler) AddComment(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req addCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", nil)
	}

	goal, err := h.service.AddComment(c.UserContext(), actor, c.Params("id"), req.Text)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"goal": goal})
}

func (h *GoalHandler) AddCollaborator(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req addCollaboratorRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", nil)
	}

	goal, err := h.service.AddCollaborator(c.UserContext(), actor, c.Params("id"), req.UserID, req.Role)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"goal": goal})
}

func (h *GoalHandler) LinkSession(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	goal, err := h.service.LinkSession(c.UserContext(), actor, c.Params("id"), c.Params("sessionId"))
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"goal": goal})
}

func (r milestoneRequest) input() (services.MilestoneInput, error) {
	targetDate, err := parseOptionalTimestamp(r.TargetDate)
	if err != nil {
		return services.MilestoneInput{}, err
	}
	return services.MilestoneInput{
		Title:      r.Title,
		Status:     models.MilestoneStatus(strings.TrimSpace(r.Status)),
		TargetDate: targetDate,
		Notes:      r.Notes,
	}, nil
}

func parseOptionalTimestamp(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	parsed, err := parseTimestamp(*raw)
	if err != nil {
		return nil, err
	}
	parsed = parsed.UTC()
	return &parsed, nil
}
