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

type SessionHandler struct {
	service schedulingApplicationService
}

type schedulingApplicationService interface {
	CreateSession(ctx context.Context, actor models.Actor, input services.CreateSessionInput) (*models.Session, error)
	CheckConflict(ctx context.Context, actor models.Actor, coachID string, start, end time.Time, excludeSessionID string) (bool, error)
	GetSession(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error)
	ListSessions(ctx context.Context, actor models.Actor, filter repository.SessionFilter) ([]models.Session, error)
	UpdateSession(ctx context.Context, actor models.Actor, sessionID string, input services.UpdateSessionInput) (*models.Session, error)
	TransitionStatus(ctx context.Context, actor models.Actor, sessionID string, requested string) (*models.Session, error)
	AddRating(ctx context.Context, actor models.Actor, sessionID string, score int, comment string) (*models.Session, error)
	SetRoleNote(ctx context.Context, actor models.Actor, sessionID string, role models.NoteRole, text string) (*models.Session, error)
}

func NewSessionHandler(service *services.SchedulingService) *SessionHandler {
	return &SessionHandler{service: service}
}

type createSessionRequest struct {
	CoachID         string              `json:"coach_id"`
	EntrepreneurID  string              `json:"entrepreneur_id"`
	ManagerID       string              `json:"manager_id"`
	Title           string              `json:"title"`
	ScheduledAt     string              `json:"scheduled_at"`
	DurationMinutes int                 `json:"duration_minutes"`
	AgendaItems     []models.AgendaItem `json:"agenda_items"`
	Location        string              `json:"location"`
	VideoURL        string              `json:"video_url"`
}

type updateSessionRequest struct {
	CoachID         *string              `json:"coach_id"`
	ManagerID       *string              `json:"manager_id"`
	Title           *string              `json:"title"`
	ScheduledAt     *string              `json:"scheduled_at"`
	DurationMinutes *int                 `json:"duration_minutes"`
	AgendaItems     *[]models.AgendaItem `json:"agenda_items"`
	Location        *string              `json:"location"`
	VideoURL        *string              `json:"video_url"`
}

type checkConflictRequest struct {
	CoachID          string `json:"coach_id"`
	Start            string `json:"start"`
	End              string `json:"end"`
	ExcludeSessionID string `json:"exclude_session_id"`
}

type updateSessionStatusRequest struct {
	Status string `json:"status"`
}

type addRatingRequest struct {
	Score   int    `json:"score"`
	Comment string `json:"comment"`
}

type setNoteRequest struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", nil)
	}
	scheduledAt, err := parseTimestamp(req.ScheduledAt)
	if err != nil {
		return badRequest(c, "scheduled_at must be a valid RFC3339 timestamp", nil)
	}
	coachID := strings.TrimSpace(req.CoachID)
	if coachID == "" && actor.Role == models.RoleCoach {
		coachID = actor.ID
	}

	session, err := h.service.CreateSession(c.UserContext(), actor, services.CreateSessionInput{
		CoachID:         coachID,
		EntrepreneurID:  strings.TrimSpace(req.EntrepreneurID),
		ManagerID:       strings.TrimSpace(req.ManagerID),
		Title:           req.Title,
		ScheduledAt:     scheduledAt,
		DurationMinutes: req.DurationMinutes,
		AgendaItems:     req.AgendaItems,
		Location:        req.Location,
		VideoURL:        req.VideoURL,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) CheckConflict(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req checkConflictRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", nil)
	}
	start, err := parseTimestamp(req.Start)
	if err != nil {
		return badRequest(c, "start must be a valid RFC3339 timestamp", nil)
	}
	end, err := parseTimestamp(req.End)
	if err != nil {
		return badRequest(c, "end must be a valid RFC3339 timestamp", nil)
	}

	conflict, err := h.service.CheckConflict(c.UserContext(), actor, strings.TrimSpace(req.CoachID), start, end, strings.TrimSpace(req.ExcludeSessionID))
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"conflict": conflict})
}

func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	opts, meta := listOptions(c)
	filter := repository.SessionFilter{
		CoachID:        strings.TrimSpace(c.Query("coach_id")),
		EntrepreneurID: strings.TrimSpace(c.Query("entrepreneur_id")),
		ListOptions:    opts,
	}
	for _, status := range splitList(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, models.SessionStatus(status))
	}

	sessions, err := h.service.ListSessions(c.UserContext(), actor, filter)
	if err != nil {
		return mapServiceError(c, err)
	}

	meta.Count = len(sessions)
	return c.JSON(fiber.Map{"sessions": sessions, "pagination": meta})
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	session, err := h.service.GetSession(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) UpdateSession(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req updateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", nil)
	}
	input := services.UpdateSessionInput{
		CoachID:         req.CoachID,
		ManagerID:       req.ManagerID,
		Title:           req.Title,
		DurationMinutes: req.DurationMinutes,
		AgendaItems:     req.AgendaItems,
		Location:        req.Location,
		VideoURL:        req.VideoURL,
	}
	if req.ScheduledAt != nil {
		scheduledAt, err := parseTimestamp(*req.ScheduledAt)
		if err != nil {
			return badRequest(c, "scheduled_at must be a valid RFC3339 timestamp", nil)
		}
		input.ScheduledAt = &scheduledAt
	}

	session, err := h.service.UpdateSession(c.UserContext(), actor, c.Params("id"), input)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) UpdateStatus(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req updateSessionStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", nil)
	}

	session, err := h.service.TransitionStatus(c.UserContext(), actor, c.Params("id"), req.Status)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) AddRating(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req addRatingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", nil)
	}

	session, err := h.service.AddRating(c.UserContext(), actor, c.Params("id"), req.Score, req.Comment)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session": session})
}

func (h *SessionHandler) SetNote(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req setNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", nil)
	}
	role := models.NoteRole(strings.ToLower(strings.TrimSpace(req.Role)))

	session, err := h.service.SetRoleNote(c.UserContext(), actor, c.Params("id"), role, req.Text)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"session": session})
}

func parseTimestamp(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(raw))
}
