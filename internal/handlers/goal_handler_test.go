package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/saeid-a/CoachOps/internal/models"
	"github.com/saeid-a/CoachOps/internal/repository"
	"github.com/saeid-a/CoachOps/internal/services"
)

type stubGoalService struct {
	result          *models.Goal
	err             error
	lastActor       models.Actor
	lastGoalID      string
	lastMilestoneID string
	lastCreate      services.CreateGoalInput
	lastUpdate      services.UpdateGoalInput
	lastStatus      models.MilestoneStatus
	lastProgress    int
	lastCall        string
	lastUserID      string
	lastSessionID   string
	lastListFilter  repository.GoalFilter
}

func (s *stubGoalService) record(call string, actor models.Actor, goalID string) (*models.Goal, error) {
	s.lastCall = call
	s.lastActor = actor
	s.lastGoalID = goalID
	return s.result, s.err
}

func (s *stubGoalService) CreateGoal(_ context.Context, actor models.Actor, input services.CreateGoalInput) (*models.Goal, error) {
	s.lastCreate = input
	return s.record("create", actor, "")
}

func (s *stubGoalService) GetGoal(_ context.Context, actor models.Actor, goalID string) (*models.Goal, error) {
	return s.record("get", actor, goalID)
}

func (s *stubGoalService) ListGoals(_ context.Context, actor models.Actor, filter repository.GoalFilter) ([]models.Goal, error) {
	s.lastListFilter = filter
	s.lastActor = actor
	return nil, s.err
}

func (s *stubGoalService) UpdateGoal(_ context.Context, actor models.Actor, goalID string, input services.UpdateGoalInput) (*models.Goal, error) {
	s.lastUpdate = input
	return s.record("update", actor, goalID)
}

func (s *stubGoalService) AddMilestone(_ context.Context, actor models.Actor, goalID string, _ services.MilestoneInput) (*models.Goal, error) {
	return s.record("add-milestone", actor, goalID)
}

func (s *stubGoalService) UpdateMilestoneStatus(_ context.Context, actor models.Actor, goalID, milestoneID string, status models.MilestoneStatus, _ *string) (*models.Goal, error) {
	s.lastMilestoneID = milestoneID
	s.lastStatus = status
	return s.record("milestone", actor, goalID)
}

func (s *stubGoalService) RecomputeProgress(_ context.Context, actor models.Actor, goalID string) (*models.Goal, error) {
	return s.record("recompute", actor, goalID)
}

func (s *stubGoalService) SetProgressDirectly(_ context.Context, actor models.Actor, goalID string, progress int) (*models.Goal, error) {
	s.lastProgress = progress
	return s.record("progress", actor, goalID)
}

func (s *stubGoalService) AddComment(_ context.Context, actor models.Actor, goalID string, _ string) (*models.Goal, error) {
	return s.record("comment", actor, goalID)
}

func (s *stubGoalService) AddCollaborator(_ context.Context, actor models.Actor, goalID string, userID string, _ string) (*models.Goal, error) {
	s.lastUserID = userID
	return s.record("collaborator", actor, goalID)
}

func (s *stubGoalService) LinkSession(_ context.Context, actor models.Actor, goalID string, sessionID string) (*models.Goal, error) {
	s.lastSessionID = sessionID
	return s.record("link", actor, goalID)
}

func newGoalHandler(service *stubGoalService) *GoalHandler {
	return &GoalHandler{service: service}
}

func TestCreateGoalParsesMilestones(t *testing.T) {
	service := &stubGoalService{result: &models.Goal{ID: "goal-1"}}
	handler := newGoalHandler(service)

	app := newTestApp(models.RoleCoach)
	app.Post("/api/v1/goals", handler.CreateGoal)

	resp, payload := doJSON(t, app, http.MethodPost, "/api/v1/goals", `{
		"entrepreneur_id": "ent-3",
		"title": "Close seed round",
		"priority": "high",
		"target_date": "2030-06-01T00:00:00Z",
		"milestones": [{"title": "Deck"}, {"title": "Data room", "status": "completed"}]
	}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if _, ok := payload["goal"]; !ok {
		t.Fatalf("expected goal in response, got %v", payload)
	}
	input := service.lastCreate
	if len(input.Milestones) != 2 || input.Milestones[1].Status != models.MilestoneStatusCompleted {
		t.Fatalf("unexpected milestones %+v", input.Milestones)
	}
	if input.Priority != models.GoalPriorityHigh || input.TargetDate == nil {
		t.Fatalf("unexpected input %+v", input)
	}
}

func TestUpdateProgressRoutesToRecomputeOrDirectWrite(t *testing.T) {
	service := &stubGoalService{result: &models.Goal{ID: "goal-1"}}
	handler := newGoalHandler(service)

	app := newTestApp(models.RoleCoach)
	app.Patch("/api/v1/goals/:id/progress", handler.UpdateProgress)

	resp, _ := doJSON(t, app, http.MethodPatch, "/api/v1/goals/goal-1/progress", `{"progress": 45}`)
	if resp.StatusCode != http.StatusOK || service.lastCall != "progress" || service.lastProgress != 45 {
		t.Fatalf("expected direct progress write, got %d %s %d", resp.StatusCode, service.lastCall, service.lastProgress)
	}

	resp, _ = doJSON(t, app, http.MethodPatch, "/api/v1/goals/goal-1/progress", `{"recompute": true}`)
	if resp.StatusCode != http.StatusOK || service.lastCall != "recompute" {
		t.Fatalf("expected recompute, got %d %s", resp.StatusCode, service.lastCall)
	}

	resp, payload := doJSON(t, app, http.MethodPatch, "/api/v1/goals/goal-1/progress", `{}`)
	if resp.StatusCode != http.StatusBadRequest || payload["code"] != codeBadRequest {
		t.Fatalf("expected 400, got %d %v", resp.StatusCode, payload)
	}
}

func TestGoalRoutesPassPathParameters(t *testing.T) {
	service := &stubGoalService{result: &models.Goal{ID: "goal-1"}}
	handler := newGoalHandler(service)

	app := newTestApp(models.RoleCoach)
	app.Patch("/api/v1/goals/:id/milestones/:milestoneId", handler.UpdateMilestone)
	app.Post("/api/v1/goals/:id/sessions/:sessionId", handler.LinkSession)
	app.Post("/api/v1/goals/:id/collaborators", handler.AddCollaborator)

	resp, _ := doJSON(t, app, http.MethodPatch, "/api/v1/goals/goal-1/milestones/m-2", `{"status":"completed"}`)
	if resp.StatusCode != http.StatusOK || service.lastMilestoneID != "m-2" || service.lastStatus != models.MilestoneStatusCompleted {
		t.Fatalf("unexpected milestone call: %d %s %s", resp.StatusCode, service.lastMilestoneID, service.lastStatus)
	}

	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/goals/goal-1/sessions/session-9", "")
	if resp.StatusCode != http.StatusCreated || service.lastSessionID != "session-9" || service.lastGoalID != "goal-1" {
		t.Fatalf("unexpected link call: %d %s %s", resp.StatusCode, service.lastGoalID, service.lastSessionID)
	}

	service.err = &services.Error{Kind: services.KindConflict, Code: services.CodeDuplicateCollaborator, Message: "user is already a collaborator"}
	resp, payload := doJSON(t, app, http.MethodPost, "/api/v1/goals/goal-1/collaborators", `{"user_id":"manager-1"}`)
	if resp.StatusCode != http.StatusConflict || payload["code"] != services.CodeDuplicateCollaborator {
		t.Fatalf("expected 409 duplicate collaborator, got %d %v", resp.StatusCode, payload)
	}
	if service.lastUserID != "manager-1" {
		t.Fatalf("expected user id to be forwarded, got %q", service.lastUserID)
	}
}

func TestListGoalsIncludeArchived(t *testing.T) {
	service := &stubGoalService{}
	handler := newGoalHandler(service)

	app := newTestApp(models.RoleManager)
	app.Get("/api/v1/goals", handler.ListGoals)

	resp, _ := doJSON(t, app, http.MethodGet, "/api/v1/goals?include_archived=true&entrepreneur_id=ent-3", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !service.lastListFilter.IncludeArchived || service.lastListFilter.EntrepreneurID != "ent-3" {
		t.Fatalf("unexpected filter %+v", service.lastListFilter)
	}
}
