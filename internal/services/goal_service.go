package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saeid-a/CoachOps/internal/models"
	"github.com/saeid-a/CoachOps/internal/repository"
)

const CodeProgressDerived = "PROGRESS_DERIVED_FROM_MILESTONES"

type GoalService struct {
	repos repository.Repositories
	tx    repository.Transactor
	now   func() time.Time
	newID func() string
}

func NewGoalService(repos repository.Repositories, tx repository.Transactor) *GoalService {
	return &GoalService{
		repos: repos,
		tx:    tx,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

type MilestoneInput struct {
	Title      string
	Status     models.MilestoneStatus
	TargetDate *time.Time
	Notes      string
}

type CreateGoalInput struct {
	EntrepreneurID string
	CoachID        string
	Title          string
	Description    string
	Status         models.GoalStatus
	Priority       models.GoalPriority
	Progress       *int
	TargetDate     *time.Time
	Milestones     []MilestoneInput
}

type UpdateGoalInput struct {
	Title       *string
	Description *string
	Status      *models.GoalStatus
	Priority    *models.GoalPriority
	TargetDate  *time.Time
	IsArchived  *bool
}

// goalChange is what a goal mutation reports back for the audit log.
type goalChange struct {
	updateType models.UpdateType
	message    string
	changes    map[string]models.FieldChange
}

func (s *GoalService) CreateGoal(ctx context.Context, actor models.Actor, input CreateGoalInput) (*models.Goal, error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleManager, models.RoleCoach) {
		return nil, forbiddenError("only admins, managers and coaches can create goals")
	}

	problems := fieldErrors{}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		problems.add("title", "title is required")
	}
	if strings.TrimSpace(input.EntrepreneurID) == "" {
		problems.add("entrepreneur_id", "entrepreneur_id is required")
	}
	status := input.Status
	if status == "" {
		status = models.GoalStatusNotStarted
	}
	if !status.Valid() {
		problems.add("status", "unknown goal status")
	}
	priority := input.Priority
	if priority == "" {
		priority = models.GoalPriorityMedium
	}
	if !priority.Valid() {
		problems.add("priority", "priority must be low, medium or high")
	}
	for i, milestone := range input.Milestones {
		validateMilestone(problems, fmt.Sprintf("milestones[%d]", i), milestone)
	}
	if err := problems.err(); err != nil {
		return nil, err
	}

	coachID := input.CoachID
	if coachID == "" && actor.Role == models.RoleCoach {
		coachID = actor.ID
	}

	now := s.now()
	goal := &models.Goal{
		ID:             s.newID(),
		OrganizationID: actor.OrganizationID,
		EntrepreneurID: input.EntrepreneurID,
		CoachID:        coachID,
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		Status:         status,
		Priority:       priority,
		TargetDate:     input.TargetDate,
		Milestones:     []models.Milestone{},
		Collaborators:  []models.Collaborator{},
		Comments:       []models.GoalComment{},
		LinkedSessions: []string{},
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, milestone := range input.Milestones {
		goal.Milestones = append(goal.Milestones, s.newMilestone(milestone))
	}

	// Progress and status are logged as initial values, so derive them on a
	// scratch map and discard its from-values.
	scratch := map[string]models.FieldChange{}
	if input.Progress != nil {
		applyProgress(goal, *input.Progress, scratch)
	}
	recomputeProgress(goal, scratch)
	if goal.Status == models.GoalStatusCompleted && goal.Progress < 100 {
		if len(goal.Milestones) > 0 {
			return nil, validationError(CodeProgressDerived, "complete every milestone to complete this goal", map[string]any{"progress": goal.Progress})
		}
		goal.Progress = 100
	}

	goal.UpdateLog = []models.GoalUpdate{{
		UpdatedBy:  actor.ID,
		UpdateType: models.UpdateTypeCreated,
		Message:    "Goal created",
		Changes: map[string]models.FieldChange{
			"title":    {From: nil, To: goal.Title},
			"status":   {From: nil, To: goal.Status},
			"priority": {From: nil, To: goal.Priority},
			"progress": {From: nil, To: goal.Progress},
		},
		UpdatedAt: now,
	}}

	if err := s.repos.Goals.Create(ctx, goal); err != nil {
		return nil, err
	}
	return goal, nil
}

func (s *GoalService) GetGoal(ctx context.Context, actor models.Actor, goalID string) (*models.Goal, error) {
	goal, err := s.repos.Goals.GetByID(ctx, actor.OrganizationID, goalID)
	if err != nil {
		return nil, lookupError(err, "goal", goalID)
	}
	if !canViewGoal(actor, goal) {
		return nil, forbiddenError("not allowed to view this goal")
	}
	return goal, nil
}

func (s *GoalService) ListGoals(ctx context.Context, actor models.Actor, filter repository.GoalFilter) ([]models.Goal, error) {
	filter.OrganizationID = actor.OrganizationID
	switch actor.Role {
	case models.RoleAdmin, models.RoleManager:
	case models.RoleCoach:
		filter.CoachID = actor.ID
	case models.RoleEntrepreneur:
		filter.EntrepreneurID = actor.ID
	default:
		return nil, forbiddenError("not allowed to list goals")
	}
	return s.repos.Goals.List(ctx, filter)
}

func (s *GoalService) UpdateGoal(ctx context.Context, actor models.Actor, goalID string, input UpdateGoalInput) (*models.Goal, error) {
	problems := fieldErrors{}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		problems.add("title", "title must not be empty")
	}
	if input.Status != nil && !input.Status.Valid() {
		problems.add("status", "unknown goal status")
	}
	if input.Priority != nil && !input.Priority.Valid() {
		problems.add("priority", "priority must be low, medium or high")
	}
	if err := problems.err(); err != nil {
		return nil, err
	}

	return s.mutateGoal(ctx, actor, goalID, func(_ context.Context, _ repository.Repositories, goal *models.Goal) (*goalChange, error) {
		if !canEditGoal(actor, goal) {
			return nil, forbiddenError("not allowed to edit this goal")
		}
		changes := map[string]models.FieldChange{}
		if input.Title != nil {
			setString(changes, "title", &goal.Title, strings.TrimSpace(*input.Title))
		}
		if input.Description != nil {
			setString(changes, "description", &goal.Description, strings.TrimSpace(*input.Description))
		}
		if input.Priority != nil && *input.Priority != goal.Priority {
			changes["priority"] = models.FieldChange{From: goal.Priority, To: *input.Priority}
			goal.Priority = *input.Priority
		}
		if input.TargetDate != nil && (goal.TargetDate == nil || !goal.TargetDate.Equal(*input.TargetDate)) {
			changes["target_date"] = models.FieldChange{From: goal.TargetDate, To: *input.TargetDate}
			target := input.TargetDate.UTC()
			goal.TargetDate = &target
		}
		if input.IsArchived != nil && *input.IsArchived != goal.IsArchived {
			changes["is_archived"] = models.FieldChange{From: goal.IsArchived, To: *input.IsArchived}
			goal.IsArchived = *input.IsArchived
		}
		if input.Status != nil && *input.Status != goal.Status {
			if err := applyStatus(goal, *input.Status, changes); err != nil {
				return nil, err
			}
		}
		return &goalChange{updateType: models.UpdateTypeUpdated, message: "Goal updated", changes: changes}, nil
	})
}

// UpdateMilestoneStatus sets a milestone's status and recomputes the goal's
// progress in the same audit entry.
func (s *GoalService) UpdateMilestoneStatus(
	ctx context.Context,
	actor models.Actor,
	goalID string,
	milestoneID string,
	status models.MilestoneStatus,
	notes *string,
) (*models.Goal, error) {
	if !status.Valid() {
		return nil, validationError(CodeValidation, "unknown milestone status", map[string]any{"status": status})
	}

	return s.mutateGoal(ctx, actor, goalID, func(_ context.Context, _ repository.Repositories, goal *models.Goal) (*goalChange, error) {
		if !canEditGoal(actor, goal) {
			return nil, forbiddenError("not allowed to edit this goal")
		}
		idx := goal.MilestoneIndex(milestoneID)
		if idx < 0 {
			return nil, notFoundError("milestone", milestoneID)
		}
		milestone := &goal.Milestones[idx]
		changes := map[string]models.FieldChange{}
		prefix := "milestones." + milestone.ID

		if milestone.Status != status {
			changes[prefix+".status"] = models.FieldChange{From: milestone.Status, To: status}
			milestone.Status = status
		}
		if status == models.MilestoneStatusCompleted && milestone.CompletedAt == nil {
			completedAt := s.now()
			milestone.CompletedAt = &completedAt
		}
		if status != models.MilestoneStatusCompleted && milestone.CompletedAt != nil {
			changes[prefix+".completed_at"] = models.FieldChange{From: *milestone.CompletedAt, To: nil}
			milestone.CompletedAt = nil
		}
		if notes != nil {
			setString(changes, prefix+".notes", &milestone.Notes, strings.TrimSpace(*notes))
		}
		recomputeProgress(goal, changes)

		return &goalChange{
			updateType: models.UpdateTypeMilestone,
			message:    fmt.Sprintf("Milestone %q marked %s", milestone.Title, milestone.Status),
			changes:    changes,
		}, nil
	})
}

func (s *GoalService) AddMilestone(ctx context.Context, actor models.Actor, goalID string, input MilestoneInput) (*models.Goal, error) {
	problems := fieldErrors{}
	validateMilestone(problems, "milestone", input)
	if err := problems.err(); err != nil {
		return nil, err
	}

	return s.mutateGoal(ctx, actor, goalID, func(_ context.Context, _ repository.Repositories, goal *models.Goal) (*goalChange, error) {
		if !canEditGoal(actor, goal) {
			return nil, forbiddenError("not allowed to edit this goal")
		}
		milestone := s.newMilestone(input)
		changes := map[string]models.FieldChange{
			"milestones": {From: len(goal.Milestones), To: len(goal.Milestones) + 1},
		}
		goal.Milestones = append(goal.Milestones, milestone)
		recomputeProgress(goal, changes)
		return &goalChange{
			updateType: models.UpdateTypeMilestone,
			message:    fmt.Sprintf("Milestone %q added", milestone.Title),
			changes:    changes,
		}, nil
	})
}

// RecomputeProgress derives progress from milestone completion. Goals without
// milestones are left untouched.
func (s *GoalService) RecomputeProgress(ctx context.Context, actor models.Actor, goalID string) (*models.Goal, error) {
	return s.mutateGoal(ctx, actor, goalID, func(_ context.Context, _ repository.Repositories, goal *models.Goal) (*goalChange, error) {
		if !canEditGoal(actor, goal) {
			return nil, forbiddenError("not allowed to edit this goal")
		}
		changes := map[string]models.FieldChange{}
		recomputeProgress(goal, changes)
		return &goalChange{
			updateType: models.UpdateTypeProgress,
			message:    "Progress recomputed from milestones",
			changes:    changes,
		}, nil
	})
}

func (s *GoalService) SetProgressDirectly(ctx context.Context, actor models.Actor, goalID string, progress int) (*models.Goal, error) {
	return s.mutateGoal(ctx, actor, goalID, func(_ context.Context, _ repository.Repositories, goal *models.Goal) (*goalChange, error) {
		if !canEditGoal(actor, goal) {
			return nil, forbiddenError("not allowed to edit this goal")
		}
		if len(goal.Milestones) > 0 {
			return nil, validationError(CodeProgressDerived, "progress is derived from milestones for this goal", map[string]any{
				"milestones": len(goal.Milestones),
			})
		}
		changes := map[string]models.FieldChange{}
		applyProgress(goal, progress, changes)
		return &goalChange{
			updateType: models.UpdateTypeProgress,
			message:    fmt.Sprintf("Progress set to %d%%", goal.Progress),
			changes:    changes,
		}, nil
	})
}

func (s *GoalService) AddComment(ctx context.Context, actor models.Actor, goalID string, text string) (*models.Goal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationError(CodeValidation, "validation failed", map[string]any{"text": "text is required"})
	}

	return s.mutateGoal(ctx, actor, goalID, func(_ context.Context, _ repository.Repositories, goal *models.Goal) (*goalChange, error) {
		if !canViewGoal(actor, goal) {
			return nil, forbiddenError("not allowed to comment on this goal")
		}
		changes := map[string]models.FieldChange{
			"comments": {From: len(goal.Comments), To: len(goal.Comments) + 1},
		}
		goal.Comments = append(goal.Comments, models.GoalComment{
			UserID:    actor.ID,
			Text:      text,
			CreatedAt: s.now(),
		})
		return &goalChange{updateType: models.UpdateTypeComment, message: "Comment added", changes: changes}, nil
	})
}

func (s *GoalService) AddCollaborator(ctx context.Context, actor models.Actor, goalID string, userID string, role string) (*models.Goal, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, validationError(CodeValidation, "validation failed", map[string]any{"user_id": "user_id is required"})
	}
	role = strings.TrimSpace(role)
	if role == "" {
		role = "viewer"
	}

	return s.mutateGoal(ctx, actor, goalID, func(ctx context.Context, repos repository.Repositories, goal *models.Goal) (*goalChange, error) {
		if !canManageGoal(actor, goal) {
			return nil, forbiddenError("not allowed to manage collaborators on this goal")
		}
		if goal.HasCollaborator(userID) {
			return nil, conflictError(CodeDuplicateCollaborator, "user is already a collaborator", map[string]any{"user_id": userID})
		}
		if repos.Users != nil {
			user, err := repos.Users.GetByID(ctx, userID)
			if errors.Is(err, repository.ErrNotFound) || (err == nil && user.OrganizationID != goal.OrganizationID) {
				return nil, validationError(CodeValidation, "validation failed", map[string]any{"user_id": "user is not a member of this organization"})
			}
			if err != nil {
				return nil, err
			}
		}
		goal.Collaborators = append(goal.Collaborators, models.Collaborator{
			UserID:  userID,
			Role:    role,
			AddedAt: s.now(),
		})
		return &goalChange{
			updateType: models.UpdateTypeCollaborator,
			message:    "Collaborator added",
			changes:    map[string]models.FieldChange{"collaborators": {From: nil, To: userID}},
		}, nil
	})
}

func (s *GoalService) LinkSession(ctx context.Context, actor models.Actor, goalID string, sessionID string) (*models.Goal, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, validationError(CodeValidation, "validation failed", map[string]any{"session_id": "session_id is required"})
	}

	return s.mutateGoal(ctx, actor, goalID, func(ctx context.Context, repos repository.Repositories, goal *models.Goal) (*goalChange, error) {
		if !canEditGoal(actor, goal) {
			return nil, forbiddenError("not allowed to edit this goal")
		}
		if goal.HasLinkedSession(sessionID) {
			return nil, conflictError(CodeDuplicateSessionLink, "session is already linked to this goal", map[string]any{"session_id": sessionID})
		}
		if _, err := repos.Sessions.GetByID(ctx, goal.OrganizationID, sessionID); err != nil {
			return nil, lookupError(err, "session", sessionID)
		}
		goal.LinkedSessions = append(goal.LinkedSessions, sessionID)
		return &goalChange{
			updateType: models.UpdateTypeSessionLink,
			message:    "Session linked",
			changes:    map[string]models.FieldChange{"linked_sessions": {From: nil, To: sessionID}},
		}, nil
	})
}

// mutateGoal applies fn under the goal's lock. A mutation that reports no
// field changes is not persisted and leaves the audit log alone; otherwise
// exactly one log entry is appended.
func (s *GoalService) mutateGoal(
	ctx context.Context,
	actor models.Actor,
	goalID string,
	fn func(ctx context.Context, repos repository.Repositories, goal *models.Goal) (*goalChange, error),
) (*models.Goal, error) {
	var result *models.Goal
	err := s.tx.WithinTx(ctx, []string{repository.GoalLockKey(goalID)}, func(ctx context.Context, repos repository.Repositories) error {
		goal, err := repos.Goals.GetByID(ctx, actor.OrganizationID, goalID)
		if err != nil {
			return lookupError(err, "goal", goalID)
		}
		change, err := fn(ctx, repos, goal)
		if err != nil {
			return err
		}
		if change == nil || len(change.changes) == 0 {
			result = goal
			return nil
		}

		now := s.now()
		goal.UpdateLog = append(goal.UpdateLog, models.GoalUpdate{
			UpdatedBy:  actor.ID,
			UpdateType: change.updateType,
			Message:    change.message,
			Changes:    change.changes,
			UpdatedAt:  now,
		})
		goal.UpdatedAt = now
		if err := repos.Goals.Update(ctx, goal); err != nil {
			return lookupError(err, "goal", goalID)
		}
		result = goal
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *GoalService) newMilestone(input MilestoneInput) models.Milestone {
	status := input.Status
	if status == "" {
		status = models.MilestoneStatusPending
	}
	milestone := models.Milestone{
		ID:         s.newID(),
		Title:      strings.TrimSpace(input.Title),
		Status:     status,
		TargetDate: input.TargetDate,
		Notes:      strings.TrimSpace(input.Notes),
	}
	if status == models.MilestoneStatusCompleted {
		completedAt := s.now()
		milestone.CompletedAt = &completedAt
	}
	return milestone
}

func validateMilestone(problems fieldErrors, field string, input MilestoneInput) {
	if strings.TrimSpace(input.Title) == "" {
		problems.add(field+".title", "title is required")
	}
	if input.Status != "" && !input.Status.Valid() {
		problems.add(field+".status", "unknown milestone status")
	}
}

func clampProgress(progress int) int {
	return max(0, min(100, progress))
}

// recomputeProgress sets progress to the rounded milestone completion ratio.
// No-op for goals without milestones.
func recomputeProgress(goal *models.Goal, changes map[string]models.FieldChange) {
	total := len(goal.Milestones)
	if total == 0 {
		return
	}
	completed := 0
	for _, milestone := range goal.Milestones {
		if milestone.Status == models.MilestoneStatusCompleted {
			completed++
		}
	}
	progress := int(math.Round(100 * float64(completed) / float64(total)))
	applyProgress(goal, progress, changes)
}

// applyProgress clamps and stores progress, then realigns status:
// 100 forces completed, falling below 100 reopens a completed goal and any
// progress starts a not-started goal.
func applyProgress(goal *models.Goal, progress int, changes map[string]models.FieldChange) {
	progress = clampProgress(progress)
	if progress != goal.Progress {
		changes["progress"] = models.FieldChange{From: goal.Progress, To: progress}
		goal.Progress = progress
	}

	status := goal.Status
	switch {
	case progress >= 100:
		status = models.GoalStatusCompleted
	case goal.Status == models.GoalStatusCompleted:
		status = models.GoalStatusInProgress
	case progress > 0 && goal.Status == models.GoalStatusNotStarted:
		status = models.GoalStatusInProgress
	}
	if status != goal.Status {
		changes["status"] = models.FieldChange{From: goal.Status, To: status}
		goal.Status = status
	}
}

// applyStatus handles an explicit status change while keeping
// progress >= 100 equivalent to completed.
func applyStatus(goal *models.Goal, status models.GoalStatus, changes map[string]models.FieldChange) error {
	if goal.Progress >= 100 && status != models.GoalStatusCompleted {
		return validationError(CodeValidation, "a goal at 100% progress must stay completed", map[string]any{"status": status})
	}
	if status == models.GoalStatusCompleted && goal.Progress < 100 {
		if len(goal.Milestones) > 0 {
			return validationError(CodeProgressDerived, "complete every milestone to complete this goal", map[string]any{"progress": goal.Progress})
		}
		changes["progress"] = models.FieldChange{From: goal.Progress, To: 100}
		goal.Progress = 100
	}
	changes["status"] = models.FieldChange{From: goal.Status, To: status}
	goal.Status = status
	return nil
}

func setString(changes map[string]models.FieldChange, field string, target *string, value string) {
	if *target == value {
		return
	}
	changes[field] = models.FieldChange{From: *target, To: value}
	*target = value
}

func canViewGoal(actor models.Actor, goal *models.Goal) bool {
	if actor.HasRole(models.RoleAdmin, models.RoleManager) {
		return true
	}
	return actor.ID == goal.CoachID || actor.ID == goal.EntrepreneurID || goal.HasCollaborator(actor.ID)
}

func canEditGoal(actor models.Actor, goal *models.Goal) bool {
	return canViewGoal(actor, goal)
}

func canManageGoal(actor models.Actor, goal *models.Goal) bool {
	if actor.HasRole(models.RoleAdmin, models.RoleManager) {
		return true
	}
	return actor.ID == goal.CoachID || actor.ID == goal.CreatedBy
}
