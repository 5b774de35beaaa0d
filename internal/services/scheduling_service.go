package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saeid-a/CoachOps/internal/logging"
	"github.com/saeid-a/CoachOps/internal/models"
	"github.com/saeid-a/CoachOps/internal/repository"
)

const maxSessionMinutes = 24 * 60

// sessionTransitions lists the statuses reachable from each status.
// completed, cancelled and no_show are terminal.
var sessionTransitions = map[models.SessionStatus][]models.SessionStatus{
	models.SessionStatusScheduled: {
		models.SessionStatusCompleted,
		models.SessionStatusCancelled,
		models.SessionStatusNoShow,
		models.SessionStatusRescheduled,
	},
	models.SessionStatusRescheduled: {
		models.SessionStatusCompleted,
		models.SessionStatusCancelled,
		models.SessionStatusNoShow,
		models.SessionStatusRescheduled,
	},
}

func canTransition(from, to models.SessionStatus) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type SchedulingService struct {
	repos repository.Repositories
	tx    repository.Transactor
	now   func() time.Time
	newID func() string
}

func NewSchedulingService(repos repository.Repositories, tx repository.Transactor) *SchedulingService {
	return &SchedulingService{
		repos: repos,
		tx:    tx,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

type CreateSessionInput struct {
	CoachID         string
	EntrepreneurID  string
	ManagerID       string
	Title           string
	ScheduledAt     time.Time
	DurationMinutes int
	AgendaItems     []models.AgendaItem
	Location        string
	VideoURL        string
}

type UpdateSessionInput struct {
	CoachID         *string
	ManagerID       *string
	Title           *string
	ScheduledAt     *time.Time
	DurationMinutes *int
	AgendaItems     *[]models.AgendaItem
	Location        *string
	VideoURL        *string
}

func (s *SchedulingService) CreateSession(
	ctx context.Context,
	actor models.Actor,
	input CreateSessionInput,
) (*models.Session, error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleManager, models.RoleCoach) {
		return nil, forbiddenError("only admins, managers and coaches can schedule sessions")
	}
	if actor.Role == models.RoleCoach && input.CoachID != actor.ID {
		return nil, forbiddenError("coaches can only schedule their own sessions")
	}

	problems := fieldErrors{}
	if strings.TrimSpace(input.CoachID) == "" {
		problems.add("coach_id", "coach_id is required")
	}
	if strings.TrimSpace(input.EntrepreneurID) == "" {
		problems.add("entrepreneur_id", "entrepreneur_id is required")
	}
	if input.ScheduledAt.IsZero() {
		problems.add("scheduled_at", "scheduled_at is required")
	}
	validateDuration(problems, input.DurationMinutes)
	if err := problems.err(); err != nil {
		return nil, err
	}

	if err := ensureMember(ctx, s.repos.Users, actor.OrganizationID, "coach_id", input.CoachID, models.RoleCoach); err != nil {
		return nil, err
	}
	if err := ensureMember(ctx, s.repos.Users, actor.OrganizationID, "entrepreneur_id", input.EntrepreneurID, models.RoleEntrepreneur); err != nil {
		return nil, err
	}

	now := s.now()
	scheduledAt := input.ScheduledAt.UTC()
	session := &models.Session{
		ID:             s.newID(),
		OrganizationID: actor.OrganizationID,
		CoachID:        input.CoachID,
		EntrepreneurID: input.EntrepreneurID,
		ManagerID:      input.ManagerID,
		Title:          strings.TrimSpace(input.Title),
		ScheduledAt:    scheduledAt,
		EndTime:        models.SessionEnd(scheduledAt, input.DurationMinutes),
		Duration:       input.DurationMinutes,
		Status:         models.SessionStatusScheduled,
		AgendaItems:    input.AgendaItems,
		Notes:          map[models.NoteRole]string{},
		Location:       strings.TrimSpace(input.Location),
		VideoURL:       strings.TrimSpace(input.VideoURL),
		CreatedBy:      actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if session.ManagerID == "" && actor.Role == models.RoleManager {
		session.ManagerID = actor.ID
	}

	err := s.tx.WithinTx(ctx, []string{repository.CoachLockKey(session.CoachID)}, func(ctx context.Context, repos repository.Repositories) error {
		conflict, err := repos.Sessions.HasConflict(ctx, session.CoachID, session.ScheduledAt, session.EndTime, "")
		if err != nil {
			return err
		}
		if conflict {
			return schedulingConflict(session.CoachID, session.ScheduledAt, session.EndTime)
		}
		return repos.Sessions.Create(ctx, session)
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).InfoContext(ctx, "session scheduled",
		"session_id", session.ID,
		"coach_id", session.CoachID,
		"scheduled_at", session.ScheduledAt,
	)
	return session, nil
}

// CheckConflict reports whether the coach already has an active session
// overlapping [start, end). Touching intervals do not conflict. The coach must
// belong to the actor's organization.
func (s *SchedulingService) CheckConflict(
	ctx context.Context,
	actor models.Actor,
	coachID string,
	start time.Time,
	end time.Time,
	excludeSessionID string,
) (bool, error) {
	problems := fieldErrors{}
	if strings.TrimSpace(coachID) == "" {
		problems.add("coach_id", "coach_id is required")
	}
	if start.IsZero() || end.IsZero() || !end.After(start) {
		problems.add("end", "end must be after start")
	}
	if err := problems.err(); err != nil {
		return false, err
	}
	if err := ensureMember(ctx, s.repos.Users, actor.OrganizationID, "coach_id", coachID, models.RoleCoach); err != nil {
		return false, err
	}
	return s.repos.Sessions.HasConflict(ctx, coachID, start.UTC(), end.UTC(), excludeSessionID)
}

func (s *SchedulingService) GetSession(ctx context.Context, actor models.Actor, sessionID string) (*models.Session, error) {
	session, err := s.repos.Sessions.GetByID(ctx, actor.OrganizationID, sessionID)
	if err != nil {
		return nil, lookupError(err, "session", sessionID)
	}
	if !canViewSession(actor, session) {
		return nil, forbiddenError("not a participant of this session")
	}
	return session, nil
}

// ListSessions lists sessions in the actor's organization. Coaches and
// entrepreneurs only see sessions they take part in.
func (s *SchedulingService) ListSessions(ctx context.Context, actor models.Actor, filter repository.SessionFilter) ([]models.Session, error) {
	filter.OrganizationID = actor.OrganizationID
	switch actor.Role {
	case models.RoleAdmin, models.RoleManager:
	case models.RoleCoach:
		filter.CoachID = actor.ID
	case models.RoleEntrepreneur:
		filter.EntrepreneurID = actor.ID
	default:
		return nil, forbiddenError("not allowed to list sessions")
	}
	return s.repos.Sessions.List(ctx, filter)
}

func (s *SchedulingService) UpdateSession(
	ctx context.Context,
	actor models.Actor,
	sessionID string,
	input UpdateSessionInput,
) (*models.Session, error) {
	problems := fieldErrors{}
	if input.CoachID != nil && strings.TrimSpace(*input.CoachID) == "" {
		problems.add("coach_id", "coach_id must not be empty")
	}
	if input.ScheduledAt != nil && input.ScheduledAt.IsZero() {
		problems.add("scheduled_at", "scheduled_at must be a valid time")
	}
	if input.DurationMinutes != nil {
		validateDuration(problems, *input.DurationMinutes)
	}
	if err := problems.err(); err != nil {
		return nil, err
	}
	if input.CoachID != nil {
		if err := ensureMember(ctx, s.repos.Users, actor.OrganizationID, "coach_id", *input.CoachID, models.RoleCoach); err != nil {
			return nil, err
		}
	}

	var extraKeys []string
	if input.CoachID != nil {
		extraKeys = append(extraKeys, repository.CoachLockKey(*input.CoachID))
	}

	return s.mutateSession(ctx, actor, sessionID, extraKeys, func(ctx context.Context, repos repository.Repositories, session *models.Session) error {
		if !canManageSession(actor, session) {
			return forbiddenError("not allowed to edit this session")
		}

		coachID := session.CoachID
		scheduledAt := session.ScheduledAt
		duration := session.Duration
		if input.CoachID != nil {
			coachID = *input.CoachID
		}
		if input.ScheduledAt != nil {
			scheduledAt = input.ScheduledAt.UTC()
		}
		if input.DurationMinutes != nil {
			duration = *input.DurationMinutes
		}

		timingChanged := coachID != session.CoachID || !scheduledAt.Equal(session.ScheduledAt) || duration != session.Duration
		if timingChanged {
			if !session.Status.IsActive() {
				return validationError(CodeInvalidTransition, "only scheduled or rescheduled sessions can be moved", map[string]any{
					"status": session.Status,
				})
			}
			end := models.SessionEnd(scheduledAt, duration)
			conflict, err := repos.Sessions.HasConflict(ctx, coachID, scheduledAt, end, session.ID)
			if err != nil {
				return err
			}
			if conflict {
				return schedulingConflict(coachID, scheduledAt, end)
			}
			session.CoachID = coachID
			session.ScheduledAt = scheduledAt
			session.Duration = duration
			session.EndTime = end
		}

		if input.ManagerID != nil {
			session.ManagerID = strings.TrimSpace(*input.ManagerID)
		}
		if input.Title != nil {
			session.Title = strings.TrimSpace(*input.Title)
		}
		if input.AgendaItems != nil {
			session.AgendaItems = *input.AgendaItems
		}
		if input.Location != nil {
			session.Location = strings.TrimSpace(*input.Location)
		}
		if input.VideoURL != nil {
			session.VideoURL = strings.TrimSpace(*input.VideoURL)
		}
		return nil
	})
}

func (s *SchedulingService) TransitionStatus(
	ctx context.Context,
	actor models.Actor,
	sessionID string,
	requested string,
) (*models.Session, error) {
	next := models.SessionStatus(strings.ToLower(strings.TrimSpace(requested)))
	if next == "canceled" {
		next = models.SessionStatusCancelled
	}
	if !next.Valid() {
		return nil, validationError(CodeValidation, "unknown session status", map[string]any{"status": requested})
	}

	return s.mutateSession(ctx, actor, sessionID, nil, func(_ context.Context, _ repository.Repositories, session *models.Session) error {
		switch {
		case canManageSession(actor, session):
		case actor.ID == session.EntrepreneurID && next == models.SessionStatusCancelled:
		default:
			return forbiddenError("not allowed to change this session's status")
		}
		if !canTransition(session.Status, next) {
			return validationError(CodeInvalidTransition, "session status transition not allowed", map[string]any{
				"from": session.Status,
				"to":   next,
			})
		}
		session.Status = next
		if next == models.SessionStatusCompleted && session.EndTime.IsZero() {
			session.EndTime = s.now()
		}
		return nil
	})
}

func (s *SchedulingService) AddRating(
	ctx context.Context,
	actor models.Actor,
	sessionID string,
	score int,
	comment string,
) (*models.Session, error) {
	if score < 1 || score > 5 {
		return nil, validationError(CodeValidation, "validation failed", map[string]any{"score": "score must be between 1 and 5"})
	}

	return s.mutateSession(ctx, actor, sessionID, nil, func(_ context.Context, _ repository.Repositories, session *models.Session) error {
		if !actor.IsAdmin() && !session.IsParticipant(actor.ID) {
			return forbiddenError("only participants can rate a session")
		}
		if session.Status != models.SessionStatusCompleted {
			return validationError(CodeSessionNotCompleted, "only completed sessions can be rated", map[string]any{
				"status": session.Status,
			})
		}
		if session.Rating != nil {
			session.RatingHistory = append(session.RatingHistory, *session.Rating)
		}
		session.Rating = &models.SessionRating{
			Score:       score,
			Comment:     strings.TrimSpace(comment),
			SubmittedBy: actor.ID,
			SubmittedAt: s.now(),
		}
		return nil
	})
}

// SetRoleNote overwrites the note held for role. Writers must hold that role
// on the session; the summary note is open to every participant.
func (s *SchedulingService) SetRoleNote(
	ctx context.Context,
	actor models.Actor,
	sessionID string,
	role models.NoteRole,
	text string,
) (*models.Session, error) {
	if !role.Valid() {
		return nil, validationError(CodeValidation, "unknown note role", map[string]any{"role": role})
	}

	return s.mutateSession(ctx, actor, sessionID, nil, func(_ context.Context, _ repository.Repositories, session *models.Session) error {
		allowed := actor.IsAdmin()
		if role == models.NoteRoleSummary {
			allowed = allowed || session.IsParticipant(actor.ID)
		} else {
			allowed = allowed || (actor.ID != "" && actor.ID == session.ParticipantFor(role))
		}
		if !allowed {
			return forbiddenError("only the session's " + string(role) + " can write this note")
		}
		if session.Notes == nil {
			session.Notes = map[models.NoteRole]string{}
		}
		session.Notes[role] = strings.TrimSpace(text)
		return nil
	})
}

// mutateSession re-reads the session under its coach's lock, applies fn and
// persists the result.
func (s *SchedulingService) mutateSession(
	ctx context.Context,
	actor models.Actor,
	sessionID string,
	extraKeys []string,
	fn func(ctx context.Context, repos repository.Repositories, session *models.Session) error,
) (*models.Session, error) {
	current, err := s.repos.Sessions.GetByID(ctx, actor.OrganizationID, sessionID)
	if err != nil {
		return nil, lookupError(err, "session", sessionID)
	}
	keys := append([]string{repository.CoachLockKey(current.CoachID)}, extraKeys...)

	var updated *models.Session
	err = s.tx.WithinTx(ctx, keys, func(ctx context.Context, repos repository.Repositories) error {
		session, err := repos.Sessions.GetByID(ctx, actor.OrganizationID, sessionID)
		if err != nil {
			return lookupError(err, "session", sessionID)
		}
		if session.CoachID != current.CoachID {
			return conflictError(CodeConcurrentModification, "session was reassigned concurrently; retry", nil)
		}
		if err := fn(ctx, repos, session); err != nil {
			return err
		}
		session.UpdatedAt = s.now()
		if err := repos.Sessions.Update(ctx, session); err != nil {
			return lookupError(err, "session", sessionID)
		}
		updated = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ensureMember checks that userID belongs to the organization with the given
// role. A nil reader skips the check.
func ensureMember(ctx context.Context, users repository.UserReader, organizationID, field, userID, role string) error {
	if users == nil {
		return nil
	}
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return validationError(CodeValidation, "validation failed", map[string]any{field: "user not found"})
		}
		return err
	}
	if user.OrganizationID != organizationID || user.Role != role {
		return validationError(CodeValidation, "validation failed", map[string]any{
			field: "user is not a " + role + " of this organization",
		})
	}
	return nil
}

func validateDuration(problems fieldErrors, minutes int) {
	if minutes <= 0 || minutes > maxSessionMinutes {
		problems.add("duration", "duration must be between 1 and 1440 minutes")
	}
}

func schedulingConflict(coachID string, start, end time.Time) error {
	return conflictError(CodeSchedulingConflict, "requested time conflicts with another session", map[string]any{
		"coach_id": coachID,
		"start":    start,
		"end":      end,
	})
}

func canViewSession(actor models.Actor, session *models.Session) bool {
	return actor.HasRole(models.RoleAdmin, models.RoleManager) || session.IsParticipant(actor.ID)
}

func canManageSession(actor models.Actor, session *models.Session) bool {
	if actor.HasRole(models.RoleAdmin, models.RoleManager) {
		return true
	}
	return actor.Role == models.RoleCoach && actor.ID == session.CoachID
}
