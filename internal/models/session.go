package models

import "time"

type SessionStatus string

const (
	SessionStatusScheduled   SessionStatus = "scheduled"
	SessionStatusCompleted   SessionStatus = "completed"
	SessionStatusCancelled   SessionStatus = "cancelled"
	SessionStatusNoShow      SessionStatus = "no_show"
	SessionStatusRescheduled SessionStatus = "rescheduled"
)

// IsActive reports whether the status occupies the coach's calendar.
func (s SessionStatus) IsActive() bool {
	return s == SessionStatusScheduled || s == SessionStatusRescheduled
}

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusScheduled, SessionStatusCompleted, SessionStatusCancelled,
		SessionStatusNoShow, SessionStatusRescheduled:
		return true
	}
	return false
}

// NoteRole keys a session note. NoteRoleSummary is the shared note every
// participant may write.
type NoteRole string

const (
	NoteRoleCoach        NoteRole = "coach"
	NoteRoleEntrepreneur NoteRole = "entrepreneur"
	NoteRoleManager      NoteRole = "manager"
	NoteRoleSummary      NoteRole = "summary"
)

func (r NoteRole) Valid() bool {
	switch r {
	case NoteRoleCoach, NoteRoleEntrepreneur, NoteRoleManager, NoteRoleSummary:
		return true
	}
	return false
}

type AgendaItem struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Completed   bool   `json:"completed"`
}

type SessionRating struct {
	Score       int       `json:"score"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedBy string    `json:"submitted_by"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Session struct {
	ID             string              `json:"id"`
	OrganizationID string              `json:"organization_id"`
	CoachID        string              `json:"coach_id"`
	EntrepreneurID string              `json:"entrepreneur_id"`
	ManagerID      string              `json:"manager_id,omitempty"`
	PaymentID      *string             `json:"payment_id,omitempty"`
	Title          string              `json:"title,omitempty"`
	ScheduledAt    time.Time           `json:"scheduled_at"`
	EndTime        time.Time           `json:"end_time"`
	Duration       int                 `json:"duration"`
	Status         SessionStatus       `json:"status"`
	AgendaItems    []AgendaItem        `json:"agenda_items"`
	Notes          map[NoteRole]string `json:"notes"`
	Rating         *SessionRating      `json:"rating,omitempty"`
	RatingHistory  []SessionRating     `json:"rating_history,omitempty"`
	Location       string              `json:"location,omitempty"`
	VideoURL       string              `json:"video_url,omitempty"`
	CreatedBy      string              `json:"created_by"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// SessionEnd returns scheduledAt + duration minutes.
func SessionEnd(scheduledAt time.Time, durationMinutes int) time.Time {
	return scheduledAt.Add(time.Duration(durationMinutes) * time.Minute)
}

// ParticipantFor returns the user id holding the given note role.
func (s *Session) ParticipantFor(role NoteRole) string {
	switch role {
	case NoteRoleCoach:
		return s.CoachID
	case NoteRoleEntrepreneur:
		return s.EntrepreneurID
	case NoteRoleManager:
		return s.ManagerID
	}
	return ""
}

func (s *Session) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return userID == s.CoachID || userID == s.EntrepreneurID || userID == s.ManagerID
}
