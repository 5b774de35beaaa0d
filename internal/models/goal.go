package models

import "time"

type GoalStatus string

const (
	GoalStatusNotStarted GoalStatus = "not_started"
	GoalStatusInProgress GoalStatus = "in_progress"
	GoalStatusCompleted  GoalStatus = "completed"
	GoalStatusBlocked    GoalStatus = "blocked"
)

func (s GoalStatus) Valid() bool {
	switch s {
	case GoalStatusNotStarted, GoalStatusInProgress, GoalStatusCompleted, GoalStatusBlocked:
		return true
	}
	return false
}

type GoalPriority string

const (
	GoalPriorityLow    GoalPriority = "low"
	GoalPriorityMedium GoalPriority = "medium"
	GoalPriorityHigh   GoalPriority = "high"
)

func (p GoalPriority) Valid() bool {
	return p == GoalPriorityLow || p == GoalPriorityMedium || p == GoalPriorityHigh
}

type MilestoneStatus string

const (
	MilestoneStatusPending    MilestoneStatus = "pending"
	MilestoneStatusInProgress MilestoneStatus = "in_progress"
	MilestoneStatusCompleted  MilestoneStatus = "completed"
)

func (s MilestoneStatus) Valid() bool {
	return s == MilestoneStatusPending || s == MilestoneStatusInProgress || s == MilestoneStatusCompleted
}

type Milestone struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Status      MilestoneStatus `json:"status"`
	TargetDate  *time.Time      `json:"target_date,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Notes       string          `json:"notes,omitempty"`
}

type Collaborator struct {
	UserID  string    `json:"user_id"`
	Role    string    `json:"role"`
	AddedAt time.Time `json:"added_at"`
}

type GoalComment struct {
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// FieldChange records a single tracked field's before and after values.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

type UpdateType string

const (
	UpdateTypeCreated      UpdateType = "created"
	UpdateTypeUpdated      UpdateType = "updated"
	UpdateTypeProgress     UpdateType = "progress"
	UpdateTypeMilestone    UpdateType = "milestone"
	UpdateTypeComment      UpdateType = "comment"
	UpdateTypeCollaborator UpdateType = "collaborator"
	UpdateTypeSessionLink  UpdateType = "session_link"
)

// GoalUpdate is one entry of a goal's append-only audit log.
type GoalUpdate struct {
	UpdatedBy  string                 `json:"updated_by"`
	UpdateType UpdateType             `json:"update_type"`
	Message    string                 `json:"message"`
	Changes    map[string]FieldChange `json:"changes"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

type Goal struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	EntrepreneurID string         `json:"entrepreneur_id"`
	CoachID        string         `json:"coach_id,omitempty"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Status         GoalStatus     `json:"status"`
	Priority       GoalPriority   `json:"priority"`
	Progress       int            `json:"progress"`
	TargetDate     *time.Time     `json:"target_date,omitempty"`
	IsArchived     bool           `json:"is_archived"`
	Milestones     []Milestone    `json:"milestones"`
	Collaborators  []Collaborator `json:"collaborators"`
	Comments       []GoalComment  `json:"comments"`
	LinkedSessions []string       `json:"linked_sessions"`
	UpdateLog      []GoalUpdate   `json:"update_log"`
	CreatedBy      string         `json:"created_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (g *Goal) MilestoneIndex(id string) int {
	for i := range g.Milestones {
		if g.Milestones[i].ID == id {
			return i
		}
	}
	return -1
}

func (g *Goal) HasCollaborator(userID string) bool {
	for _, c := range g.Collaborators {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

func (g *Goal) HasLinkedSession(sessionID string) bool {
	for _, id := range g.LinkedSessions {
		if id == sessionID {
			return true
		}
	}
	return false
}
