package models

import "time"

const (
	RoleAdmin        = "admin"
	RoleManager      = "manager"
	RoleCoach        = "coach"
	RoleEntrepreneur = "entrepreneur"
)

type User struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Actor is the caller identity supplied by the authorization layer. It is
// trusted as-is.
type Actor struct {
	ID             string
	Role           string
	OrganizationID string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) HasRole(roles ...string) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
