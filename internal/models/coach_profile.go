package models

import "time"

type CoachProfile struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	FullName        *string   `json:"full_name"`
	Specializations *[]string `json:"specializations"`
	HourlyRate      *float64  `json:"hourly_rate"`
	Currency        *string   `json:"currency"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Rate returns the hourly rate, or zero when none is set.
func (p *CoachProfile) Rate() float64 {
	if p == nil || p.HourlyRate == nil {
		return 0
	}
	return *p.HourlyRate
}
