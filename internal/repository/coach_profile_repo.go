package repository

import (
	"context"

	"github.com/saeid-a/CoachOps/internal/models"
)

type CoachProfileRepository struct {
	db DBTX
}

func NewCoachProfileRepository(db DBTX) *CoachProfileRepository {
	return &CoachProfileRepository{db: db}
}

func (r *CoachProfileRepository) Upsert(ctx context.Context, userID string, fullName string, hourlyRate float64) (*models.CoachProfile, error) {
	query := `
		INSERT INTO coach_profiles (id, user_id, full_name, hourly_rate)
		VALUES (gen_random_uuid()::text, $1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET full_name = EXCLUDED.full_name, hourly_rate = EXCLUDED.hourly_rate, updated_at = NOW()
		RETURNING id, user_id, full_name, specializations, hourly_rate, currency, created_at, updated_at
	`
	var profile models.CoachProfile
	err := r.db.QueryRow(ctx, query, userID, fullName, hourlyRate).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.FullName,
		&profile.Specializations,
		&profile.HourlyRate,
		&profile.Currency,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &profile, nil
}

func (r *CoachProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.CoachProfile, error) {
	query := `
		SELECT id, user_id, full_name, specializations, hourly_rate, currency, created_at, updated_at
		FROM coach_profiles
		WHERE user_id = $1
	`
	var profile models.CoachProfile
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.FullName,
		&profile.Specializations,
		&profile.HourlyRate,
		&profile.Currency,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &profile, nil
}
