package memstore

import (
	"context"

	"github.com/saeid-a/CoachOps/internal/models"
	"github.com/saeid-a/CoachOps/internal/repository"
)

type userStore struct {
	s *Store
}

func (r *userStore) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

type coachProfileStore struct {
	s *Store
}

func (r *coachProfileStore) GetByUserID(_ context.Context, userID string) (*models.CoachProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	profile, ok := r.s.coaches[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := clone(profile)
	return &out, nil
}
