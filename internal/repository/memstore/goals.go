package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/saeid-a/CoachOps/internal/models"
	"github.com/saeid-a/CoachOps/internal/repository"
)

type goalStore struct {
	s *Store
}

func (r *goalStore) Create(_ context.Context, goal *models.Goal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.goals[goal.ID]; exists {
		return fmt.Errorf("%w: goal %s", repository.ErrDuplicate, goal.ID)
	}
	r.s.goals[goal.ID] = clone(*goal)
	return nil
}

func (r *goalStore) GetByID(_ context.Context, organizationID, id string) (*models.Goal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	goal, ok := r.s.goals[id]
	if !ok || goal.OrganizationID != organizationID {
		return nil, repository.ErrNotFound
	}
	out := clone(goal)
	return &out, nil
}

func (r *goalStore) List(_ context.Context, filter repository.GoalFilter) ([]models.Goal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	goals := make([]models.Goal, 0)
	for _, goal := range r.s.goals {
		if filter.OrganizationID != "" && goal.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.EntrepreneurID != "" && goal.EntrepreneurID != filter.EntrepreneurID {
			continue
		}
		if filter.CoachID != "" && goal.CoachID != filter.CoachID {
			continue
		}
		if goal.IsArchived && !filter.IncludeArchived {
			continue
		}
		goals = append(goals, clone(goal))
	}

	field, desc := filter.SortField()
	if field == "" {
		field, desc = "created_at", true
	}
	sort.Slice(goals, func(i, j int) bool {
		a, b := goals[i], goals[j]
		if desc {
			a, b = b, a
		}
		switch field {
		case "progress":
			if a.Progress != b.Progress {
				return a.Progress < b.Progress
			}
		case "updated_at":
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.Before(b.UpdatedAt)
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	})
	return window(goals, filter.ListOptions), nil
}

func (r *goalStore) Update(_ context.Context, goal *models.Goal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.goals[goal.ID]
	if !ok || existing.OrganizationID != goal.OrganizationID {
		return repository.ErrNotFound
	}
	r.s.goals[goal.ID] = clone(*goal)
	return nil
}

func (r *goalStore) Delete(_ context.Context, organizationID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.goals[id]
	if !ok || existing.OrganizationID != organizationID {
		return repository.ErrNotFound
	}
	delete(r.s.goals, id)
	return nil
}
