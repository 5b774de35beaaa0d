package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/saeid-a/CoachOps/internal/models"
	"github.com/saeid-a/CoachOps/internal/repository"
)

type sessionStore struct {
	s *Store
}

func (r *sessionStore) Create(_ context.Context, session *models.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.sessions[session.ID]; exists {
		return fmt.Errorf("%w: session %s", repository.ErrDuplicate, session.ID)
	}
	r.s.sessions[session.ID] = clone(*session)
	return nil
}

func (r *sessionStore) GetByID(_ context.Context, organizationID, id string) (*models.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	session, ok := r.s.sessions[id]
	if !ok || session.OrganizationID != organizationID {
		return nil, repository.ErrNotFound
	}
	out := clone(session)
	return &out, nil
}

func (r *sessionStore) List(_ context.Context, filter repository.SessionFilter) ([]models.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sessions := make([]models.Session, 0)
	for _, session := range r.s.sessions {
		if filter.OrganizationID != "" && session.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.CoachID != "" && session.CoachID != filter.CoachID {
			continue
		}
		if filter.EntrepreneurID != "" && session.EntrepreneurID != filter.EntrepreneurID {
			continue
		}
		if len(filter.IDs) > 0 && !containsString(filter.IDs, session.ID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsSessionStatus(filter.Statuses, session.Status) {
			continue
		}
		sessions = append(sessions, clone(session))
	}

	field, desc := filter.SortField()
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if desc {
			a, b = b, a
		}
		var ta, tb time.Time
		switch field {
		case "created_at":
			ta, tb = a.CreatedAt, b.CreatedAt
		case "updated_at":
			ta, tb = a.UpdatedAt, b.UpdatedAt
		default:
			ta, tb = a.ScheduledAt, b.ScheduledAt
		}
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return a.ID < b.ID
	})
	return window(sessions, filter.ListOptions), nil
}

func (r *sessionStore) Update(_ context.Context, session *models.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.sessions[session.ID]
	if !ok || existing.OrganizationID != session.OrganizationID {
		return repository.ErrNotFound
	}
	updated := clone(*session)
	// The payment link is owned by SetPaymentID.
	updated.PaymentID = existing.PaymentID
	r.s.sessions[session.ID] = updated
	return nil
}

func (r *sessionStore) Delete(_ context.Context, organizationID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.sessions[id]
	if !ok || existing.OrganizationID != organizationID {
		return repository.ErrNotFound
	}
	delete(r.s.sessions, id)
	return nil
}

func (r *sessionStore) HasConflict(
	_ context.Context,
	coachID string,
	start time.Time,
	end time.Time,
	excludeSessionID string,
) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, session := range r.s.sessions {
		if session.CoachID != coachID || session.ID == excludeSessionID || !session.Status.IsActive() {
			continue
		}
		if session.ScheduledAt.Before(end) && session.EndTime.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (r *sessionStore) SetPaymentID(
	_ context.Context,
	organizationID string,
	sessionIDs []string,
	paymentID *string,
) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range sessionIDs {
		session, ok := r.s.sessions[id]
		if !ok || session.OrganizationID != organizationID {
			return fmt.Errorf("set payment id on session %s: %w", id, repository.ErrNotFound)
		}
	}
	now := time.Now().UTC()
	for _, id := range sessionIDs {
		session := r.s.sessions[id]
		if paymentID == nil {
			session.PaymentID = nil
		} else {
			value := *paymentID
			session.PaymentID = &value
		}
		session.UpdatedAt = now
		r.s.sessions[id] = session
	}
	return nil
}

func containsSessionStatus(statuses []models.SessionStatus, target models.SessionStatus) bool {
	for _, status := range statuses {
		if status == target {
			return true
		}
	}
	return false
}
