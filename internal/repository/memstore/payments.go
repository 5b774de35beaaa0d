package memstore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/saeid-a/CoachOps/internal/models"
	"github.com/saeid-a/CoachOps/internal/repository"
)

var trailingDigits = regexp.MustCompile(`(\d+)$`)

type paymentStore struct {
	s *Store
}

func (r *paymentStore) Create(_ context.Context, payment *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.payments[payment.ID]; exists {
		return fmt.Errorf("%w: payment %s", repository.ErrDuplicate, payment.ID)
	}
	for _, existing := range r.s.payments {
		if existing.OrganizationID == payment.OrganizationID && existing.InvoiceNumber == payment.InvoiceNumber {
			return fmt.Errorf("%w: invoice number %s", repository.ErrDuplicate, payment.InvoiceNumber)
		}
	}
	r.s.payments[payment.ID] = clone(*payment)
	return nil
}

func (r *paymentStore) GetByID(_ context.Context, organizationID, id string) (*models.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	payment, ok := r.s.payments[id]
	if !ok || payment.OrganizationID != organizationID {
		return nil, repository.ErrNotFound
	}
	out := clone(payment)
	return &out, nil
}

func (r *paymentStore) List(_ context.Context, filter repository.PaymentFilter) ([]models.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	payments := make([]models.Payment, 0)
	for _, payment := range r.s.payments {
		if filter.OrganizationID != "" && payment.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.CoachID != "" && payment.CoachID != filter.CoachID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsPaymentStatus(filter.Statuses, payment.Status) {
			continue
		}
		if len(filter.SessionIDs) > 0 && !overlaps(filter.SessionIDs, payment.SessionIDs) {
			continue
		}
		payments = append(payments, clone(payment))
	}

	field, desc := filter.SortField()
	if field == "" {
		field, desc = "created_at", true
	}
	sort.Slice(payments, func(i, j int) bool {
		a, b := payments[i], payments[j]
		if desc {
			a, b = b, a
		}
		if field == "updated_at" && !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		if field != "updated_at" && !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return window(payments, filter.ListOptions), nil
}

func (r *paymentStore) Update(_ context.Context, payment *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.payments[payment.ID]
	if !ok || existing.OrganizationID != payment.OrganizationID {
		return repository.ErrNotFound
	}
	r.s.payments[payment.ID] = clone(*payment)
	return nil
}

func (r *paymentStore) Delete(_ context.Context, organizationID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.payments[id]
	if !ok || existing.OrganizationID != organizationID {
		return repository.ErrNotFound
	}
	delete(r.s.payments, id)
	return nil
}

func (r *paymentStore) NextInvoiceSequence(_ context.Context, organizationID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.sequences[organizationID]
	if !ok {
		for _, payment := range r.s.payments {
			if payment.OrganizationID != organizationID {
				continue
			}
			match := trailingDigits.FindStringSubmatch(payment.InvoiceNumber)
			if match == nil {
				continue
			}
			if n, err := strconv.Atoi(match[1]); err == nil && n > current {
				current = n
			}
		}
	}
	current++
	r.s.sequences[organizationID] = current
	return current, nil
}

func containsPaymentStatus(statuses []models.PaymentStatus, target models.PaymentStatus) bool {
	for _, status := range statuses {
		if status == target {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	for _, v := range a {
		if containsString(b, v) {
			return true
		}
	}
	return false
}
