package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/saeid-a/CoachOps/internal/models"
)

var (
	ErrNotFound  = errors.New("repository: not found")
	ErrDuplicate = errors.New("repository: duplicate")
)

// ListOptions controls ordering and windowing of List calls. Sort names a
// column; a leading "-" sorts descending.
type ListOptions struct {
	Sort  string
	Skip  int
	Limit int
}

// SortField splits Sort into the column and direction.
func (o ListOptions) SortField() (string, bool) {
	sort := strings.TrimSpace(o.Sort)
	if strings.HasPrefix(sort, "-") {
		return strings.TrimPrefix(sort, "-"), true
	}
	return sort, false
}

type SessionFilter struct {
	OrganizationID string
	CoachID        string
	EntrepreneurID string
	IDs            []string
	Statuses       []models.SessionStatus
	ListOptions
}

type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, organizationID, id string) (*models.Session, error)
	List(ctx context.Context, filter SessionFilter) ([]models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, organizationID, id string) error
	// HasConflict reports whether an active session of the coach overlaps
	// the half-open interval [start, end).
	HasConflict(ctx context.Context, coachID string, start, end time.Time, excludeSessionID string) (bool, error)
	SetPaymentID(ctx context.Context, organizationID string, sessionIDs []string, paymentID *string) error
}

type GoalFilter struct {
	OrganizationID  string
	EntrepreneurID  string
	CoachID         string
	IncludeArchived bool
	ListOptions
}

type GoalStore interface {
	Create(ctx context.Context, goal *models.Goal) error
	GetByID(ctx context.Context, organizationID, id string) (*models.Goal, error)
	List(ctx context.Context, filter GoalFilter) ([]models.Goal, error)
	Update(ctx context.Context, goal *models.Goal) error
	Delete(ctx context.Context, organizationID, id string) error
}

type PaymentFilter struct {
	OrganizationID string
	CoachID        string
	Statuses       []models.PaymentStatus
	// SessionIDs matches payments holding any of the given sessions.
	SessionIDs []string
	ListOptions
}

type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, organizationID, id string) (*models.Payment, error)
	List(ctx context.Context, filter PaymentFilter) ([]models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
	Delete(ctx context.Context, organizationID, id string) error
	// NextInvoiceSequence atomically advances the organization's invoice
	// counter and returns the new value.
	NextInvoiceSequence(ctx context.Context, organizationID string) (int, error)
}

type UserReader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type CoachProfileReader interface {
	GetByUserID(ctx context.Context, userID string) (*models.CoachProfile, error)
}

type Repositories struct {
	Sessions      SessionStore
	Goals         GoalStore
	Payments      PaymentStore
	Users         UserReader
	CoachProfiles CoachProfileReader
}

// Transactor runs fn as one unit of work. Every key in lockKeys is held
// exclusively until fn returns.
type Transactor interface {
	WithinTx(ctx context.Context, lockKeys []string, fn func(ctx context.Context, repos Repositories) error) error
}

func CoachLockKey(coachID string) string {
	return "coach:" + coachID
}

func GoalLockKey(goalID string) string {
	return "goal:" + goalID
}

func InvoiceLockKey(organizationID string) string {
	return "invoice:" + organizationID
}

func PaymentLockKey(paymentID string) string {
	return "payment:" + paymentID
}
