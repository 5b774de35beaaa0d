package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/saeid-a/CoachOps/internal/models"
	"github.com/saeid-a/CoachOps/internal/repository/memstore"
)

const (
	testOrg      = "org-1"
	otherOrg     = "org-2"
	adminID      = "admin-1"
	managerID    = "manager-1"
	coachID      = "coach-1"
	otherCoachID = "coach-2"
	entrepreneur = "entrepreneur-1"
	outsiderID   = "entrepreneur-9"
)

var baseTime = time.Date(2030, 3, 15, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, event Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

type testEnv struct {
	store      *memstore.Store
	scheduling *SchedulingService
	goals      *GoalService
	invoices   *InvoiceService
	notifier   *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memstore.New()
	for _, user := range []models.User{
		{ID: adminID, OrganizationID: testOrg, Role: models.RoleAdmin},
		{ID: managerID, OrganizationID: testOrg, Role: models.RoleManager},
		{ID: coachID, OrganizationID: testOrg, Role: models.RoleCoach},
		{ID: otherCoachID, OrganizationID: testOrg, Role: models.RoleCoach},
		{ID: entrepreneur, OrganizationID: testOrg, Role: models.RoleEntrepreneur},
		{ID: outsiderID, OrganizationID: otherOrg, Role: models.RoleEntrepreneur},
	} {
		store.PutUser(user)
	}
	rate := 100.0
	store.PutCoachProfile(models.CoachProfile{ID: "profile-1", UserID: coachID, HourlyRate: &rate})

	clock := func() time.Time { return baseTime.Add(30 * 24 * time.Hour) }
	repos := store.Repositories()
	notifier := &recordingNotifier{}

	env := &testEnv{
		store:      store,
		scheduling: NewSchedulingService(repos, store),
		goals:      NewGoalService(repos, store),
		invoices:   NewInvoiceService(repos, store, WithNotifier(notifier), WithDueDays(14)),
		notifier:   notifier,
	}
	env.scheduling.now = clock
	env.goals.now = clock
	env.invoices.now = clock
	return env
}

func actorFor(id, role string) models.Actor {
	return models.Actor{ID: id, Role: role, OrganizationID: testOrg}
}

var (
	adminActor        = actorFor(adminID, models.RoleAdmin)
	managerActor      = actorFor(managerID, models.RoleManager)
	coachActor        = actorFor(coachID, models.RoleCoach)
	entrepreneurActor = actorFor(entrepreneur, models.RoleEntrepreneur)
)

// mustSession schedules a session for coachID starting offset after baseTime.
func (e *testEnv) mustSession(t *testing.T, coach string, offset time.Duration, minutes int) *models.Session {
	t.Helper()
	session, err := e.scheduling.CreateSession(context.Background(), managerActor, CreateSessionInput{
		CoachID:         coach,
		EntrepreneurID:  entrepreneur,
		ScheduledAt:     baseTime.Add(offset),
		DurationMinutes: minutes,
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return session
}

func (e *testEnv) mustCompletedSession(t *testing.T, coach string, offset time.Duration, minutes int) *models.Session {
	t.Helper()
	session := e.mustSession(t, coach, offset, minutes)
	completed, err := e.scheduling.TransitionStatus(context.Background(), managerActor, session.ID, "completed")
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	return completed
}

func errorCode(err error) string {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr.Code
	}
	return ""
}

func expectCode(t *testing.T, err error, sentinel error, code string) {
	t.Helper()
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected %v, got %v", sentinel, err)
	}
	if code != "" && errorCode(err) != code {
		t.Fatalf("expected code %s, got %s (%v)", code, errorCode(err), err)
	}
}
