package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/saeid-a/CoachOps/internal/models"
	"github.com/saeid-a/CoachOps/internal/repository"
)

func seedInvoice(t *testing.T, env *testEnv, number string) {
	t.Helper()
	err := env.store.Repositories().Payments.Create(context.Background(), &models.Payment{
		ID:             "seed-" + number,
		OrganizationID: testOrg,
		CoachID:        otherCoachID,
		Status:         models.PaymentStatusPaid,
		InvoiceNumber:  number,
	})
	if err != nil {
		t.Fatalf("seed invoice %s: %v", number, err)
	}
}

func countPayments(t *testing.T, env *testEnv) int {
	t.Helper()
	payments, err := env.store.Repositories().Payments.List(context.Background(), repository.PaymentFilter{OrganizationID: testOrg})
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	return len(payments)
}

func TestCreateInvoiceBuildsLineItemsAndContinuesSequence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedInvoice(t, env, "INV-003")

	hour := env.mustCompletedSession(t, coachID, 0, 60)
	half := env.mustCompletedSession(t, coachID, 24*time.Hour, 30)

	payment, err := env.invoices.CreateInvoice(ctx, managerActor, CreateInvoiceInput{
		CoachID:    coachID,
		SessionIDs: []string{hour.ID, half.ID},
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	if payment.InvoiceNumber != "INV-004" {
		t.Fatalf("expected INV-004, got %s", payment.InvoiceNumber)
	}
	if payment.Status != models.PaymentStatusPending {
		t.Fatalf("expected pending, got %q", payment.Status)
	}
	if len(payment.LineItems) != 2 || payment.LineItems[0].Amount != 100 || payment.LineItems[1].Amount != 50 {
		t.Fatalf("unexpected line items: %+v", payment.LineItems)
	}
	if payment.Amount != 150 || payment.TaxAmount != 0 || payment.TotalAmount != 150 {
		t.Fatalf("unexpected totals: amount=%.2f tax=%.2f total=%.2f", payment.Amount, payment.TaxAmount, payment.TotalAmount)
	}
	if payment.Currency != "USD" {
		t.Fatalf("expected default currency, got %q", payment.Currency)
	}
	if !payment.Period.Start.Equal(hour.ScheduledAt) || !payment.Period.End.Equal(half.EndTime) {
		t.Fatalf("unexpected period: %+v", payment.Period)
	}
	if payment.DueDate == nil || !payment.DueDate.Equal(env.invoices.now().AddDate(0, 0, 14)) {
		t.Fatalf("unexpected due date: %v", payment.DueDate)
	}

	for _, id := range []string{hour.ID, half.ID} {
		session, err := env.scheduling.GetSession(ctx, managerActor, id)
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if session.PaymentID == nil || *session.PaymentID != payment.ID {
			t.Fatalf("expected session %s to reference payment %s, got %v", id, payment.ID, session.PaymentID)
		}
	}

	events := env.notifier.Events()
	if len(events) != 1 || events[0].Type != EventInvoiceCreated || events[0].Payload["invoice_number"] != "INV-004" {
		t.Fatalf("unexpected notifications: %+v", events)
	}
}

func TestCreateInvoiceRejectsDoubleBilling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedInvoice(t, env, "INV-003")

	session := env.mustCompletedSession(t, coachID, 0, 60)
	if _, err := env.invoices.CreateInvoice(ctx, managerActor, CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{session.ID}}); err != nil {
		t.Fatalf("first invoice: %v", err)
	}
	before := countPayments(t, env)

	_, err := env.invoices.CreateInvoice(ctx, managerActor, CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{session.ID}})
	expectCode(t, err, ErrConflict, CodeSessionAlreadyBilled)
	if got := countPayments(t, env); got != before {
		t.Fatalf("expected no new payment, had %d now %d", before, got)
	}

	fresh := env.mustCompletedSession(t, coachID, 48*time.Hour, 45)
	next, err := env.invoices.CreateInvoice(ctx, managerActor, CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{fresh.ID}})
	if err != nil {
		t.Fatalf("next invoice: %v", err)
	}
	if next.InvoiceNumber != "INV-005" {
		t.Fatalf("expected the rejected attempt not to consume a number, got %s", next.InvoiceNumber)
	}
	if next.TotalAmount != 75 {
		t.Fatalf("expected 45 minutes at 100/h to bill 75, got %.2f", next.TotalAmount)
	}
}

func TestCreateInvoiceIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	completed := env.mustCompletedSession(t, coachID, 0, 60)
	scheduled := env.mustSession(t, coachID, 2*time.Hour, 60)
	foreign := env.mustCompletedSession(t, otherCoachID, 0, 60)

	tests := []struct {
		name     string
		actor    models.Actor
		input    CreateInvoiceInput
		sentinel error
		code     string
	}{
		{
			name:     "scheduled session in batch",
			actor:    managerActor,
			input:    CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{completed.ID, scheduled.ID}},
			sentinel: ErrValidation,
			code:     CodeSessionNotCompleted,
		},
		{
			name:     "session of another coach",
			actor:    managerActor,
			input:    CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{completed.ID, foreign.ID}},
			sentinel: ErrValidation,
			code:     CodeValidation,
		},
		{
			name:     "unknown session",
			actor:    managerActor,
			input:    CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{"missing"}},
			sentinel: ErrValidation,
			code:     CodeValidation,
		},
		{
			name:     "repeated session",
			actor:    managerActor,
			input:    CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{completed.ID, completed.ID}},
			sentinel: ErrValidation,
			code:     CodeValidation,
		},
		{
			name:     "coach outside organization",
			actor:    managerActor,
			input:    CreateInvoiceInput{CoachID: outsiderID, SessionIDs: []string{completed.ID}},
			sentinel: ErrValidation,
			code:     CodeValidation,
		},
		{
			name:     "coach invoicing a colleague",
			actor:    coachActor,
			input:    CreateInvoiceInput{CoachID: otherCoachID, SessionIDs: []string{foreign.ID}},
			sentinel: ErrForbidden,
			code:     CodeForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.invoices.CreateInvoice(ctx, tt.actor, tt.input)
			expectCode(t, err, tt.sentinel, tt.code)
		})
	}

	if got := countPayments(t, env); got != 0 {
		t.Fatalf("expected no payments after rejected batches, got %d", got)
	}
	session, err := env.scheduling.GetSession(ctx, managerActor, completed.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.PaymentID != nil {
		t.Fatalf("expected no payment reference, got %s", *session.PaymentID)
	}
}

func TestCreateInvoiceHonoursOverridesAndMissingRate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.mustCompletedSession(t, otherCoachID, 0, 90)
	amount, tax := 200.0, 19.999
	due := baseTime.Add(7 * 24 * time.Hour)
	payment, err := env.invoices.CreateInvoice(ctx, managerActor, CreateInvoiceInput{
		CoachID:    otherCoachID,
		SessionIDs: []string{session.ID},
		Amount:     &amount,
		TaxAmount:  &tax,
		Currency:   "eur",
		DueDate:    &due,
		Notes:      " net 7 ",
	})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if payment.InvoiceNumber != "INV-001" {
		t.Fatalf("expected first invoice number, got %s", payment.InvoiceNumber)
	}
	if payment.LineItems[0].Rate != 0 || payment.LineItems[0].Amount != 0 {
		t.Fatalf("expected zero rate without a coach profile, got %+v", payment.LineItems[0])
	}
	if payment.Amount != 200 || payment.TaxAmount != 20 || payment.TotalAmount != 220 {
		t.Fatalf("unexpected totals: %.2f + %.2f = %.2f", payment.Amount, payment.TaxAmount, payment.TotalAmount)
	}
	if payment.Currency != "EUR" || !payment.DueDate.Equal(due) || payment.Notes != "net 7" {
		t.Fatalf("overrides not applied: %+v", payment)
	}
}

func TestConcurrentInvoicesGetDistinctNumbers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const count = 8
	sessions := make([]*models.Session, count)
	for i := range sessions {
		sessions[i] = env.mustCompletedSession(t, coachID, time.Duration(i)*2*time.Hour, 60)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = map[string]bool{}
	)
	for _, session := range sessions {
		wg.Add(1)
		go func(sessionID string) {
			defer wg.Done()
			payment, err := env.invoices.CreateInvoice(ctx, managerActor, CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{sessionID}})
			if err != nil {
				t.Errorf("CreateInvoice: %v", err)
				return
			}
			mu.Lock()
			numbers[payment.InvoiceNumber] = true
			mu.Unlock()
		}(session.ID)
	}
	wg.Wait()

	for i := 1; i <= count; i++ {
		if want := fmt.Sprintf("INV-%03d", i); !numbers[want] {
			t.Fatalf("missing %s in %v", want, numbers)
		}
	}
}

func TestMarkPaidTwiceFailsAndKeepsPaidAt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.mustCompletedSession(t, coachID, 0, 60)
	payment, err := env.invoices.CreateInvoice(ctx, managerActor, CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{session.ID}})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	_, err = env.invoices.MarkPaid(ctx, coachActor, payment.ID, MarkPaidInput{})
	expectCode(t, err, ErrForbidden, "")

	paidAt := baseTime.Add(40 * 24 * time.Hour)
	paid, err := env.invoices.MarkPaid(ctx, managerActor, payment.ID, MarkPaidInput{PaidAt: &paidAt, Method: "wire", Reference: "TX-9"})
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if paid.Status != models.PaymentStatusPaid || paid.PaidAt == nil || !paid.PaidAt.Equal(paidAt) {
		t.Fatalf("unexpected paid payment: %+v", paid)
	}
	if paid.Notes != "Paid (method: wire, reference: TX-9)" {
		t.Fatalf("unexpected notes: %q", paid.Notes)
	}

	_, err = env.invoices.MarkPaid(ctx, managerActor, payment.ID, MarkPaidInput{})
	expectCode(t, err, ErrAlreadyPaid, CodeAlreadyPaid)
	expectCode(t, err, ErrConflict, "")

	current, err := env.invoices.GetPayment(ctx, managerActor, payment.ID)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if current.PaidAt == nil || !current.PaidAt.Equal(paidAt) {
		t.Fatalf("expected paidAt to stay %v, got %v", paidAt, current.PaidAt)
	}
}

func TestUpdatePaymentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.mustCompletedSession(t, coachID, 0, 60)
	payment, err := env.invoices.CreateInvoice(ctx, managerActor, CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{session.ID}})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	tax := 12.5
	url := "https://billing.example.com/inv-001.pdf"
	updated, err := env.invoices.UpdatePayment(ctx, managerActor, payment.ID, UpdatePaymentInput{
		TaxAmount:  &tax,
		InvoiceURL: &url,
		Reminders:  []models.Reminder{{Type: "sms"}},
	})
	if err != nil {
		t.Fatalf("UpdatePayment: %v", err)
	}
	if updated.TotalAmount != 112.5 || updated.InvoiceURL != url {
		t.Fatalf("unexpected payment after patch: %+v", updated)
	}

	updated, err = env.invoices.UpdatePayment(ctx, managerActor, payment.ID, UpdatePaymentInput{
		Reminders: []models.Reminder{{Type: "email"}},
	})
	if err != nil {
		t.Fatalf("UpdatePayment reminders: %v", err)
	}
	if len(updated.RemindersSent) != 2 || updated.RemindersSent[0].Type != "sms" {
		t.Fatalf("expected reminders to be appended, got %+v", updated.RemindersSent)
	}

	status := models.PaymentStatusPaid
	updated, err = env.invoices.UpdatePayment(ctx, managerActor, payment.ID, UpdatePaymentInput{Status: &status})
	if err != nil {
		t.Fatalf("UpdatePayment paid: %v", err)
	}
	if updated.PaidAt == nil || !updated.PaidAt.Equal(env.invoices.now()) {
		t.Fatalf("expected paidAt to be stamped, got %v", updated.PaidAt)
	}

	pending := models.PaymentStatusPending
	_, err = env.invoices.UpdatePayment(ctx, managerActor, payment.ID, UpdatePaymentInput{Status: &pending})
	expectCode(t, err, ErrConflict, CodeInvalidTransition)

	void := models.PaymentStatusVoid
	if _, err := env.invoices.UpdatePayment(ctx, managerActor, payment.ID, UpdatePaymentInput{Status: &void}); err != nil {
		t.Fatalf("void: %v", err)
	}
	released, err := env.scheduling.GetSession(ctx, managerActor, session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if released.PaymentID != nil {
		t.Fatalf("expected voiding to release the session, got %s", *released.PaymentID)
	}

	notes := "late"
	_, err = env.invoices.UpdatePayment(ctx, managerActor, payment.ID, UpdatePaymentInput{Notes: &notes})
	expectCode(t, err, ErrConflict, CodePaymentVoid)

	rebilled, err := env.invoices.CreateInvoice(ctx, managerActor, CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{session.ID}})
	if err != nil {
		t.Fatalf("re-invoice after void: %v", err)
	}
	if rebilled.InvoiceNumber != "INV-002" {
		t.Fatalf("expected INV-002, got %s", rebilled.InvoiceNumber)
	}
}

func TestFailedPaymentCannotReclaimRebilledSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.mustCompletedSession(t, coachID, 0, 60)
	first, err := env.invoices.CreateInvoice(ctx, managerActor, CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{session.ID}})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	failed := models.PaymentStatusFailed
	if _, err := env.invoices.UpdatePayment(ctx, managerActor, first.ID, UpdatePaymentInput{Status: &failed}); err != nil {
		t.Fatalf("fail payment: %v", err)
	}
	if _, err := env.invoices.CreateInvoice(ctx, managerActor, CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{session.ID}}); err != nil {
		t.Fatalf("re-invoice after failure: %v", err)
	}

	_, err = env.invoices.MarkPaid(ctx, managerActor, first.ID, MarkPaidInput{})
	expectCode(t, err, ErrConflict, CodeSessionAlreadyBilled)
}

func TestSendReminder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := env.mustCompletedSession(t, coachID, 0, 60)
	payment, err := env.invoices.CreateInvoice(ctx, managerActor, CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{session.ID}})
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	reminded, err := env.invoices.SendReminder(ctx, coachActor, payment.ID, "")
	if err != nil {
		t.Fatalf("SendReminder: %v", err)
	}
	if len(reminded.RemindersSent) != 1 || reminded.RemindersSent[0].Type != "email" {
		t.Fatalf("unexpected reminders: %+v", reminded.RemindersSent)
	}
	events := env.notifier.Events()
	if last := events[len(events)-1]; last.Type != EventReminderSent || last.Payload["reminder_count"] != 1 {
		t.Fatalf("unexpected reminder event: %+v", last)
	}

	_, err = env.invoices.SendReminder(ctx, actorFor(otherCoachID, models.RoleCoach), payment.ID, "")
	expectCode(t, err, ErrForbidden, "")

	if _, err := env.invoices.MarkPaid(ctx, managerActor, payment.ID, MarkPaidInput{}); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	_, err = env.invoices.SendReminder(ctx, managerActor, payment.ID, "email")
	expectCode(t, err, ErrValidation, CodePaymentNotPending)
}

// beforeUpdateSessions runs hook once ahead of the first session write.
type beforeUpdateSessions struct {
	repository.SessionStore
	hook func()
}

func (s *beforeUpdateSessions) Update(ctx context.Context, session *models.Session) error {
	if hook := s.hook; hook != nil {
		s.hook = nil
		hook()
	}
	return s.SessionStore.Update(ctx, session)
}

type hookedTransactor struct {
	repository.Transactor
	hook func()
}

func (h *hookedTransactor) WithinTx(ctx context.Context, lockKeys []string, fn func(ctx context.Context, repos repository.Repositories) error) error {
	return h.Transactor.WithinTx(ctx, lockKeys, func(ctx context.Context, repos repository.Repositories) error {
		repos.Sessions = &beforeUpdateSessions{SessionStore: repos.Sessions, hook: h.hook}
		h.hook = nil
		return fn(ctx, repos)
	})
}

func TestSessionMutationDuringInvoicingKeepsPaymentLink(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.mustCompletedSession(t, coachID, 0, 60)

	var payment *models.Payment
	tx := &hookedTransactor{Transactor: env.store, hook: func() {
		var err error
		payment, err = env.invoices.CreateInvoice(ctx, managerActor, CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{session.ID}})
		if err != nil {
			t.Errorf("CreateInvoice: %v", err)
		}
	}}
	scheduling := NewSchedulingService(env.store.Repositories(), tx)
	scheduling.now = env.scheduling.now

	if _, err := scheduling.AddRating(ctx, entrepreneurActor, session.ID, 5, "great"); err != nil {
		t.Fatalf("AddRating: %v", err)
	}
	if payment == nil {
		t.Fatal("expected the invoice to be created while the rating was in flight")
	}

	stored, err := env.store.Repositories().Sessions.GetByID(ctx, testOrg, session.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.PaymentID == nil || *stored.PaymentID != payment.ID {
		t.Fatalf("expected session to stay linked to %s, got %v", payment.ID, stored.PaymentID)
	}
	if stored.Rating == nil || stored.Rating.Score != 5 {
		t.Fatalf("expected the rating to persist, got %+v", stored.Rating)
	}

	_, err = env.invoices.CreateInvoice(ctx, managerActor, CreateInvoiceInput{CoachID: coachID, SessionIDs: []string{session.ID}})
	expectCode(t, err, ErrConflict, CodeSessionAlreadyBilled)
}
