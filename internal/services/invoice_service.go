package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/saeid-a/CoachOps/internal/logging"
	"github.com/saeid-a/CoachOps/internal/models"
	"github.com/saeid-a/CoachOps/internal/repository"
)

const (
	defaultDueDays      = 30
	defaultCurrency     = "USD"
	defaultReminderType = "email"
)

// paymentTransitions lists the statuses reachable from each status. void is
// terminal and reported separately.
var paymentTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPending:  {models.PaymentStatusPaid, models.PaymentStatusFailed, models.PaymentStatusVoid},
	models.PaymentStatusPaid:     {models.PaymentStatusRefunded, models.PaymentStatusVoid},
	models.PaymentStatusFailed:   {models.PaymentStatusPending, models.PaymentStatusPaid, models.PaymentStatusVoid},
	models.PaymentStatusRefunded: {models.PaymentStatusVoid},
}

type InvoiceService struct {
	repos    repository.Repositories
	tx       repository.Transactor
	notifier Notifier
	now      func() time.Time
	newID    func() string
	dueDays  int
	currency string
}

type InvoiceOption func(*InvoiceService)

func WithNotifier(notifier Notifier) InvoiceOption {
	return func(s *InvoiceService) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// WithDueDays sets how far past creation the default due date lies.
func WithDueDays(days int) InvoiceOption {
	return func(s *InvoiceService) {
		if days > 0 {
			s.dueDays = days
		}
	}
}

func WithDefaultCurrency(currency string) InvoiceOption {
	return func(s *InvoiceService) {
		if currency = strings.ToUpper(strings.TrimSpace(currency)); currency != "" {
			s.currency = currency
		}
	}
}

func NewInvoiceService(repos repository.Repositories, tx repository.Transactor, opts ...InvoiceOption) *InvoiceService {
	s := &InvoiceService{
		repos:    repos,
		tx:       tx,
		notifier: noopNotifier{},
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		dueDays:  defaultDueDays,
		currency: defaultCurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateInvoiceInput struct {
	CoachID    string
	SessionIDs []string
	Amount     *float64
	TaxAmount  *float64
	Currency   string
	DueDate    *time.Time
	Period     *models.BillingPeriod
	Notes      string
}

type MarkPaidInput struct {
	PaidAt    *time.Time
	Method    string
	Reference string
}

type UpdatePaymentInput struct {
	Status     *models.PaymentStatus
	InvoiceURL *string
	PaidAt     *time.Time
	Notes      *string
	Amount     *float64
	TaxAmount  *float64
	// Reminders are appended to the payment's reminder history.
	Reminders []models.Reminder
}

// CreateInvoice bills a batch of completed sessions of one coach. The batch
// is all-or-nothing: any invalid session fails the call and nothing is
// written. Numbering, the billing check and the session back-references all
// happen under the organization's invoice lock.
func (s *InvoiceService) CreateInvoice(ctx context.Context, actor models.Actor, input CreateInvoiceInput) (*models.Payment, error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleManager, models.RoleCoach) {
		return nil, forbiddenError("only admins, managers and coaches can create invoices")
	}
	if actor.Role == models.RoleCoach && input.CoachID != actor.ID {
		return nil, forbiddenError("coaches can only invoice their own sessions")
	}
	if err := validateInvoiceInput(input); err != nil {
		return nil, err
	}
	if err := ensureMember(ctx, s.repos.Users, actor.OrganizationID, "coach_id", input.CoachID, models.RoleCoach); err != nil {
		return nil, err
	}

	var payment *models.Payment
	err := s.tx.WithinTx(ctx, []string{repository.InvoiceLockKey(actor.OrganizationID)}, func(ctx context.Context, repos repository.Repositories) error {
		sessions, err := loadBillableSessions(ctx, repos, actor.OrganizationID, input.CoachID, input.SessionIDs)
		if err != nil {
			return err
		}
		if err := ensureUnbilled(ctx, repos, actor.OrganizationID, input.SessionIDs, ""); err != nil {
			return err
		}

		rate, profileCurrency, err := coachRate(ctx, repos, input.CoachID)
		if err != nil {
			return err
		}

		seq, err := repos.Payments.NextInvoiceSequence(ctx, actor.OrganizationID)
		if err != nil {
			return err
		}

		now := s.now()
		payment = &models.Payment{
			ID:             s.newID(),
			OrganizationID: actor.OrganizationID,
			CoachID:        input.CoachID,
			SessionIDs:     slices.Clone(input.SessionIDs),
			LineItems:      buildLineItems(sessions, rate),
			Currency:       firstNonEmpty(strings.ToUpper(strings.TrimSpace(input.Currency)), profileCurrency, s.currency),
			Status:         models.PaymentStatusPending,
			InvoiceNumber:  FormatInvoiceNumber(seq),
			Period:         billingPeriod(input.Period, sessions),
			RemindersSent:  []models.Reminder{},
			Notes:          strings.TrimSpace(input.Notes),
			CreatedBy:      actor.ID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		amount := sumLineItems(payment.LineItems)
		if input.Amount != nil {
			amount = models.RoundCents(*input.Amount)
		}
		var tax float64
		if input.TaxAmount != nil {
			tax = models.RoundCents(*input.TaxAmount)
		}
		payment.SetAmounts(amount, tax)

		dueDate := now.AddDate(0, 0, s.dueDays)
		if input.DueDate != nil {
			dueDate = input.DueDate.UTC()
		}
		payment.DueDate = &dueDate

		if err := repos.Payments.Create(ctx, payment); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return conflictError(CodeInvoiceNumberCollision, "invoice number already in use", map[string]any{
					"invoice_number": payment.InvoiceNumber,
				})
			}
			return err
		}
		return repos.Sessions.SetPaymentID(ctx, actor.OrganizationID, payment.SessionIDs, &payment.ID)
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx).InfoContext(ctx, "invoice created",
		"payment_id", payment.ID,
		"invoice_number", payment.InvoiceNumber,
		"coach_id", payment.CoachID,
		"sessions", len(payment.SessionIDs),
	)
	s.notifier.Notify(ctx, Event{
		Type:           EventInvoiceCreated,
		OrganizationID: payment.OrganizationID,
		RecipientIDs:   []string{payment.CoachID},
		Payload:        invoicePayload(payment),
		OccurredAt:     payment.CreatedAt,
	})
	return payment, nil
}

func (s *InvoiceService) GetPayment(ctx context.Context, actor models.Actor, paymentID string) (*models.Payment, error) {
	payment, err := s.repos.Payments.GetByID(ctx, actor.OrganizationID, paymentID)
	if err != nil {
		return nil, lookupError(err, "payment", paymentID)
	}
	if !canViewPayment(actor, payment) {
		return nil, forbiddenError("not allowed to view this payment")
	}
	return payment, nil
}

func (s *InvoiceService) ListPayments(ctx context.Context, actor models.Actor, filter repository.PaymentFilter) ([]models.Payment, error) {
	filter.OrganizationID = actor.OrganizationID
	switch actor.Role {
	case models.RoleAdmin, models.RoleManager:
	case models.RoleCoach:
		filter.CoachID = actor.ID
	default:
		return nil, forbiddenError("not allowed to list payments")
	}
	return s.repos.Payments.List(ctx, filter)
}

// MarkPaid records settlement. A second call on a paid invoice fails with an
// ALREADY_PAID conflict and leaves paidAt as it was.
func (s *InvoiceService) MarkPaid(ctx context.Context, actor models.Actor, paymentID string, input MarkPaidInput) (*models.Payment, error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleManager) {
		return nil, forbiddenError("only admins and managers can record payments")
	}

	return s.mutatePayment(ctx, actor, paymentID, func(ctx context.Context, repos repository.Repositories, payment *models.Payment) error {
		if payment.Status == models.PaymentStatusPaid {
			return &Error{
				Kind:    KindConflict,
				Code:    CodeAlreadyPaid,
				Message: "payment is already paid",
				Details: map[string]any{"paid_at": payment.PaidAt},
			}
		}
		if err := s.transition(ctx, repos, payment, models.PaymentStatusPaid); err != nil {
			return err
		}

		paidAt := s.now()
		if input.PaidAt != nil {
			paidAt = input.PaidAt.UTC()
		}
		payment.PaidAt = &paidAt

		var settlement []string
		if method := strings.TrimSpace(input.Method); method != "" {
			settlement = append(settlement, "method: "+method)
		}
		if reference := strings.TrimSpace(input.Reference); reference != "" {
			settlement = append(settlement, "reference: "+reference)
		}
		if len(settlement) > 0 {
			payment.Notes = appendNote(payment.Notes, "Paid ("+strings.Join(settlement, ", ")+")")
		}
		return nil
	})
}

func (s *InvoiceService) UpdatePayment(ctx context.Context, actor models.Actor, paymentID string, input UpdatePaymentInput) (*models.Payment, error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleManager) {
		return nil, forbiddenError("only admins and managers can update payments")
	}
	problems := fieldErrors{}
	if input.Status != nil && !input.Status.Valid() {
		problems.add("status", "unknown payment status")
	}
	if input.Amount != nil && *input.Amount < 0 {
		problems.add("amount", "amount must not be negative")
	}
	if input.TaxAmount != nil && *input.TaxAmount < 0 {
		problems.add("tax_amount", "tax_amount must not be negative")
	}
	if err := problems.err(); err != nil {
		return nil, err
	}

	return s.mutatePayment(ctx, actor, paymentID, func(ctx context.Context, repos repository.Repositories, payment *models.Payment) error {
		if input.Status != nil && *input.Status != payment.Status {
			if err := s.transition(ctx, repos, payment, *input.Status); err != nil {
				return err
			}
		}
		if input.PaidAt != nil {
			paidAt := input.PaidAt.UTC()
			payment.PaidAt = &paidAt
		}
		if payment.Status == models.PaymentStatusPaid && payment.PaidAt == nil {
			paidAt := s.now()
			payment.PaidAt = &paidAt
		}
		if input.InvoiceURL != nil {
			payment.InvoiceURL = strings.TrimSpace(*input.InvoiceURL)
		}
		if input.Notes != nil {
			payment.Notes = strings.TrimSpace(*input.Notes)
		}
		if input.Amount != nil || input.TaxAmount != nil {
			amount, tax := payment.Amount, payment.TaxAmount
			if input.Amount != nil {
				amount = models.RoundCents(*input.Amount)
			}
			if input.TaxAmount != nil {
				tax = models.RoundCents(*input.TaxAmount)
			}
			payment.SetAmounts(amount, tax)
		}
		for _, reminder := range input.Reminders {
			payment.RemindersSent = append(payment.RemindersSent, s.reminder(reminder.Type, reminder.SentAt))
		}
		return nil
	})
}

// SendReminder appends a reminder to a pending invoice and hands the event to
// the notifier. Delivery is not awaited.
func (s *InvoiceService) SendReminder(ctx context.Context, actor models.Actor, paymentID string, reminderType string) (*models.Payment, error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleManager, models.RoleCoach) {
		return nil, forbiddenError("not allowed to send reminders")
	}

	var reminder models.Reminder
	payment, err := s.mutatePayment(ctx, actor, paymentID, func(_ context.Context, _ repository.Repositories, payment *models.Payment) error {
		if actor.Role == models.RoleCoach && payment.CoachID != actor.ID {
			return forbiddenError("coaches can only send reminders for their own invoices")
		}
		if payment.Status != models.PaymentStatusPending {
			return validationError(CodePaymentNotPending, "reminders can only be sent for pending payments", map[string]any{
				"status": payment.Status,
			})
		}
		reminder = s.reminder(reminderType, time.Time{})
		payment.RemindersSent = append(payment.RemindersSent, reminder)
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload := invoicePayload(payment)
	payload["reminder_type"] = reminder.Type
	payload["reminder_count"] = len(payment.RemindersSent)
	s.notifier.Notify(ctx, Event{
		Type:           EventReminderSent,
		OrganizationID: payment.OrganizationID,
		RecipientIDs:   []string{payment.CoachID},
		Payload:        payload,
		OccurredAt:     reminder.SentAt,
	})
	return payment, nil
}

// mutatePayment applies fn to a payment while holding both the payment's and
// the organization's invoice lock. Void payments are immutable.
func (s *InvoiceService) mutatePayment(
	ctx context.Context,
	actor models.Actor,
	paymentID string,
	fn func(ctx context.Context, repos repository.Repositories, payment *models.Payment) error,
) (*models.Payment, error) {
	keys := []string{
		repository.InvoiceLockKey(actor.OrganizationID),
		repository.PaymentLockKey(paymentID),
	}

	var result *models.Payment
	err := s.tx.WithinTx(ctx, keys, func(ctx context.Context, repos repository.Repositories) error {
		payment, err := repos.Payments.GetByID(ctx, actor.OrganizationID, paymentID)
		if err != nil {
			return lookupError(err, "payment", paymentID)
		}
		if !canViewPayment(actor, payment) {
			return forbiddenError("not allowed to modify this payment")
		}
		if payment.Status == models.PaymentStatusVoid {
			return conflictError(CodePaymentVoid, "void payments cannot be changed", map[string]any{"payment_id": paymentID})
		}
		if err := fn(ctx, repos, payment); err != nil {
			return err
		}
		payment.UpdatedAt = s.now()
		if err := repos.Payments.Update(ctx, payment); err != nil {
			return lookupError(err, "payment", paymentID)
		}
		result = payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// transition moves payment to status and keeps the sessions' paymentId in
// step: entering pending/paid claims the sessions, leaving releases them.
func (s *InvoiceService) transition(ctx context.Context, repos repository.Repositories, payment *models.Payment, status models.PaymentStatus) error {
	if !slices.Contains(paymentTransitions[payment.Status], status) {
		return conflictError(CodeInvalidTransition, "payment status transition not allowed", map[string]any{
			"from": payment.Status,
			"to":   status,
		})
	}

	wasBilling, willBill := payment.Status.Bills(), status.Bills()
	switch {
	case wasBilling && !willBill:
		if err := repos.Sessions.SetPaymentID(ctx, payment.OrganizationID, payment.SessionIDs, nil); err != nil {
			return err
		}
	case !wasBilling && willBill:
		if err := ensureUnbilled(ctx, repos, payment.OrganizationID, payment.SessionIDs, payment.ID); err != nil {
			return err
		}
		if err := repos.Sessions.SetPaymentID(ctx, payment.OrganizationID, payment.SessionIDs, &payment.ID); err != nil {
			return err
		}
	}
	payment.Status = status
	return nil
}

func (s *InvoiceService) reminder(reminderType string, sentAt time.Time) models.Reminder {
	reminderType = strings.TrimSpace(reminderType)
	if reminderType == "" {
		reminderType = defaultReminderType
	}
	if sentAt.IsZero() {
		sentAt = s.now()
	}
	return models.Reminder{SentAt: sentAt.UTC(), Type: reminderType}
}

// FormatInvoiceNumber renders a per-organization sequence value as INV-001.
func FormatInvoiceNumber(seq int) string {
	return fmt.Sprintf("INV-%03d", seq)
}

func validateInvoiceInput(input CreateInvoiceInput) error {
	problems := fieldErrors{}
	if strings.TrimSpace(input.CoachID) == "" {
		problems.add("coach_id", "coach_id is required")
	}
	if len(input.SessionIDs) == 0 {
		problems.add("session_ids", "at least one session is required")
	}
	seen := make(map[string]struct{}, len(input.SessionIDs))
	for _, id := range input.SessionIDs {
		if strings.TrimSpace(id) == "" {
			problems.add("session_ids", "session ids must not be empty")
			continue
		}
		if _, dup := seen[id]; dup {
			problems.add("session_ids", "session "+id+" is listed more than once")
		}
		seen[id] = struct{}{}
	}
	if input.Amount != nil && *input.Amount < 0 {
		problems.add("amount", "amount must not be negative")
	}
	if input.TaxAmount != nil && *input.TaxAmount < 0 {
		problems.add("tax_amount", "tax_amount must not be negative")
	}
	if input.Period != nil && input.Period.End.Before(input.Period.Start) {
		problems.add("period", "period end must not precede its start")
	}
	return problems.err()
}

// loadBillableSessions returns the sessions in request order, failing unless
// every one exists in the organization, belongs to the coach and is completed.
func loadBillableSessions(
	ctx context.Context,
	repos repository.Repositories,
	organizationID string,
	coachID string,
	sessionIDs []string,
) ([]models.Session, error) {
	found, err := repos.Sessions.List(ctx, repository.SessionFilter{
		OrganizationID: organizationID,
		IDs:            sessionIDs,
	})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Session, len(found))
	for _, session := range found {
		byID[session.ID] = session
	}

	details := map[string]any{}
	onlyIncomplete := true
	sessions := make([]models.Session, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		session, ok := byID[id]
		switch {
		case !ok:
			details[id] = "session not found"
			onlyIncomplete = false
		case session.CoachID != coachID:
			details[id] = "session belongs to another coach"
			onlyIncomplete = false
		case session.Status != models.SessionStatusCompleted:
			details[id] = fmt.Sprintf("session is %s, not completed", session.Status)
		default:
			sessions = append(sessions, session)
		}
	}
	if len(details) > 0 {
		code := CodeValidation
		if onlyIncomplete {
			code = CodeSessionNotCompleted
		}
		return nil, validationError(code, "sessions cannot be invoiced", details)
	}
	return sessions, nil
}

// ensureUnbilled fails when any session is held by a pending or paid payment
// other than excludePaymentID.
func ensureUnbilled(
	ctx context.Context,
	repos repository.Repositories,
	organizationID string,
	sessionIDs []string,
	excludePaymentID string,
) error {
	holders, err := repos.Payments.List(ctx, repository.PaymentFilter{
		OrganizationID: organizationID,
		Statuses:       []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusPaid},
		SessionIDs:     sessionIDs,
	})
	if err != nil {
		return err
	}

	billed := map[string]any{}
	for _, holder := range holders {
		if holder.ID == excludePaymentID {
			continue
		}
		for _, id := range holder.SessionIDs {
			if slices.Contains(sessionIDs, id) {
				billed[id] = holder.InvoiceNumber
			}
		}
	}
	if len(billed) > 0 {
		return conflictError(CodeSessionAlreadyBilled, "sessions are already billed", billed)
	}
	return nil
}

// coachRate returns the coach's hourly rate and currency. A coach without a
// profile bills at zero.
func coachRate(ctx context.Context, repos repository.Repositories, coachID string) (float64, string, error) {
	if repos.CoachProfiles == nil {
		return 0, "", nil
	}
	profile, err := repos.CoachProfiles.GetByUserID(ctx, coachID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", err
	}
	var currency string
	if profile.Currency != nil {
		currency = strings.ToUpper(strings.TrimSpace(*profile.Currency))
	}
	return profile.Rate(), currency, nil
}

func buildLineItems(sessions []models.Session, rate float64) []models.LineItem {
	items := make([]models.LineItem, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, models.LineItem{
			SessionID:   session.ID,
			Description: "Coaching session on " + session.ScheduledAt.UTC().Format("Jan 2, 2006"),
			Duration:    session.Duration,
			Rate:        rate,
			Amount:      models.RoundCents(rate * float64(session.Duration) / 60),
		})
	}
	return items
}

func sumLineItems(items []models.LineItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Amount
	}
	return models.RoundCents(total)
}

// billingPeriod defaults to the span from the earliest session start to the
// latest session end.
func billingPeriod(requested *models.BillingPeriod, sessions []models.Session) models.BillingPeriod {
	if requested != nil {
		return models.BillingPeriod{Start: requested.Start.UTC(), End: requested.End.UTC()}
	}
	var period models.BillingPeriod
	for i, session := range sessions {
		end := session.EndTime
		if end.IsZero() {
			end = models.SessionEnd(session.ScheduledAt, session.Duration)
		}
		if i == 0 || session.ScheduledAt.Before(period.Start) {
			period.Start = session.ScheduledAt
		}
		if i == 0 || end.After(period.End) {
			period.End = end
		}
	}
	return period
}

func invoicePayload(payment *models.Payment) map[string]any {
	return map[string]any{
		"payment_id":     payment.ID,
		"invoice_number": payment.InvoiceNumber,
		"total_amount":   payment.TotalAmount,
		"currency":       payment.Currency,
		"due_date":       payment.DueDate,
	}
}

func appendNote(notes, line string) string {
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func canViewPayment(actor models.Actor, payment *models.Payment) bool {
	if actor.HasRole(models.RoleAdmin, models.RoleManager) {
		return true
	}
	return actor.Role == models.RoleCoach && actor.ID == payment.CoachID
}
