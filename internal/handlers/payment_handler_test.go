package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/saeid-a/CoachOps/internal/models"
	"github.com/saeid-a/CoachOps/internal/repository"
	"github.com/saeid-a/CoachOps/internal/services"
)

type stubInvoiceService struct {
	result        *models.Payment
	err           error
	lastActor     models.Actor
	lastPaymentID string
	lastCreate    services.CreateInvoiceInput
	lastMarkPaid  services.MarkPaidInput
	lastUpdate    services.UpdatePaymentInput
	lastReminder  string
	lastFilter    repository.PaymentFilter
}

func (s *stubInvoiceService) CreateInvoice(_ context.Context, actor models.Actor, input services.CreateInvoiceInput) (*models.Payment, error) {
	s.lastActor = actor
	s.lastCreate = input
	return s.result, s.err
}

func (s *stubInvoiceService) GetPayment(_ context.Context, actor models.Actor, paymentID string) (*models.Payment, error) {
	s.lastActor = actor
	s.lastPaymentID = paymentID
	return s.result, s.err
}

func (s *stubInvoiceService) ListPayments(_ context.Context, actor models.Actor, filter repository.PaymentFilter) ([]models.Payment, error) {
	s.lastActor = actor
	s.lastFilter = filter
	return []models.Payment{}, s.err
}

func (s *stubInvoiceService) MarkPaid(_ context.Context, actor models.Actor, paymentID string, input services.MarkPaidInput) (*models.Payment, error) {
	s.lastActor = actor
	s.lastPaymentID = paymentID
	s.lastMarkPaid = input
	return s.result, s.err
}

func (s *stubInvoiceService) UpdatePayment(_ context.Context, actor models.Actor, paymentID string, input services.UpdatePaymentInput) (*models.Payment, error) {
	s.lastActor = actor
	s.lastPaymentID = paymentID
	s.lastUpdate = input
	return s.result, s.err
}

func (s *stubInvoiceService) SendReminder(_ context.Context, actor models.Actor, paymentID string, reminderType string) (*models.Payment, error) {
	s.lastActor = actor
	s.lastPaymentID = paymentID
	s.lastReminder = reminderType
	return s.result, s.err
}

func TestCreateInvoiceForwardsBatch(t *testing.T) {
	service := &stubInvoiceService{result: &models.Payment{ID: "pay-1", InvoiceNumber: "INV-004", TotalAmount: 150}}
	handler := &PaymentHandler{service: service}

	app := newTestApp(models.RoleManager)
	app.Post("/api/v1/payments", handler.CreateInvoice)

	resp, payload := doJSON(t, app, http.MethodPost, "/api/v1/payments", `{
		"coach_id": "coach-7",
		"session_ids": ["s-1", "s-2"],
		"tax_amount": 12.5,
		"period": {"start": "2030-03-01T00:00:00Z", "end": "2030-03-31T23:59:59Z"}
	}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	payment, ok := payload["payment"].(map[string]any)
	if !ok || payment["invoice_number"] != "INV-004" {
		t.Fatalf("unexpected payload %v", payload)
	}
	input := service.lastCreate
	if len(input.SessionIDs) != 2 || input.Amount != nil || input.TaxAmount == nil || *input.TaxAmount != 12.5 {
		t.Fatalf("unexpected input %+v", input)
	}
	if input.Period == nil || input.Period.End.Before(input.Period.Start) {
		t.Fatalf("unexpected period %+v", input.Period)
	}
}

func TestCreateInvoiceReportsDoubleBilling(t *testing.T) {
	service := &stubInvoiceService{err: &services.Error{
		Kind:    services.KindConflict,
		Code:    services.CodeSessionAlreadyBilled,
		Message: "sessions are already billed",
		Details: map[string]any{"s-1": "INV-004"},
	}}
	handler := &PaymentHandler{service: service}

	app := newTestApp(models.RoleManager)
	app.Post("/api/v1/payments", handler.CreateInvoice)

	resp, payload := doJSON(t, app, http.MethodPost, "/api/v1/payments", `{"coach_id":"coach-7","session_ids":["s-1"]}`)
	if resp.StatusCode != http.StatusConflict || payload["code"] != services.CodeSessionAlreadyBilled {
		t.Fatalf("expected 409 SESSION_ALREADY_BILLED, got %d %v", resp.StatusCode, payload)
	}
}

func TestMarkPaidAcceptsEmptyBodyAndMapsAlreadyPaid(t *testing.T) {
	service := &stubInvoiceService{result: &models.Payment{ID: "pay-1"}}
	handler := &PaymentHandler{service: service}

	app := newTestApp(models.RoleManager)
	app.Post("/api/v1/payments/:id/mark-paid", handler.MarkPaid)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/payments/pay-1/mark-paid", "")
	if resp.StatusCode != http.StatusOK || service.lastPaymentID != "pay-1" || service.lastMarkPaid.PaidAt != nil {
		t.Fatalf("unexpected call: %d %s %+v", resp.StatusCode, service.lastPaymentID, service.lastMarkPaid)
	}

	service.err = &services.Error{Kind: services.KindConflict, Code: services.CodeAlreadyPaid, Message: "payment is already paid"}
	resp, payload := doJSON(t, app, http.MethodPost, "/api/v1/payments/pay-1/mark-paid", `{"method":"wire","paid_at":"2030-04-01T10:00:00Z"}`)
	if resp.StatusCode != http.StatusConflict || payload["code"] != services.CodeAlreadyPaid {
		t.Fatalf("expected 409 ALREADY_PAID, got %d %v", resp.StatusCode, payload)
	}
	if service.lastMarkPaid.Method != "wire" || service.lastMarkPaid.PaidAt == nil {
		t.Fatalf("unexpected input %+v", service.lastMarkPaid)
	}
}

func TestUpdatePaymentParsesPatch(t *testing.T) {
	service := &stubInvoiceService{result: &models.Payment{ID: "pay-1"}}
	handler := &PaymentHandler{service: service}

	app := newTestApp(models.RoleAdmin)
	app.Patch("/api/v1/payments/:id", handler.UpdatePayment)

	resp, _ := doJSON(t, app, http.MethodPatch, "/api/v1/payments/pay-1", `{
		"status": "VOID",
		"invoice_url": "https://billing.example.com/inv.pdf",
		"reminders_sent": [{"type": "sms", "sent_at": "2030-04-01T10:00:00Z"}, {"type": "email"}]
	}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	input := service.lastUpdate
	if input.Status == nil || *input.Status != models.PaymentStatusVoid {
		t.Fatalf("expected void status, got %v", input.Status)
	}
	if len(input.Reminders) != 2 || input.Reminders[0].SentAt.IsZero() || !input.Reminders[1].SentAt.IsZero() {
		t.Fatalf("unexpected reminders %+v", input.Reminders)
	}

	resp, payload := doJSON(t, app, http.MethodPatch, "/api/v1/payments/pay-1", `{"paid_at":"yesterday"}`)
	if resp.StatusCode != http.StatusBadRequest || payload["code"] != codeBadRequest {
		t.Fatalf("expected 400, got %d %v", resp.StatusCode, payload)
	}
}

func TestSendReminderAndList(t *testing.T) {
	service := &stubInvoiceService{result: &models.Payment{ID: "pay-1"}}
	handler := &PaymentHandler{service: service}

	app := newTestApp(models.RoleCoach)
	app.Post("/api/v1/payments/:id/send", handler.SendReminder)
	app.Get("/api/v1/payments", handler.ListPayments)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/payments/pay-1/send", `{"type":"sms"}`)
	if resp.StatusCode != http.StatusOK || service.lastReminder != "sms" {
		t.Fatalf("unexpected reminder call: %d %q", resp.StatusCode, service.lastReminder)
	}

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/payments?status=pending,paid&session_id=s-1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(service.lastFilter.Statuses) != 2 || len(service.lastFilter.SessionIDs) != 1 {
		t.Fatalf("unexpected filter %+v", service.lastFilter)
	}
}
