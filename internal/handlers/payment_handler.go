package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachOps/internal/models"
	"github.com/saeid-a/CoachOps/internal/repository"
	"github.com/saeid-a/CoachOps/internal/services"
)

type PaymentHandler struct {
	service invoiceApplicationService
}

type invoiceApplicationService interface {
	CreateInvoice(ctx context.Context, actor models.Actor, input services.CreateInvoiceInput) (*models.Payment, error)
	GetPayment(ctx context.Context, actor models.Actor, paymentID string) (*models.Payment, error)
	ListPayments(ctx context.Context, actor models.Actor, filter repository.PaymentFilter) ([]models.Payment, error)
	MarkPaid(ctx context.Context, actor models.Actor, paymentID string, input services.MarkPaidInput) (*models.Payment, error)
	UpdatePayment(ctx context.Context, actor models.Actor, paymentID string, input services.UpdatePaymentInput) (*models.Payment, error)
	SendReminder(ctx context.Context, actor models.Actor, paymentID string, reminderType string) (*models.Payment, error)
}

func NewPaymentHandler(service *services.InvoiceService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

type periodRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type createInvoiceRequest struct {
	CoachID    string         `json:"coach_id"`
	SessionIDs []string       `json:"session_ids"`
	Amount     *float64       `json:"amount"`
	TaxAmount  *float64       `json:"tax_amount"`
	Currency   string         `json:"currency"`
	DueDate    *string        `json:"due_date"`
	Period     *periodRequest `json:"period"`
	Notes      string         `json:"notes"`
}

type markPaidRequest struct {
	PaidAt    *string `json:"paid_at"`
	Method    string  `json:"method"`
	Reference string  `json:"reference"`
}

type reminderRequest struct {
	SentAt *string `json:"sent_at"`
	Type   string  `json:"type"`
}

type updatePaymentRequest struct {
	Status        *string           `json:"status"`
	InvoiceURL    *string           `json:"invoice_url"`
	PaidAt        *string           `json:"paid_at"`
	Notes         *string           `json:"notes"`
	Amount        *float64          `json:"amount"`
	TaxAmount     *float64          `json:"tax_amount"`
	RemindersSent []reminderRequest `json:"reminders_sent"`
}

type sendReminderRequest struct {
	Type string `json:"type"`
}

func (h *PaymentHandler) CreateInvoice(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req createInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", nil)
	}
	dueDate, err := parseOptionalTimestamp(req.DueDate)
	if err != nil {
		return badRequest(c, "due_date must be a valid RFC3339 timestamp", nil)
	}

	input := services.CreateInvoiceInput{
		CoachID:    strings.TrimSpace(req.CoachID),
		SessionIDs: req.SessionIDs,
		Amount:     req.Amount,
		TaxAmount:  req.TaxAmount,
		Currency:   req.Currency,
		DueDate:    dueDate,
		Notes:      req.Notes,
	}
	if req.Period != nil {
		start, err := parseTimestamp(req.Period.Start)
		if err != nil {
			return badRequest(c, "period.start must be a valid RFC3339 timestamp", nil)
		}
		end, err := parseTimestamp(req.Period.End)
		if err != nil {
			return badRequest(c, "period.end must be a valid RFC3339 timestamp", nil)
		}
		input.Period = &models.BillingPeriod{Start: start, End: end}
	}

	payment, err := h.service.CreateInvoice(c.UserContext(), actor, input)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"payment": payment})
}

func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	opts, meta := listOptions(c)
	filter := repository.PaymentFilter{
		CoachID:     strings.TrimSpace(c.Query("coach_id")),
		SessionIDs:  splitList(c.Query("session_id")),
		ListOptions: opts,
	}
	for _, status := range splitList(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, models.PaymentStatus(status))
	}

	payments, err := h.service.ListPayments(c.UserContext(), actor, filter)
	if err != nil {
		return mapServiceError(c, err)
	}

	meta.Count = len(payments)
	return c.JSON(fiber.Map{"payments": payments, "pagination": meta})
}

func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	payment, err := h.service.GetPayment(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"payment": payment})
}

func (h *PaymentHandler) MarkPaid(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req markPaidRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body", nil)
		}
	}
	paidAt, err := parseOptionalTimestamp(req.PaidAt)
	if err != nil {
		return badRequest(c, "paid_at must be a valid RFC3339 timestamp", nil)
	}

	payment, err := h.service.MarkPaid(c.UserContext(), actor, c.Params("id"), services.MarkPaidInput{
		PaidAt:    paidAt,
		Method:    req.Method,
		Reference: req.Reference,
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"payment": payment})
}

func (h *PaymentHandler) UpdatePayment(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req updatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", nil)
	}
	paidAt, err := parseOptionalTimestamp(req.PaidAt)
	if err != nil {
		return badRequest(c, "paid_at must be a valid RFC3339 timestamp", nil)
	}

	input := services.UpdatePaymentInput{
		InvoiceURL: req.InvoiceURL,
		PaidAt:     paidAt,
		Notes:      req.Notes,
		Amount:     req.Amount,
		TaxAmount:  req.TaxAmount,
	}
	if req.Status != nil {
		status := models.PaymentStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		input.Status = &status
	}
	for _, r := range req.RemindersSent {
		sentAt, err := parseOptionalTimestamp(r.SentAt)
		if err != nil {
			return badRequest(c, "reminders_sent.sent_at must be a valid RFC3339 timestamp", nil)
		}
		reminder := models.Reminder{Type: r.Type}
		if sentAt != nil {
			reminder.SentAt = *sentAt
		}
		input.Reminders = append(input.Reminders, reminder)
	}

	payment, err := h.service.UpdatePayment(c.UserContext(), actor, c.Params("id"), input)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"payment": payment})
}

func (h *PaymentHandler) SendReminder(c *fiber.Ctx) error {
	actor, err := actorFromLocals(c)
	if err != nil {
		return unauthorized(c)
	}

	var req sendReminderRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body", nil)
		}
	}

	payment, err := h.service.SendReminder(c.UserContext(), actor, c.Params("id"), req.Type)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(fiber.Map{"payment": payment})
}
