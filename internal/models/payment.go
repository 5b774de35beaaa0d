package models

import "time"

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
	PaymentStatusVoid     PaymentStatus = "void"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed,
		PaymentStatusRefunded, PaymentStatusVoid:
		return true
	}
	return false
}

// Bills reports whether a payment in this status holds its sessions.
func (s PaymentStatus) Bills() bool {
	return s == PaymentStatusPending || s == PaymentStatusPaid
}

type LineItem struct {
	SessionID   string  `json:"session_id"`
	Description string  `json:"description"`
	Duration    int     `json:"duration"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
}

type BillingPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Reminder struct {
	SentAt time.Time `json:"sent_at"`
	Type   string    `json:"type"`
}

type Payment struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id"`
	CoachID        string        `json:"coach_id"`
	SessionIDs     []string      `json:"session_ids"`
	LineItems      []LineItem    `json:"line_items"`
	Amount         float64       `json:"amount"`
	TaxAmount      float64       `json:"tax_amount"`
	TotalAmount    float64       `json:"total_amount"`
	Currency       string        `json:"currency"`
	Status         PaymentStatus `json:"status"`
	InvoiceNumber  string        `json:"invoice_number"`
	InvoiceURL     string        `json:"invoice_url,omitempty"`
	DueDate        *time.Time    `json:"due_date,omitempty"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
	Period         BillingPeriod `json:"period"`
	RemindersSent  []Reminder    `json:"reminders_sent"`
	Notes          string        `json:"notes,omitempty"`
	CreatedBy      string        `json:"created_by"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// SetAmounts assigns amount and tax and keeps the total in step.
func (p *Payment) SetAmounts(amount, taxAmount float64) {
	p.Amount = amount
	p.TaxAmount = taxAmount
	p.TotalAmount = RoundCents(amount + taxAmount)
}
