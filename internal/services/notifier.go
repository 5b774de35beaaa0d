package services

import (
	"context"
	"time"
)

const (
	EventInvoiceCreated = "invoice.created"
	EventReminderSent   = "invoice.reminder_sent"
)

// Event is delivered to the notifier without acknowledgement.
type Event struct {
	Type           string         `json:"type"`
	OrganizationID string         `json:"organization_id"`
	RecipientIDs   []string       `json:"recipient_ids"`
	Payload        map[string]any `json:"payload"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Event) {}
