package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/CoachOps/internal/models"
)

const paymentColumns = `id, organization_id, coach_id, session_ids, line_items, amount, tax_amount,
	total_amount, currency, status, invoice_number, invoice_url, due_date, paid_at, period_start,
	period_end, reminders_sent, notes, created_by, created_at, updated_at`

var paymentSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"due_date":   "due_date",
}

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var payment models.Payment
	err := row.Scan(
		&payment.ID,
		&payment.OrganizationID,
		&payment.CoachID,
		&payment.SessionIDs,
		&payment.LineItems,
		&payment.Amount,
		&payment.TaxAmount,
		&payment.TotalAmount,
		&payment.Currency,
		&payment.Status,
		&payment.InvoiceNumber,
		&payment.InvoiceURL,
		&payment.DueDate,
		&payment.PaidAt,
		&payment.Period.Start,
		&payment.Period.End,
		&payment.RemindersSent,
		&payment.Notes,
		&payment.CreatedBy,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &payment, nil
}

func paymentDocuments(payment *models.Payment) ([]string, []models.LineItem, []models.Reminder) {
	sessionIDs := payment.SessionIDs
	if sessionIDs == nil {
		sessionIDs = []string{}
	}
	lineItems := payment.LineItems
	if lineItems == nil {
		lineItems = []models.LineItem{}
	}
	reminders := payment.RemindersSent
	if reminders == nil {
		reminders = []models.Reminder{}
	}
	return sessionIDs, lineItems, reminders
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	sessionIDs, lineItems, reminders := paymentDocuments(payment)
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err := r.db.Exec(
		ctx,
		query,
		payment.ID,
		payment.OrganizationID,
		payment.CoachID,
		sessionIDs,
		lineItems,
		payment.Amount,
		payment.TaxAmount,
		payment.TotalAmount,
		payment.Currency,
		payment.Status,
		payment.InvoiceNumber,
		payment.InvoiceURL,
		payment.DueDate,
		payment.PaidAt,
		payment.Period.Start,
		payment.Period.End,
		reminders,
		payment.Notes,
		payment.CreatedBy,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	return mapDBError(err)
}

func (r *PaymentRepository) GetByID(ctx context.Context, organizationID, id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE organization_id = $1 AND id = $2`
	return scanPayment(r.db.QueryRow(ctx, query, organizationID, id))
}

func (r *PaymentRepository) List(ctx context.Context, filter PaymentFilter) ([]models.Payment, error) {
	args := []any{}
	whereParts := []string{}

	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		whereParts = append(whereParts, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if filter.CoachID != "" {
		args = append(args, filter.CoachID)
		whereParts = append(whereParts, fmt.Sprintf("coach_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		args = append(args, statuses)
		whereParts = append(whereParts, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(filter.SessionIDs) > 0 {
		args = append(args, filter.SessionIDs)
		whereParts = append(whereParts, fmt.Sprintf("session_ids && $%d::text[]", len(args)))
	}

	where := ""
	if len(whereParts) > 0 {
		where = "WHERE " + strings.Join(whereParts, " AND ")
	}
	order := orderClause(filter.ListOptions, paymentSortColumns, "created_at DESC, id DESC")
	window, args := windowClause(filter.ListOptions, args)

	query := fmt.Sprintf(`SELECT %s FROM payments %s ORDER BY %s%s`, paymentColumns, where, order, window)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]models.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *PaymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	sessionIDs, lineItems, reminders := paymentDocuments(payment)
	query := `
		UPDATE payments
		SET session_ids = $3,
			line_items = $4,
			amount = $5,
			tax_amount = $6,
			total_amount = $7,
			currency = $8,
			status = $9,
			invoice_url = $10,
			due_date = $11,
			paid_at = $12,
			period_start = $13,
			period_end = $14,
			reminders_sent = $15,
			notes = $16,
			updated_at = $17
		WHERE organization_id = $1 AND id = $2
	`
	tag, err := r.db.Exec(
		ctx,
		query,
		payment.OrganizationID,
		payment.ID,
		sessionIDs,
		lineItems,
		payment.Amount,
		payment.TaxAmount,
		payment.TotalAmount,
		payment.Currency,
		payment.Status,
		payment.InvoiceURL,
		payment.DueDate,
		payment.PaidAt,
		payment.Period.Start,
		payment.Period.End,
		reminders,
		payment.Notes,
		payment.UpdatedAt,
	)
	if err != nil {
		return mapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PaymentRepository) Delete(ctx context.Context, organizationID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM payments WHERE organization_id = $1 AND id = $2`, organizationID, id)
	if err != nil {
		return mapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NextInvoiceSequence seeds a missing counter from the highest trailing
// integer among the organization's existing invoice numbers.
func (r *PaymentRepository) NextInvoiceSequence(ctx context.Context, organizationID string) (int, error) {
	query := `
		INSERT INTO invoice_sequences (organization_id, last_value)
		VALUES (
			$1,
			COALESCE((
				SELECT MAX(substring(invoice_number FROM '(\d+)$')::int)
				FROM payments
				WHERE organization_id = $1
			), 0) + 1
		)
		ON CONFLICT (organization_id)
		DO UPDATE SET last_value = invoice_sequences.last_value + 1
		RETURNING last_value
	`
	var next int
	if err := r.db.QueryRow(ctx, query, organizationID).Scan(&next); err != nil {
		return 0, mapDBError(err)
	}
	return next, nil
}
