package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/CoachOps/internal/models"
)

const sessionColumns = `id, organization_id, coach_id, entrepreneur_id, manager_id, payment_id, title,
	scheduled_at, end_time, duration_min, status, agenda_items, notes, rating, rating_history,
	location, video_url, created_by, created_at, updated_at`

var sessionSortColumns = map[string]string{
	"scheduled_at": "scheduled_at",
	"created_at":   "created_at",
	"updated_at":   "updated_at",
}

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var session models.Session
	err := row.Scan(
		&session.ID,
		&session.OrganizationID,
		&session.CoachID,
		&session.EntrepreneurID,
		&session.ManagerID,
		&session.PaymentID,
		&session.Title,
		&session.ScheduledAt,
		&session.EndTime,
		&session.Duration,
		&session.Status,
		&session.AgendaItems,
		&session.Notes,
		&session.Rating,
		&session.RatingHistory,
		&session.Location,
		&session.VideoURL,
		&session.CreatedBy,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &session, nil
}

// sessionDocuments returns non-nil JSONB payloads so NOT NULL columns hold
// empty documents rather than SQL NULL.
func sessionDocuments(session *models.Session) ([]models.AgendaItem, map[models.NoteRole]string, []models.SessionRating) {
	agenda := session.AgendaItems
	if agenda == nil {
		agenda = []models.AgendaItem{}
	}
	notes := session.Notes
	if notes == nil {
		notes = map[models.NoteRole]string{}
	}
	history := session.RatingHistory
	if history == nil {
		history = []models.SessionRating{}
	}
	return agenda, notes, history
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	agenda, notes, history := sessionDocuments(session)
	query := `
		INSERT INTO coaching_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err := r.db.Exec(
		ctx,
		query,
		session.ID,
		session.OrganizationID,
		session.CoachID,
		session.EntrepreneurID,
		session.ManagerID,
		session.PaymentID,
		session.Title,
		session.ScheduledAt,
		session.EndTime,
		session.Duration,
		session.Status,
		agenda,
		notes,
		session.Rating,
		history,
		session.Location,
		session.VideoURL,
		session.CreatedBy,
		session.CreatedAt,
		session.UpdatedAt,
	)
	return mapDBError(err)
}

func (r *SessionRepository) GetByID(ctx context.Context, organizationID, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM coaching_sessions WHERE organization_id = $1 AND id = $2`
	return scanSession(r.db.QueryRow(ctx, query, organizationID, id))
}

func (r *SessionRepository) List(ctx context.Context, filter SessionFilter) ([]models.Session, error) {
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
	if filter.EntrepreneurID != "" {
		args = append(args, filter.EntrepreneurID)
		whereParts = append(whereParts, fmt.Sprintf("entrepreneur_id = $%d", len(args)))
	}
	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		whereParts = append(whereParts, fmt.Sprintf("id = ANY($%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			statuses = append(statuses, string(status))
		}
		args = append(args, statuses)
		whereParts = append(whereParts, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	where := ""
	if len(whereParts) > 0 {
		where = "WHERE " + strings.Join(whereParts, " AND ")
	}
	order := orderClause(filter.ListOptions, sessionSortColumns, "scheduled_at ASC, id ASC")
	window, args := windowClause(filter.ListOptions, args)

	query := fmt.Sprintf(`SELECT %s FROM coaching_sessions %s ORDER BY %s%s`, sessionColumns, where, order, window)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make([]models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	agenda, notes, history := sessionDocuments(session)
	// payment_id is written only by SetPaymentID.
	query := `
		UPDATE coaching_sessions
		SET coach_id = $3,
			entrepreneur_id = $4,
			manager_id = $5,
			title = $6,
			scheduled_at = $7,
			end_time = $8,
			duration_min = $9,
			status = $10,
			agenda_items = $11,
			notes = $12,
			rating = $13,
			rating_history = $14,
			location = $15,
			video_url = $16,
			updated_at = $17
		WHERE organization_id = $1 AND id = $2
	`
	tag, err := r.db.Exec(
		ctx,
		query,
		session.OrganizationID,
		session.ID,
		session.CoachID,
		session.EntrepreneurID,
		session.ManagerID,
		session.Title,
		session.ScheduledAt,
		session.EndTime,
		session.Duration,
		session.Status,
		agenda,
		notes,
		session.Rating,
		history,
		session.Location,
		session.VideoURL,
		session.UpdatedAt,
	)
	if err != nil {
		return mapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, organizationID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM coaching_sessions WHERE organization_id = $1 AND id = $2`, organizationID, id)
	if err != nil {
		return mapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SessionRepository) HasConflict(
	ctx context.Context,
	coachID string,
	start time.Time,
	end time.Time,
	excludeSessionID string,
) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM coaching_sessions
			WHERE coach_id = $1
			  AND status IN ('scheduled', 'rescheduled')
			  AND scheduled_at < $3
			  AND end_time > $2
			  AND ($4::text = '' OR id <> $4::text)
		)
	`
	var hasConflict bool
	if err := r.db.QueryRow(ctx, query, coachID, start.UTC(), end.UTC(), excludeSessionID).Scan(&hasConflict); err != nil {
		return false, err
	}
	return hasConflict, nil
}

func (r *SessionRepository) SetPaymentID(
	ctx context.Context,
	organizationID string,
	sessionIDs []string,
	paymentID *string,
) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	query := `
		UPDATE coaching_sessions
		SET payment_id = $3, updated_at = NOW()
		WHERE organization_id = $1 AND id = ANY($2)
	`
	tag, err := r.db.Exec(ctx, query, organizationID, sessionIDs, paymentID)
	if err != nil {
		return mapDBError(err)
	}
	if tag.RowsAffected() != int64(len(sessionIDs)) {
		return fmt.Errorf("set payment id: updated %d of %d sessions: %w", tag.RowsAffected(), len(sessionIDs), ErrNotFound)
	}
	return nil
}
