package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/CoachOps/internal/models"
)

const goalColumns = `id, organization_id, entrepreneur_id, coach_id, title, description, status, priority,
	progress, target_date, is_archived, milestones, collaborators, comments, linked_sessions,
	update_log, created_by, created_at, updated_at`

var goalSortColumns = map[string]string{
	"created_at":  "created_at",
	"updated_at":  "updated_at",
	"target_date": "target_date",
	"progress":    "progress",
}

type GoalRepository struct {
	db DBTX
}

func NewGoalRepository(db DBTX) *GoalRepository {
	return &GoalRepository{db: db}
}

func scanGoal(row pgx.Row) (*models.Goal, error) {
	var goal models.Goal
	err := row.Scan(
		&goal.ID,
		&goal.OrganizationID,
		&goal.EntrepreneurID,
		&goal.CoachID,
		&goal.Title,
		&goal.Description,
		&goal.Status,
		&goal.Priority,
		&goal.Progress,
		&goal.TargetDate,
		&goal.IsArchived,
		&goal.Milestones,
		&goal.Collaborators,
		&goal.Comments,
		&goal.LinkedSessions,
		&goal.UpdateLog,
		&goal.CreatedBy,
		&goal.CreatedAt,
		&goal.UpdatedAt,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return &goal, nil
}

type goalDocuments struct {
	milestones     []models.Milestone
	collaborators  []models.Collaborator
	comments       []models.GoalComment
	linkedSessions []string
	updateLog      []models.GoalUpdate
}

func documentsForGoal(goal *models.Goal) goalDocuments {
	docs := goalDocuments{
		milestones:     goal.Milestones,
		collaborators:  goal.Collaborators,
		comments:       goal.Comments,
		linkedSessions: goal.LinkedSessions,
		updateLog:      goal.UpdateLog,
	}
	if docs.milestones == nil {
		docs.milestones = []models.Milestone{}
	}
	if docs.collaborators == nil {
		docs.collaborators = []models.Collaborator{}
	}
	if docs.comments == nil {
		docs.comments = []models.GoalComment{}
	}
	if docs.linkedSessions == nil {
		docs.linkedSessions = []string{}
	}
	if docs.updateLog == nil {
		docs.updateLog = []models.GoalUpdate{}
	}
	return docs
}

func (r *GoalRepository) Create(ctx context.Context, goal *models.Goal) error {
	docs := documentsForGoal(goal)
	query := `
		INSERT INTO goals (` + goalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := r.db.Exec(
		ctx,
		query,
		goal.ID,
		goal.OrganizationID,
		goal.EntrepreneurID,
		goal.CoachID,
		goal.Title,
		goal.Description,
		goal.Status,
		goal.Priority,
		goal.Progress,
		goal.TargetDate,
		goal.IsArchived,
		docs.milestones,
		docs.collaborators,
		docs.comments,
		docs.linkedSessions,
		docs.updateLog,
		goal.CreatedBy,
		goal.CreatedAt,
		goal.UpdatedAt,
	)
	return mapDBError(err)
}

func (r *GoalRepository) GetByID(ctx context.Context, organizationID, id string) (*models.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals WHERE organization_id = $1 AND id = $2`
	return scanGoal(r.db.QueryRow(ctx, query, organizationID, id))
}

func (r *GoalRepository) List(ctx context.Context, filter GoalFilter) ([]models.Goal, error) {
	args := []any{}
	whereParts := []string{}

	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		whereParts = append(whereParts, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if filter.EntrepreneurID != "" {
		args = append(args, filter.EntrepreneurID)
		whereParts = append(whereParts, fmt.Sprintf("entrepreneur_id = $%d", len(args)))
	}
	if filter.CoachID != "" {
		args = append(args, filter.CoachID)
		whereParts = append(whereParts, fmt.Sprintf("coach_id = $%d", len(args)))
	}
	if !filter.IncludeArchived {
		whereParts = append(whereParts, "is_archived = FALSE")
	}

	where := ""
	if len(whereParts) > 0 {
		where = "WHERE " + strings.Join(whereParts, " AND ")
	}
	order := orderClause(filter.ListOptions, goalSortColumns, "created_at DESC, id DESC")
	window, args := windowClause(filter.ListOptions, args)

	query := fmt.Sprintf(`SELECT %s FROM goals %s ORDER BY %s%s`, goalColumns, where, order, window)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	goals := make([]models.Goal, 0)
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, *goal)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return goals, nil
}

func (r *GoalRepository) Update(ctx context.Context, goal *models.Goal) error {
	docs := documentsForGoal(goal)
	query := `
		UPDATE goals
		SET entrepreneur_id = $3,
			coach_id = $4,
			title = $5,
			description = $6,
			status = $7,
			priority = $8,
			progress = $9,
			target_date = $10,
			is_archived = $11,
			milestones = $12,
			collaborators = $13,
			comments = $14,
			linked_sessions = $15,
			update_log = $16,
			updated_at = $17
		WHERE organization_id = $1 AND id = $2
	`
	tag, err := r.db.Exec(
		ctx,
		query,
		goal.OrganizationID,
		goal.ID,
		goal.EntrepreneurID,
		goal.CoachID,
		goal.Title,
		goal.Description,
		goal.Status,
		goal.Priority,
		goal.Progress,
		goal.TargetDate,
		goal.IsArchived,
		docs.milestones,
		docs.collaborators,
		docs.comments,
		docs.linkedSessions,
		docs.updateLog,
		goal.UpdatedAt,
	)
	if err != nil {
		return mapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GoalRepository) Delete(ctx context.Context, organizationID, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM goals WHERE organization_id = $1 AND id = $2`, organizationID, id)
	if err != nil {
		return mapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
