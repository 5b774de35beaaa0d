package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

func windowClause(opts ListOptions, args []any) (string, []any) {
	clause := ""
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		clause += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Skip > 0 {
		args = append(args, opts.Skip)
		clause += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return clause, args
}

func orderClause(opts ListOptions, allowed map[string]string, fallback string) string {
	field, desc := opts.SortField()
	column, ok := allowed[field]
	if !ok {
		return fallback
	}
	if desc {
		return column + " DESC, id DESC"
	}
	return column + " ASC, id ASC"
}
