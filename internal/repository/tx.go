package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewRepositories binds every store to the same connection or transaction.
func NewRepositories(db DBTX) Repositories {
	return Repositories{
		Sessions:      NewSessionRepository(db),
		Goals:         NewGoalRepository(db),
		Payments:      NewPaymentRepository(db),
		Users:         NewUserRepository(db),
		CoachProfiles: NewCoachProfileRepository(db),
	}
}

// TxManager implements Transactor with one pgx transaction per unit of work
// and transaction-scoped advisory locks for the lock keys.
type TxManager struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

func (m *TxManager) WithinTx(
	ctx context.Context,
	lockKeys []string,
	fn func(ctx context.Context, repos Repositories) error,
) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Sorted acquisition keeps two units of work locking the same pair of
	// keys from deadlocking.
	for _, key := range SortedKeys(lockKeys) {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
			return fmt.Errorf("acquire lock %q: %w", key, err)
		}
	}

	if err := fn(ctx, NewRepositories(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SortedKeys returns the distinct non-empty keys in ascending order.
func SortedKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
