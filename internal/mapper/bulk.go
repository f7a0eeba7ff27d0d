package mapper

import (
	"context"
	"fmt"
	"regexp"

	"lsm/internal/store"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkTable(table string) error {
	if !identifierPattern.MatchString(table) {
		return fmt.Errorf("%w: bad table name %q", ErrInvalidModel, table)
	}
	return nil
}

// UniqueIDs drops non-positive and duplicate ids, keeping first-seen order.
func UniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// IDArgs converts ids to query arguments.
func IDArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// SetStatus activates or deactivates every id in table. The change is
// rolled back with ErrNotFound unless every id matched a row.
func (m *Mapper) SetStatus(ctx context.Context, table string, ids []int64, status bool) error {
	if err := checkTable(table); err != nil {
		return err
	}
	ids = UniqueIDs(ids)
	if len(ids) == 0 {
		return fmt.Errorf("%w: no ids given", ErrMissingKey)
	}
	return m.store.WithTx(ctx, func(tx *store.Tx) error {
		args := append([]any{status, m.now()}, IDArgs(ids)...)
		query := fmt.Sprintf("UPDATE %s SET status = ?, updated_at = ? WHERE id IN (%s)", table, Placeholders(len(ids)))
		return ExecAll(ctx, tx, query, args, len(ids))
	})
}

// ToggleStatus flips the status column of one row and returns the new value.
func (m *Mapper) ToggleStatus(ctx context.Context, table string, id int64) (bool, error) {
	if err := checkTable(table); err != nil {
		return false, err
	}
	var status bool
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		query := fmt.Sprintf("UPDATE %s SET status = NOT status, updated_at = ? WHERE id = ?", table)
		if err := ExecAll(ctx, tx, query, []any{m.now(), id}, 1); err != nil {
			return err
		}
		return tx.QueryRow(ctx, fmt.Sprintf("SELECT status FROM %s WHERE id = ?", table), id).Scan(&status)
	})
	return status, err
}

// DeleteMany removes every id from table, or nothing when any id is missing.
func (m *Mapper) DeleteMany(ctx context.Context, table string, ids []int64) error {
	if err := checkTable(table); err != nil {
		return err
	}
	ids = UniqueIDs(ids)
	if len(ids) == 0 {
		return fmt.Errorf("%w: no ids given", ErrMissingKey)
	}
	return m.store.WithTx(ctx, func(tx *store.Tx) error {
		query := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", table, Placeholders(len(ids)))
		return ExecAll(ctx, tx, query, IDArgs(ids), len(ids))
	})
}

// ExecAll runs query and fails with ErrNotFound unless exactly want rows changed.
func ExecAll(ctx context.Context, q store.Querier, query string, args []any, want int) error {
	res, err := q.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != int64(want) {
		return fmt.Errorf("%w: %d of %d rows affected", ErrNotFound, n, want)
	}
	return nil
}
