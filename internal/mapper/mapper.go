package mapper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"lsm/internal/store"
)

// Mapper persists Model values through a Store.
type Mapper struct {
	store *store.Store
	now   func() time.Time
}

// New returns a Mapper bound to s.
func New(s *store.Store) *Mapper {
	return &Mapper{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock returns a copy of m that reads the current time from now.
func (m *Mapper) WithClock(now func() time.Time) *Mapper {
	c := *m
	c.now = func() time.Time { return now().UTC() }
	return &c
}

// Store exposes the underlying store for hand-written queries.
func (m *Mapper) Store() *store.Store { return m.store }

// Now returns the mapper's notion of the current time, in UTC.
func (m *Mapper) Now() time.Time { return m.now() }

// Find loads the row whose primary key equals pk into dst.
func (m *Mapper) Find(ctx context.Context, dst Model, pk ...any) error {
	return FindWith(ctx, m.store, dst, pk...)
}

// FindWith is Find against an arbitrary querier (a Store or a Tx).
func FindWith(ctx context.Context, q store.Querier, dst Model, pk ...any) error {
	rv, err := structValue(dst)
	if err != nil {
		return err
	}
	keys := dst.PrimaryKey()
	if len(keys) == 0 || len(keys) != len(pk) {
		return fmt.Errorf("%w: %s expects %d key value(s), got %d", ErrMissingKey, dst.TableName(), len(keys), len(pk))
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", dst.TableName(), whereKeys(keys))
	rows, err := q.Query(ctx, query, pk...)
	if err != nil {
		return fmt.Errorf("find %s: %w", dst.TableName(), err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("find %s: %w", dst.TableName(), err)
		}
		return ErrNotFound
	}
	if err := scanInto(rows, infoFor(rv.Type()), rv); err != nil {
		return fmt.Errorf("scan %s: %w", dst.TableName(), err)
	}
	return rows.Err()
}

// Save updates the model's row when it exists and inserts it otherwise.
// With overrideNull, an update writes every mapped column, including zero
// values; otherwise only set fields are written.
func (m *Mapper) Save(ctx context.Context, model Model, overrideNull bool) error {
	return m.store.WithTx(ctx, func(tx *store.Tx) error {
		return m.SaveWith(ctx, tx, model, overrideNull)
	})
}

// SaveWith runs Save against q without opening a transaction of its own.
func (m *Mapper) SaveWith(ctx context.Context, q store.Querier, model Model, overrideNull bool) error {
	rv, err := structValue(model)
	if err != nil {
		return err
	}
	table := model.TableName()
	if table == "" {
		return fmt.Errorf("%w: %T has no table name", ErrInvalidModel, model)
	}
	info := infoFor(rv.Type())
	keys := model.PrimaryKey()

	keyFields := make([]*fieldInfo, 0, len(keys))
	keyValues := make([]any, 0, len(keys))
	keySet := len(keys) > 0
	for _, k := range keys {
		fi := info.byColumn[k]
		if fi == nil {
			return fmt.Errorf("%w: %T has no field for key %q", ErrInvalidModel, model, k)
		}
		keyFields = append(keyFields, fi)
		if fi.value(rv).IsZero() {
			keySet = false
		}
		keyValues = append(keyValues, fi.value(rv).Interface())
	}

	probe := fmt.Sprintf("SELECT * FROM %s LIMIT 0", table)
	var probeArgs []any
	if keySet {
		probe = fmt.Sprintf("SELECT * FROM %s WHERE %s", table, whereKeys(keys))
		probeArgs = keyValues
	}
	rows, err := q.Query(ctx, probe, probeArgs...)
	if err != nil {
		return fmt.Errorf("probe %s: %w", table, err)
	}
	columns, err := rows.Columns()
	exists := err == nil && rows.Next()
	if err == nil {
		err = rows.Err()
	}
	// Close before writing: SQLite runs on a single connection.
	_ = rows.Close()
	if err != nil {
		return fmt.Errorf("probe %s: %w", table, err)
	}

	if exists {
		return m.performUpdate(ctx, q, table, info, rv, columns, keys, keyValues, overrideNull)
	}
	return m.performInsert(ctx, q, table, info, rv, columns, keyFields)
}

func (m *Mapper) performUpdate(ctx context.Context, q store.Querier, table string, info *modelInfo, rv reflect.Value, columns, keys []string, keyValues []any, overrideNull bool) error {
	if fi := info.byColumn[colUpdatedAt]; fi != nil && fi.value(rv).IsZero() {
		setTime(fi.value(rv), m.now())
	}

	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}

	var (
		sets []string
		args []any
	)
	for _, col := range columns {
		if col == colCreatedAt || isKey[col] {
			continue
		}
		fi := info.byColumn[col]
		if fi == nil {
			continue
		}
		if overrideNull || fi.isSet(rv) {
			sets = append(sets, col+" = ?")
			args = append(args, fi.value(rv).Interface())
		}
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, keyValues...)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), whereKeys(keys))
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

func (m *Mapper) performInsert(ctx context.Context, q store.Querier, table string, info *modelInfo, rv reflect.Value, columns []string, keyFields []*fieldInfo) error {
	now := m.now()
	for _, col := range []string{colCreatedAt, colUpdatedAt} {
		if fi := info.byColumn[col]; fi != nil && fi.value(rv).IsZero() {
			setTime(fi.value(rv), now)
		}
	}

	var (
		cols []string
		args []any
	)
	for _, col := range columns {
		fi := info.byColumn[col]
		if fi == nil || !fi.isSet(rv) {
			continue
		}
		cols = append(cols, col)
		args = append(args, fi.value(rv).Interface())
	}
	if len(cols) == 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientData, table)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), Placeholders(len(cols)))
	if len(keyFields) == 1 && isAutoKey(keyFields[0].value(rv)) {
		key := keyFields[0]
		query += " RETURNING " + key.column
		if err := q.QueryRow(ctx, query, args...).Scan(key.value(rv).Addr().Interface()); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
		return nil
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Destroy deletes the model's row. Every primary key value must be set.
func (m *Mapper) Destroy(ctx context.Context, model Model) error {
	return DestroyWith(ctx, m.store, model)
}

// DestroyWith is Destroy against an arbitrary querier.
func DestroyWith(ctx context.Context, q store.Querier, model Model) error {
	rv, err := structValue(model)
	if err != nil {
		return err
	}
	info := infoFor(rv.Type())
	keys := model.PrimaryKey()
	if len(keys) == 0 {
		return fmt.Errorf("%w: %T declares no primary key", ErrMissingKey, model)
	}
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		fi := info.byColumn[k]
		if fi == nil || fi.value(rv).IsZero() {
			return fmt.Errorf("%w: %s.%s", ErrMissingKey, model.TableName(), k)
		}
		args = append(args, fi.value(rv).Interface())
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", model.TableName(), whereKeys(keys))
	res, err := q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", model.TableName(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// RawQuery runs query and returns each row as a column->value map.
// Byte slices are returned as strings.
func (m *Mapper) RawQuery(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := m.store.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		dests := make([]any, len(cols))
		for i := range values {
			dests[i] = &values[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Select scans every row of query into a new T, matching columns to db tags.
func Select[T any](ctx context.Context, q store.Querier, query string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zero T
	t := reflect.TypeOf(zero)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: Select needs a struct type, got %T", ErrInvalidModel, zero)
	}
	info := infoFor(t)

	var out []T
	for rows.Next() {
		var item T
		if err := scanInto(rows, info, reflect.ValueOf(&item).Elem()); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Get is Select for a single row; it returns ErrNotFound when there is none.
func Get[T any](ctx context.Context, q store.Querier, query string, args ...any) (T, error) {
	var zero T
	items, err := Select[T](ctx, q, query, args...)
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, ErrNotFound
	}
	return items[0], nil
}

// Count runs a single-value COUNT query.
func Count(ctx context.Context, q store.Querier, query string, args ...any) (int64, error) {
	var n int64
	if err := q.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func scanInto(rows *sql.Rows, info *modelInfo, rv reflect.Value) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	dests := make([]any, len(cols))
	for i, col := range cols {
		if fi := info.byColumn[col]; fi != nil {
			dests[i] = fi.value(rv).Addr().Interface()
			continue
		}
		dests[i] = new(any)
	}
	return rows.Scan(dests...)
}

func whereKeys(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + " = ?"
	}
	return strings.Join(parts, " AND ")
}

// Placeholders returns "?, ?, ..." with n markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isAutoKey(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	default:
		return false
	}
}

var timeType = reflect.TypeOf(time.Time{})

func setTime(v reflect.Value, t time.Time) {
	switch {
	case v.Type() == timeType:
		v.Set(reflect.ValueOf(t))
	case v.Kind() == reflect.Pointer && v.Type().Elem() == timeType:
		v.Set(reflect.ValueOf(&t))
	}
}
