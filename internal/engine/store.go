package engine

import (
	"context"
	"database/sql"
	"strings"

	"lims/internal/db"
)

// Store — соединение (пул или транзакция) тенанта вместе с его диалектом.
// Запросы пишутся с "?" и переписываются под диалект.
type Store struct {
	q db.Querier
	d db.Dialect
}

func NewStore(q db.Querier, d db.Dialect) Store { return Store{q: q, d: d} }

func (s Store) Querier() db.Querier { return s.q }
func (s Store) Dialect() db.Dialect { return s.d }
func (s Store) InTransaction() bool { return db.InTx(s.q) }

func (s Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, db.Rebind(s.d, query), args...)
}

func (s Store) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, db.Rebind(s.d, query), args...)
}

// Query читает все строки в map[колонка]значение.
func (s Store) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.q.QueryContext(ctx, db.Rebind(s.d, query), args...)
	if err != nil {
		return nil, err
	}
	return db.ScanMaps(rows)
}

// Cond — равенство колонки значению; Value == nil означает IS NULL.
type Cond struct {
	Column string
	Value  any
}

// Eq — короткая запись Cond.
func Eq(col string, v any) Cond { return Cond{Column: col, Value: v} }

// Exists проверяет наличие хотя бы одной строки table, удовлетворяющей всем conds.
func (s Store) Exists(ctx context.Context, table string, conds ...Cond) (bool, error) {
	where, args := condSQL(conds)
	q := "SELECT 1 FROM " + db.Ident(table)
	if where != "" {
		q += " WHERE " + where
	}
	q += " LIMIT 1"

	var one int
	err := s.QueryRow(ctx, q, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func condSQL(conds []Cond) (string, []any) {
	parts := make([]string, 0, len(conds))
	args := make([]any, 0, len(conds))
	for _, c := range conds {
		if c.Value == nil {
			parts = append(parts, db.Ident(c.Column)+" IS NULL")
			continue
		}
		parts = append(parts, db.Ident(c.Column)+" = ?")
		args = append(args, c.Value)
	}
	return strings.Join(parts, " AND "), args
}
