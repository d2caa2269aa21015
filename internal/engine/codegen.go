package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lims/internal/db"
)

// Scope — область последовательности кодов: таблица + делегация + серия.
type Scope struct {
	Table            string
	CodeColumn       string
	DelegationColumn string
	Delegation       string
	SeriesColumn     string
	Series           string
}

// lockKey — имя области для транзакционной блокировки.
func (s Scope) lockKey() string {
	return strings.Join([]string{s.Table, s.Delegation, s.Series}, "|")
}

// CodeGenerator выдаёт max(code)+1 в пределах области.
type CodeGenerator struct{}

// Next возвращает следующий код области (1 для пустой).
//
// С lock=true store обязан быть транзакцией: область блокируется до commit/rollback,
// и второй конкурентный вызов ждёт, а затем видит уже увеличенный максимум.
// Вне транзакции блокировка бессмысленна, поэтому это ошибка вызывающего.
func (CodeGenerator) Next(ctx context.Context, s Store, sc Scope, lock bool) (int64, error) {
	if lock {
		if !s.InTransaction() {
			return 0, db.ErrNoTransaction
		}
		start := time.Now()
		if err := s.Dialect().LockScope(ctx, s.Querier(), sc.lockKey()); err != nil {
			return 0, err
		}
		codeLockWait.WithLabelValues(sc.Table).Observe(time.Since(start).Seconds())
	}

	var conds []Cond
	if sc.DelegationColumn != "" {
		conds = append(conds, Eq(sc.DelegationColumn, sc.Delegation))
	}
	if sc.SeriesColumn != "" {
		conds = append(conds, Eq(sc.SeriesColumn, sc.Series))
	}
	where, args := condSQL(conds)

	q := fmt.Sprintf("SELECT COALESCE(MAX(CAST(%s AS BIGINT)), 0) FROM %s",
		db.Ident(sc.CodeColumn), db.Ident(sc.Table))
	if where != "" {
		q += " WHERE " + where
	}

	var max int64
	if err := s.QueryRow(ctx, q, args...).Scan(&max); err != nil {
		return 0, fmt.Errorf("next code for %s: %w", sc.Table, err)
	}
	return max + 1, nil
}
