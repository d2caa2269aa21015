package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// Dialect прячет различия SQL между postgres и sqlite.
type Dialect interface {
	Name() string
	// Placeholder возвращает n-й (с 1) параметр запроса.
	Placeholder(n int) string
	// LockScope берёт транзакционную блокировку на область счётчика кодов.
	// Блокировка держится до commit/rollback.
	LockScope(ctx context.Context, q Querier, scope string) error
}

// DialectFor возвращает диалект по имени.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case Postgres, "pg", "postgresql", "pgx":
		return postgresDialect{}, nil
	case SQLite, "sqlite3":
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return Postgres }

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// MAX(...) FOR UPDATE в postgres запрещён для агрегатов и не блокирует пустой диапазон,
// поэтому сериализуем область advisory-блокировкой уровня транзакции.
func (postgresDialect) LockScope(ctx context.Context, q Querier, scope string) error {
	_, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, scope)
	if err != nil {
		return fmt.Errorf("advisory lock %q: %w", scope, err)
	}
	return nil
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return SQLite }

func (sqliteDialect) Placeholder(int) string { return "?" }

// Пул sqlite держит одно соединение: транзакции и так идут строго по очереди.
func (sqliteDialect) LockScope(context.Context, Querier, string) error { return nil }

// Rebind переписывает "?" в плейсхолдеры диалекта; "?" внутри '...' и "..." не трогает.
func Rebind(d Dialect, query string) string {
	if d == nil || d.Placeholder(1) == "?" {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	var quote rune
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			n++
			sb.WriteString(d.Placeholder(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
