package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

// Conn — открытый пул плюс его диалект.
type Conn struct {
	DB      *sql.DB
	Dialect Dialect
}

func (c *Conn) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// Open открывает пул по URL:
//
//	postgres://... | postgresql://...  -> pgx
//	sqlite:<path>  | sqlite::memory:   -> modernc sqlite
func Open(url string) (*Conn, error) {
	url = strings.TrimSpace(url)
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return openPostgres(url)
	case strings.HasPrefix(url, "sqlite:"):
		return openSQLite(strings.TrimPrefix(url, "sqlite:"))
	default:
		return nil, fmt.Errorf("unsupported database url %q", url)
	}
}

func openPostgres(url string) (*Conn, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Conn{DB: db, Dialect: postgresDialect{}}, nil
}

func openSQLite(path string) (*Conn, error) {
	dsn := path
	if path == "" || path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// один писатель: транзакции сериализуются пулом, in-memory база живёт пока живо соединение
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite busy_timeout: %w", err)
	}
	if err := ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Conn{DB: db, Dialect: sqliteDialect{}}, nil
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
