package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ApplyDDL выполняет map[key]sql в порядке ключей. Ожидается idempotent DDL (if not exists).
func ApplyDDL(db *sql.DB, ddl map[string]string, log *zap.Logger) error {
	keys := make([]string, 0, len(ddl))
	for k := range ddl {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, k := range keys {
		for _, stmt := range splitStatements(ddl[k]) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				// duplicate_object (42710) / duplicate_table (42P07)
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && (pgErr.Code == "42710" || pgErr.Code == "42P07") {
					log.Info("DDL skipped (already exists)", zap.String("key", k), zap.String("detail", pgErr.Message))
					continue
				}
				e := strings.ToLower(err.Error())
				if strings.Contains(e, "already exists") {
					log.Info("DDL skipped (already exists)", zap.String("key", k), zap.Error(err))
					continue
				}
				return fmt.Errorf("DDL apply failed (%s): %w", k, err)
			}
		}
	}
	return nil
}

// sqlite не исполняет несколько операторов одним Exec — режем по ";".
func splitStatements(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
