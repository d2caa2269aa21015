package tenant

import (
	"database/sql"

	"lims/internal/db"
)

// Context — активное подключение тенанта. Передаётся в каждый вызов движка явно;
// между запросами движок его не хранит.
type Context struct {
	Name    string
	DB      *sql.DB
	Dialect db.Dialect
}

// FromConn собирает Context из открытого пула.
func FromConn(name string, c *db.Conn) Context {
	return Context{Name: name, DB: c.DB, Dialect: c.Dialect}
}

// Valid сообщает, что контекст указывает на подключение.
func (c Context) Valid() bool { return c.DB != nil && c.Dialect != nil }
