package store

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between supported drivers.
type Dialect interface {
	Name() string
	// Rebind rewrites `?` placeholders into the driver's native form.
	Rebind(query string) string
	// ILike returns a case-insensitive LIKE predicate for expr against a placeholder.
	ILike(expr string) string
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) ILike(expr string) string { return "LOWER(" + expr + ") LIKE LOWER(?)" }

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) ILike(expr string) string { return expr + " ILIKE ?" }

// Rebind converts `?` to `$1..$n`, leaving quoted literals untouched.
func (postgresDialect) Rebind(query string) string {
	var (
		b       strings.Builder
		n       int
		inQuote bool
	)
	b.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// SQLite returns the SQLite dialect.
func SQLite() Dialect { return sqliteDialect{} }

// Postgres returns the PostgreSQL dialect.
func Postgres() Dialect { return postgresDialect{} }
