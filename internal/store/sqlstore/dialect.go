// Package sqlstore implements store.Store on database/sql. The same queries
// serve SQLite and PostgreSQL; a Dialect covers the differences.
package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between supported databases.
type Dialect struct {
	// Name identifies the dialect in errors and logs.
	Name string

	// Numbered selects $1-style placeholders instead of ?.
	Numbered bool

	// BigInt is the column type used for unix-millisecond timestamps.
	BigInt string
}

// Supported dialects.
var (
	SQLite   = Dialect{Name: "sqlite", BigInt: "INTEGER"}
	Postgres = Dialect{Name: "postgres", Numbered: true, BigInt: "BIGINT"}
)

// Rebind rewrites ? placeholders for the dialect. Queries in this package
// never contain a literal question mark.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
