// Package dialect handles differences in the way SQL dialects
// quote identifiers. Placeholder differences are handled by
// sqlx bind types.
package dialect

import (
	"strings"
)

// Dialect quotes table and column names.
type Dialect interface {
	// Name of the dialect.
	Name() string

	// Quote a table name or column name so that it does
	// not clash with any reserved words. The SQL-99 standard
	// specifies double quotes (eg "table_name"), but many
	// dialects, including MySQL use the backtick (eg `table_name`).
	// SQL server uses square brackets (eg [table_name]).
	Quote(name string) string
}

// Pre-defined dialects.
var (
	ANSI     Dialect
	MySQL    Dialect
	SQLite   Dialect
	MSSQL    Dialect
	Postgres Dialect
)

// For returns the dialect for the named database driver. If the
// driver name is unknown, the ANSI dialect is returned.
//
//  name      alternative names
//  ----      -----------------
//  mssql     sqlserver
//  mysql
//  postgres  pq, postgresql, pgx
//  sqlite3   sqlite
func For(driverName string) Dialect {
	d := dialects[strings.TrimSpace(strings.ToLower(driverName))]
	if d == nil {
		return ANSI
	}
	return d
}

type dialectT struct {
	name     string
	altnames []string
	begin    string
	end      string
}

func (d *dialectT) Name() string {
	return d.name
}

// Quote quotes each dotted part of name, removing any quotes
// that were already present.
func (d *dialectT) Quote(name string) string {
	parts := strings.Split(name, ".")
	for i, n := range parts {
		n = strings.TrimLeft(n, "\"`[ \t")
		n = strings.TrimRight(n, "\"`] \t")
		parts[i] = d.begin + n + d.end
	}
	return strings.Join(parts, ".")
}

var dialects map[string]*dialectT

func init() {
	ansi := &dialectT{name: "ansi", begin: `"`, end: `"`}
	mysql := &dialectT{name: "mysql", begin: "`", end: "`"}
	sqlite := &dialectT{name: "sqlite3", altnames: []string{"sqlite"}, begin: "`", end: "`"}
	mssql := &dialectT{name: "mssql", altnames: []string{"sqlserver"}, begin: "[", end: "]"}
	postgres := &dialectT{name: "postgres", altnames: []string{"pq", "postgresql", "pgx"}, begin: `"`, end: `"`}

	ANSI, MySQL, SQLite, MSSQL, Postgres = ansi, mysql, sqlite, mssql, postgres

	dialects = make(map[string]*dialectT)
	for _, d := range []*dialectT{ansi, mysql, sqlite, mssql, postgres} {
		dialects[d.name] = d
		for _, altname := range d.altnames {
			dialects[altname] = d
		}
	}
}
