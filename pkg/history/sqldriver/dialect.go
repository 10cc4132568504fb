package sqldriver

import (
	"strconv"
	"strings"
)

// Dialect captures what differs between the SQL backends.
type Dialect struct {
	// Name is used in error messages.
	Name string

	// Schema is executed statement by statement when the driver opens.
	Schema []string

	// Numbered placeholders ($1, $2, ...) instead of "?".
	Numbered bool
}

// SQLite is the dialect for github.com/mattn/go-sqlite3.
var SQLite = Dialect{
	Name: "sqlite",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			seq       INTEGER PRIMARY KEY AUTOINCREMENT,
			id        TEXT    NOT NULL UNIQUE,
			role      TEXT    NOT NULL,
			content   TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS generated_images (
			seq       INTEGER PRIMARY KEY AUTOINCREMENT,
			id        TEXT    NOT NULL UNIQUE,
			prompt    TEXT    NOT NULL,
			url       TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	},
}

// Postgres is the dialect for github.com/jackc/pgx/v5/stdlib.
var Postgres = Dialect{
	Name:     "postgres",
	Numbered: true,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			seq       BIGSERIAL PRIMARY KEY,
			id        TEXT      NOT NULL UNIQUE,
			role      TEXT      NOT NULL,
			content   TEXT      NOT NULL,
			created_at BIGINT    NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS generated_images (
			seq       BIGSERIAL PRIMARY KEY,
			id        TEXT      NOT NULL UNIQUE,
			prompt    TEXT      NOT NULL,
			url       TEXT      NOT NULL,
			created_at BIGINT    NOT NULL
		)`,
	},
}

// rebind rewrites "?" placeholders for dialects that number them.
func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}

	var b strings.Builder
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
