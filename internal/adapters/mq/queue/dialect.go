package queue

import (
	"strconv"
	"strings"
)

// dialect holds what differs between the sqlite and postgres job stores.
type dialect struct {
	name   string
	driver string
	schema string
	// forUpdate is appended to row reads inside write transactions.
	forUpdate string
	// numbered placeholders ($1, $2) instead of ?.
	numbered bool
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite3",
	schema: `
CREATE TABLE IF NOT EXISTS events (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    hash TEXT NOT NULL UNIQUE,
    topic TEXT NOT NULL,
    sender TEXT NOT NULL DEFAULT '',
    project TEXT NOT NULL DEFAULT '',
    user_name TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    retries INTEGER NOT NULL DEFAULT 0,
    depends_on TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '{}',
    payload TEXT NOT NULL DEFAULT '',
    created_ns INTEGER NOT NULL,
    updated_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_topic_status ON events (topic, status);
CREATE INDEX IF NOT EXISTS events_depends_on ON events (depends_on);
`,
}

var postgresDialect = dialect{
	name:   "postgres",
	driver: "pgx",
	schema: `
CREATE TABLE IF NOT EXISTS events (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    hash TEXT NOT NULL UNIQUE,
    topic TEXT NOT NULL,
    sender TEXT NOT NULL DEFAULT '',
    project TEXT NOT NULL DEFAULT '',
    user_name TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    retries INTEGER NOT NULL DEFAULT 0,
    depends_on TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL DEFAULT '{}',
    payload TEXT NOT NULL DEFAULT '',
    created_ns BIGINT NOT NULL,
    updated_ns BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_topic_status ON events (topic, status);
CREATE INDEX IF NOT EXISTS events_depends_on ON events (depends_on);
`,
	forUpdate: " FOR UPDATE",
	numbered:  true,
}

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
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
