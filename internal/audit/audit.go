// Package audit provides an optional, DSN-driven SQL log of VM
// lifecycle events — Spawn, Send, Recv, Exec and TCall — so an
// operator can replay what an Agentus run did without instrumenting
// the script itself. This is an expansion (SPEC_FULL.md §B): the core
// spec has no audit concept.
//
// Grounded on the donor's internal/database/db_manager.go: a
// sql.Open/Ping/SetMax* connection-setup shape, scheme-prefixed DSN
// dispatch to a driver name, and github.com/pkg/errors-wrapped
// failures. Where the donor manages many named connections for a
// scripting language's database module, this package owns exactly one
// connection for one purpose — appending event rows.
package audit

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pkg/errors"
)

// Log is a single-connection SQL-backed append log of VM events.
type Log struct {
	db *sql.DB
}

// driverForDSN maps a DSN's scheme prefix to the registered
// database/sql driver name, matching the donor's db_manager type
// dispatch (sqlite/postgres/mysql) plus sqlserver for go-mssqldb.
func driverForDSN(dsn string) (driver, rest string) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn
	case strings.HasPrefix(dsn, "mysql://"):
		return "mysql", strings.TrimPrefix(dsn, "mysql://")
	case strings.HasPrefix(dsn, "sqlserver://"):
		return "sqlserver", dsn
	default:
		return "sqlite3", dsn
	}
}

// Open connects to the audit database named by dsn (one of
// sqlite://, postgres://, mysql://, sqlserver://) and ensures the
// events table exists.
func Open(dsn string) (*Log, error) {
	driver, connStr := driverForDSN(dsn)
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, errors.Wrap(err, "audit: open")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "audit: ping")
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	const createTable = `
CREATE TABLE IF NOT EXISTS agentus_events (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	ts        TEXT NOT NULL,
	kind      TEXT NOT NULL,
	agent_id  INTEGER NOT NULL,
	detail    TEXT NOT NULL
)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "audit: create table")
	}
	return &Log{db: db}, nil
}

// Record appends one event row. Failures are swallowed after logging
// nowhere in particular — an audit-log outage must never abort the
// script it is observing (spec's core has no opcode-level recovery,
// so nothing upstream could act on this error anyway).
func (l *Log) Record(kind string, agentID uint64, detail string) {
	if l == nil || l.db == nil {
		return
	}
	_, _ = l.db.Exec(
		`INSERT INTO agentus_events (ts, kind, agent_id, detail) VALUES (?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano), kind, agentID, detail,
	)
}

// Close releases the underlying connection.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
