// Package store persists imported document graphs in SQLite, with optional
// FTS5 search over the text of every range.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	path         TEXT NOT NULL UNIQUE,
	notation     TEXT NOT NULL,
	checksum     TEXT NOT NULL DEFAULT '',
	text_length  INTEGER NOT NULL DEFAULT 0,
	markup_count INTEGER NOT NULL DEFAULT 0,
	layers       TEXT NOT NULL DEFAULT '[]',
	compressed   INTEGER NOT NULL DEFAULT 0,
	graph        BLOB NOT NULL,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS markups (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	ordinal     INTEGER NOT NULL,
	tag         TEXT NOT NULL,
	layers      TEXT NOT NULL DEFAULT '[]',
	text        TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (document_id, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_documents_notation ON documents(notation);
CREATE INDEX IF NOT EXISTS idx_markups_tag ON markups(tag);
`

// DB wraps a sql.DB with graph store operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
