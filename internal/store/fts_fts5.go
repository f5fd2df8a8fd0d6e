//go:build sqlite_fts5

package store

import (
	"database/sql"
	"fmt"

	"github.com/starford/limen/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS markups_fts USING fts5(
			document_id UNINDEXED,
			ordinal UNINDEXED,
			tag UNINDEXED,
			text,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, documentID string, markups []MarkupRow) error {
	ftsDelete(tx, documentID)
	stmt, err := tx.Prepare(`INSERT INTO markups_fts (document_id, ordinal, tag, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare fts insert: %w", err)
	}
	defer stmt.Close()
	for i, m := range markups {
		if _, err := stmt.Exec(documentID, i, m.Tag, m.Text); err != nil {
			return fmt.Errorf("store: upsert fts: %w", err)
		}
	}
	return nil
}

func ftsDelete(tx *sql.Tx, documentID string) {
	_, _ = tx.Exec(`DELETE FROM markups_fts WHERE document_id = ?`, documentID)
}

// SearchMarkup finds ranges whose text matches the FTS5 query, optionally
// restricted to one extended tag. An empty query lists ranges by tag.
func (db *DB) SearchMarkup(tag, query string, limit int) ([]models.MarkupHit, error) {
	if limit <= 0 {
		limit = 20
	}
	if query == "" {
		return db.searchTag(tag, limit)
	}
	rows, err := db.conn.Query(`
		SELECT m.document_id, d.path, m.tag, m.layers, m.text
		FROM markups_fts f
		JOIN markups m ON m.document_id = f.document_id AND m.ordinal = f.ordinal
		JOIN documents d ON d.id = m.document_id
		WHERE markups_fts MATCH ? AND (? = '' OR m.tag = ?)
		ORDER BY rank
		LIMIT ?
	`, query, tag, tag, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search markup: %w", err)
	}
	return scanHits(rows)
}
