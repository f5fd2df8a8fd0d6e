//go:build !sqlite_fts5

package store

import (
	"database/sql"
	"fmt"

	"github.com/starford/limen/internal/models"
)

func initFTS(_ *sql.DB) error {
	// Without FTS5, search falls back to LIKE over markups.text.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ string, _ []MarkupRow) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) {}

// SearchMarkup finds ranges whose text contains query, optionally
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
		FROM markups m JOIN documents d ON d.id = m.document_id
		WHERE m.text LIKE ? AND (? = '' OR m.tag = ?)
		ORDER BY d.path, m.ordinal
		LIMIT ?
	`, "%"+query+"%", tag, tag, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search markup: %w", err)
	}
	return scanHits(rows)
}
