package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/limen/internal/apperr"
	"github.com/starford/limen/internal/models"
)

// MarkupRow is the searchable projection of one range.
type MarkupRow struct {
	Tag    string
	Layers []string
	Text   string
}

const documentColumns = `id, path, notation, checksum, text_length, markup_count, layers, compressed, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (models.Document, error) {
	var (
		d      models.Document
		layers string
	)
	if err := r.Scan(&d.ID, &d.Path, &d.Notation, &d.Checksum, &d.TextLength, &d.MarkupCount, &layers, &d.Compressed, &d.UpdatedAt); err != nil {
		return models.Document{}, err
	}
	if err := json.Unmarshal([]byte(layers), &d.Layers); err != nil {
		return models.Document{}, fmt.Errorf("store: decode layers of %s: %w", d.Path, err)
	}
	return d, nil
}

// Upsert stores doc and its serialized graph, replacing any document at the
// same path. The existing ID is kept on update; created reports whether a
// new row was inserted.
func (db *DB) Upsert(doc models.Document, graph []byte, markups []MarkupRow) (models.Document, bool, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return models.Document{}, false, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	created := false
	err = tx.QueryRow(`SELECT id FROM documents WHERE path = ?`, doc.Path).Scan(&doc.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		doc.ID = uuid.NewString()
		created = true
	case err != nil:
		return models.Document{}, false, fmt.Errorf("store: lookup %s: %w", doc.Path, err)
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	if doc.Layers == nil {
		doc.Layers = []string{}
	}
	layersJSON, _ := json.Marshal(doc.Layers)

	_, err = tx.Exec(`
		INSERT INTO documents (id, path, notation, checksum, text_length, markup_count, layers, compressed, graph, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			notation     = excluded.notation,
			checksum     = excluded.checksum,
			text_length  = excluded.text_length,
			markup_count = excluded.markup_count,
			layers       = excluded.layers,
			compressed   = excluded.compressed,
			graph        = excluded.graph,
			updated_at   = excluded.updated_at
	`, doc.ID, doc.Path, doc.Notation, doc.Checksum, doc.TextLength, doc.MarkupCount, string(layersJSON), doc.Compressed, graph, doc.UpdatedAt)
	if err != nil {
		return models.Document{}, false, fmt.Errorf("store: upsert document: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM markups WHERE document_id = ?`, doc.ID); err != nil {
		return models.Document{}, false, fmt.Errorf("store: clear markups: %w", err)
	}
	ftsDelete(tx, doc.ID)
	if len(markups) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO markups (document_id, ordinal, tag, layers, text) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return models.Document{}, false, fmt.Errorf("store: prepare markup insert: %w", err)
		}
		defer stmt.Close()
		for i, m := range markups {
			ml, _ := json.Marshal(m.Layers)
			if _, err := stmt.Exec(doc.ID, i, m.Tag, string(ml), m.Text); err != nil {
				return models.Document{}, false, fmt.Errorf("store: insert markup: %w", err)
			}
		}
		if err := ftsUpsert(tx, doc.ID, markups); err != nil {
			return models.Document{}, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Document{}, false, fmt.Errorf("store: commit: %w", err)
	}
	return doc, created, nil
}

// Get returns the document with the given ID.
func (db *DB) Get(id string) (models.Document, error) {
	d, err := scanDocument(db.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	return d, notFound(err)
}

// GetByPath returns the document imported from path.
func (db *DB) GetByPath(path string) (models.Document, error) {
	d, err := scanDocument(db.conn.QueryRow(`SELECT `+documentColumns+` FROM documents WHERE path = ?`, path))
	return d, notFound(err)
}

// Graph returns the serialized graph of a document.
func (db *DB) Graph(id string) ([]byte, error) {
	var graph []byte
	err := db.conn.QueryRow(`SELECT graph FROM documents WHERE id = ?`, id).Scan(&graph)
	return graph, notFound(err)
}

// List returns documents ordered by path, optionally restricted to one
// notation, together with the total number of matches.
func (db *DB) List(limit, offset int, notation string) ([]models.Document, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents WHERE ? = '' OR notation = ?`, notation, notation).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count documents: %w", err)
	}
	rows, err := db.conn.Query(`SELECT `+documentColumns+` FROM documents
		WHERE ? = '' OR notation = ?
		ORDER BY path
		LIMIT ? OFFSET ?`, notation, notation, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// Delete removes a document and its markups, returning the removed record.
func (db *DB) Delete(id string) (models.Document, error) {
	d, err := db.Get(id)
	if err != nil {
		return models.Document{}, err
	}
	return d, db.remove(d.ID)
}

// DeleteByPath removes the document imported from path.
func (db *DB) DeleteByPath(path string) (models.Document, error) {
	d, err := db.GetByPath(path)
	if err != nil {
		return models.Document{}, err
	}
	return d, db.remove(d.ID)
}

func (db *DB) remove(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	if _, err := tx.Exec(`DELETE FROM markups WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("store: delete markups: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete document: %w", err)
	}
	return tx.Commit()
}

// AllChecksums maps every stored path to its source checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("store: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.ErrNotFound
	}
	return err
}

func scanHits(rows *sql.Rows) ([]models.MarkupHit, error) {
	defer rows.Close()
	out := []models.MarkupHit{}
	for rows.Next() {
		var (
			h      models.MarkupHit
			layers string
		)
		if err := rows.Scan(&h.DocumentID, &h.Path, &h.Tag, &layers, &h.Text); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(layers), &h.Layers)
		out = append(out, h)
	}
	return out, rows.Err()
}

// searchTag lists ranges by tag alone.
func (db *DB) searchTag(tag string, limit int) ([]models.MarkupHit, error) {
	rows, err := db.conn.Query(`
		SELECT m.document_id, d.path, m.tag, m.layers, m.text
		FROM markups m JOIN documents d ON d.id = m.document_id
		WHERE m.tag = ?
		ORDER BY d.path, m.ordinal
		LIMIT ?
	`, tag, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search markup: %w", err)
	}
	return scanHits(rows)
}
