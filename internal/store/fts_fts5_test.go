//go:build sqlite_fts5

package store

import (
	"context"
	"testing"
)

func TestFTS5TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM markups_fts`).Scan(&count); err != nil {
		t.Fatalf("markups_fts table missing: %v", err)
	}
}

func TestFTS5UpsertReplacesContent(t *testing.T) {
	ix, db := testIndexer(t, false)
	ctx := context.Background()
	_, _, _ = ix.Index(ctx, "evo.tagml", "", []byte(`[p>original text<p]`))
	_, _, _ = ix.Index(ctx, "evo.tagml", "", []byte(`[p>replacement text<p]`))

	if hits, _ := db.SearchMarkup("", "original", 10); len(hits) != 0 {
		t.Error("old FTS content should be gone")
	}
	hits, err := db.SearchMarkup("p", "replacement", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Text != "replacement text" {
		t.Errorf("FTS not updated: %+v", hits)
	}
}

func TestFTS5MatchesDiacriticInsensitive(t *testing.T) {
	ix, db := testIndexer(t, false)
	_, _, _ = ix.Index(context.Background(), "cafe.tagml", "", []byte(`[w>café<w]`))
	if hits, _ := db.SearchMarkup("w", "cafe", 10); len(hits) != 1 {
		t.Errorf("hits = %+v", hits)
	}
}
