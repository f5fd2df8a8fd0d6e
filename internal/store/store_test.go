package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"slices"
	"testing"

	"github.com/starford/limen/internal/apperr"
	"github.com/starford/limen/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "limen-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIndexer(t *testing.T, compress bool) (*Indexer, *DB) {
	t.Helper()
	db := testDB(t)
	return NewIndexer(db, compress, quietLogger()), db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	for _, table := range []string{"documents", "markups"} {
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestIndexStoresGraphAndMarkups(t *testing.T) {
	for _, compress := range []bool{false, true} {
		ix, db := testIndexer(t, compress)
		rec, created, err := ix.Index(context.Background(), "john.texmecs", "", []byte(`<s|<a|John <b|loves|a> Mary|b>|s>`))
		if err != nil {
			t.Fatalf("Index: %v", err)
		}
		if !created || rec.ID == "" || rec.Notation != "texmecs" || rec.MarkupCount != 3 || rec.TextLength != 15 {
			t.Errorf("record = %+v created=%v", rec, created)
		}
		if rec.Compressed != compress {
			t.Errorf("compressed = %v", rec.Compressed)
		}
		if !slices.Equal(rec.Layers, []string{"", "overlap-1"}) {
			t.Errorf("layers = %q", rec.Layers)
		}

		got, err := db.Get(rec.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Path != "john.texmecs" || got.Checksum != rec.Checksum || !slices.Equal(got.Layers, rec.Layers) {
			t.Errorf("stored = %+v", got)
		}
		doc, err := ix.Load(rec.ID)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if doc.Root().Text() != "John loves Mary" {
			t.Errorf("loaded text = %q", doc.Root().Text())
		}
	}
}

func TestReimportKeepsID(t *testing.T) {
	ix, db := testIndexer(t, false)
	ctx := context.Background()
	first, _, err := ix.Index(ctx, "p.tagml", "", []byte(`[p>old<p]`))
	if err != nil {
		t.Fatal(err)
	}
	second, created, err := ix.Index(ctx, "p.tagml", "", []byte(`[p>new [q>words<q]<p]`))
	if err != nil {
		t.Fatal(err)
	}
	if created || second.ID != first.ID {
		t.Errorf("re-import should update in place: %v %q %q", created, first.ID, second.ID)
	}
	hits, err := db.SearchMarkup("p", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Text != "new words" {
		t.Errorf("markups not replaced: %+v", hits)
	}
}

func TestIndexRejectsBadSource(t *testing.T) {
	ix, db := testIndexer(t, false)
	if _, _, err := ix.Index(context.Background(), "bad.tagml", "", []byte(`[a>x<b]`)); err == nil {
		t.Fatal("expected import error")
	}
	if _, err := db.GetByPath("bad.tagml"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("failed import must not be stored: %v", err)
	}
	if _, _, err := ix.Index(context.Background(), "notes.md", "", []byte(`x`)); err == nil {
		t.Error("expected unknown notation error")
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	ix, db := testIndexer(t, false)
	ctx := context.Background()
	for _, src := range []struct{ path, body string }{
		{"a.tagml", `[a>1<a]`},
		{"b.tagml", `[b>2<b]`},
		{"c.lmnl", `[c}3{c]`},
	} {
		if _, _, err := ix.Index(ctx, src.path, "", []byte(src.body)); err != nil {
			t.Fatal(err)
		}
	}
	docs, total, err := db.List(1, 1, "tagml")
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(docs) != 1 || docs[0].Path != "b.tagml" {
		t.Errorf("List = %v total %d", docs, total)
	}
	all, total, _ := db.List(0, 0, "")
	if total != 3 || len(all) != 3 {
		t.Errorf("unfiltered total = %d", total)
	}
}

func TestDelete(t *testing.T) {
	ix, db := testIndexer(t, false)
	rec, _, err := ix.Index(context.Background(), "gone.tagml", "", []byte(`[v>vanishing<v]`))
	if err != nil {
		t.Fatal(err)
	}
	removed, err := db.Delete(rec.ID)
	if err != nil || removed.Path != "gone.tagml" {
		t.Fatalf("Delete = %+v, %v", removed, err)
	}
	if _, err := db.Get(rec.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get after delete: %v", err)
	}
	if hits, _ := db.SearchMarkup("", "vanishing", 10); len(hits) != 0 {
		t.Errorf("markups survived delete: %+v", hits)
	}
	if _, err := db.Delete(rec.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}

func TestSearchMarkup(t *testing.T) {
	ix, db := testIndexer(t, false)
	ctx := context.Background()
	_, _, _ = ix.Index(ctx, "one.tagml", "", []byte(`[s>[name>Robert Frost<name] wrote it<s]`))
	_, _, _ = ix.Index(ctx, "two.tagml", "", []byte(`[s>[place>Frost Valley<place]<s]`))

	hits, err := db.SearchMarkup("", "Frost", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 4 {
		t.Errorf("hits = %+v", hits)
	}
	hits, _ = db.SearchMarkup("name", "Frost", 10)
	if len(hits) != 1 || hits[0].Path != "one.tagml" || hits[0].Text != "Robert Frost" {
		t.Errorf("tag filter hits = %+v", hits)
	}
	if !slices.Equal(hits[0].Layers, []string{""}) {
		t.Errorf("layers = %q", hits[0].Layers)
	}
}

func TestAllChecksums(t *testing.T) {
	db := testDB(t)
	_, _, _ = db.Upsert(models.Document{Path: "x.tagml", Notation: "tagml", Checksum: "c1"}, []byte("{}"), nil)
	_, _, _ = db.Upsert(models.Document{Path: "y.tagml", Notation: "tagml", Checksum: "c2"}, []byte("{}"), nil)
	got, err := db.AllChecksums()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got["x.tagml"] != "c1" || got["y.tagml"] != "c2" {
		t.Errorf("checksums = %v", got)
	}
}
