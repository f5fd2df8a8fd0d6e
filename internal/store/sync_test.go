package store

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/limen/internal/apperr"
	"github.com/starford/limen/internal/storage"
)

func testCorpus(t *testing.T) *storage.FS {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

func TestSyncImportsChangesAndRemovesStale(t *testing.T) {
	ix, db := testIndexer(t, false)
	files := testCorpus(t)
	ctx := context.Background()

	_ = files.Write("keep.tagml", []byte(`[k>keep<k]`))
	_ = files.Write("drop.lmnl", []byte(`[d}drop{d]`))
	_ = files.Write("broken.tagml", []byte(`[x>never closed`))
	if err := Sync(ctx, ix, files, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	keep, err := db.GetByPath("keep.tagml")
	if err != nil {
		t.Fatalf("keep.tagml not imported: %v", err)
	}
	if _, err := db.GetByPath("drop.lmnl"); err != nil {
		t.Fatalf("drop.lmnl not imported: %v", err)
	}
	if _, err := db.GetByPath("broken.tagml"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("broken file should be skipped: %v", err)
	}

	_ = files.Delete("drop.lmnl")
	_ = files.Write("keep.tagml", []byte(`[k>changed<k]`))
	if err := Sync(ctx, ix, files, quietLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, err := db.GetByPath("drop.lmnl"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("stale document survived: %v", err)
	}
	updated, _ := db.GetByPath("keep.tagml")
	if updated.ID != keep.ID || updated.Checksum == keep.Checksum {
		t.Errorf("changed file not re-imported in place: %+v", updated)
	}
}

func TestSyncHonoursCancellation(t *testing.T) {
	ix, _ := testIndexer(t, false)
	files := testCorpus(t)
	_ = files.Write("a.tagml", []byte(`[a>x<a]`))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sync(ctx, ix, files, quietLogger()); !errors.Is(err, context.Canceled) {
		t.Errorf("Sync error = %v", err)
	}
}
