package docservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/starford/limen/internal/apperr"
	"github.com/starford/limen/internal/notation"
	"github.com/starford/limen/internal/storage"
	"github.com/starford/limen/internal/store"
	"github.com/starford/limen/internal/testutil"
)

type change struct{ kind, id, path string }

type recorder struct {
	mu      sync.Mutex
	changes []change
}

func (r *recorder) record(kind, id, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change{kind, id, path})
}

func (r *recorder) all() []change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]change(nil), r.changes...)
}

func newTestService(t *testing.T) (*Service, storage.Provider, *recorder) {
	t.Helper()
	_, files := testutil.TestCorpus(t)
	db := testutil.TestDB(t)
	ix := store.NewIndexer(db, false, testutil.Logger())
	svc := NewService(files, db, ix, testutil.Logger())
	rec := &recorder{}
	svc.OnChange(rec.record)
	return svc, files, rec
}

const poem = `[s|+A,+B>[l|A>One line [w|B>cross<l]ing<w]<s]`

func TestImportWritesCorpusAndStore(t *testing.T) {
	svc, files, events := newTestService(t)
	ctx := context.Background()

	rec, created, err := svc.Import(ctx, "poems/one.tagml", "", []byte(poem), false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !created || rec.Notation != "tagml" || rec.MarkupCount != 3 {
		t.Errorf("record = %+v created=%v", rec, created)
	}
	data, err := files.Read("poems/one.tagml")
	if err != nil || string(data) != poem {
		t.Errorf("corpus file = %q, %v", data, err)
	}

	detail, err := svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if detail.Text != "One line crossing" || detail.Path != "poems/one.tagml" {
		t.Errorf("detail = %+v", detail)
	}
	if detail.Diagnostics == nil {
		t.Error("diagnostics should be an empty slice")
	}

	got := events.all()
	if len(got) != 1 || got[0] != (change{store.Created, rec.ID, "poems/one.tagml"}) {
		t.Errorf("events = %+v", got)
	}
}

func TestImportExistingNeedsOverwrite(t *testing.T) {
	svc, _, events := newTestService(t)
	ctx := context.Background()

	first, _, err := svc.Import(ctx, "a.lmnl", notation.LMNL, []byte("[a}x{a]"), false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if _, _, err := svc.Import(ctx, "a.lmnl", notation.LMNL, []byte("[a}y{a]"), false); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("second import error = %v", err)
	}
	second, created, err := svc.Import(ctx, "a.lmnl", notation.LMNL, []byte("[a}y{a]"), true)
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if created || second.ID != first.ID {
		t.Errorf("overwrite created=%v id %s → %s", created, first.ID, second.ID)
	}
	got := events.all()
	if len(got) != 2 || got[1].kind != store.Updated {
		t.Errorf("events = %+v", got)
	}
}

func TestImportRejectsInvalidInput(t *testing.T) {
	svc, files, events := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name, path string
		kind       notation.Kind
		source     string
	}{
		{"syntax", "bad.tagml", "", "[a x=>z<a]"},
		{"structural", "bad.tagml", "", "[a>x"},
		{"extension", "bad.txt", "", "[a>x<a]"},
		{"kind mismatch", "bad.lmnl", notation.TAGML, "[a>x<a]"},
		{"empty path", "", notation.TAGML, "[a>x<a]"},
		{"traversal", "../escape.tagml", "", "[a>x<a]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Import(ctx, tc.path, tc.kind, []byte(tc.source), false)
			if !errors.Is(err, apperr.ErrInvalidInput) {
				t.Errorf("error = %v, want ErrInvalidInput", err)
			}
		})
	}
	if _, err := files.Read("bad.tagml"); err == nil {
		t.Error("invalid source was written to the corpus")
	}
	if len(events.all()) != 0 {
		t.Errorf("unexpected events: %+v", events.all())
	}
}

func TestCheckDoesNotStore(t *testing.T) {
	svc, files, _ := newTestService(t)
	doc, err := svc.Check(context.Background(), "check.texmecs", "", []byte(`<s|<a|John <b|loves|a> Mary|b>|s>`))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if doc.Root().Text() != "John loves Mary" {
		t.Errorf("text = %q", doc.Root().Text())
	}
	if _, err := files.Read("check.texmecs"); err == nil {
		t.Error("Check wrote to the corpus")
	}
	if _, err := svc.Check(context.Background(), "check.texmecs", "", []byte(`<s|x`)); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("unclosed error = %v", err)
	}
}

func TestListFiltersByNotation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	for path, src := range map[string]string{
		"a.tagml":   "[a>a<a]",
		"b.texmecs": "<b|b|b>",
		"c.lmnl":    "[c}c{c]",
	} {
		if _, _, err := svc.Import(ctx, path, "", []byte(src), false); err != nil {
			t.Fatalf("Import %s: %v", path, err)
		}
	}
	all, total, err := svc.List(ctx, 10, 0, "")
	if err != nil || total != 3 || len(all) != 3 {
		t.Fatalf("List all = %d/%d, %v", len(all), total, err)
	}
	only, total, err := svc.List(ctx, 10, 0, "lmnl")
	if err != nil || total != 1 || only[0].Path != "c.lmnl" {
		t.Errorf("List lmnl = %+v total=%d err=%v", only, total, err)
	}
	if _, _, err := svc.List(ctx, 10, 0, "sgml"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("unknown notation error = %v", err)
	}
}

func TestDeleteRemovesFileAndRecord(t *testing.T) {
	svc, files, events := newTestService(t)
	ctx := context.Background()
	rec, _, err := svc.Import(ctx, "gone.tagml", "", []byte("[a>bye<a]"), false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if err := svc.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := files.Read("gone.tagml"); err == nil {
		t.Error("file still in corpus")
	}
	if _, err := svc.Get(ctx, rec.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Get after delete = %v", err)
	}
	if err := svc.Delete(ctx, rec.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete = %v", err)
	}
	got := events.all()
	if last := got[len(got)-1]; last != (change{store.Deleted, rec.ID, "gone.tagml"}) {
		t.Errorf("last event = %+v", last)
	}
}

func TestMarkupsView(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	rec, _, err := svc.Import(ctx, "v.tagml", "", []byte(`[s>[q>two <-q][w n=1>x<w][+q>four<q]<s]`), false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	views, err := svc.Markups(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Markups: %v", err)
	}
	byTag := map[string]MarkupView{}
	for _, v := range views {
		byTag[v.Tag] = v
	}
	if q := byTag["q"]; q.Text != "two four" || q.Segments != 2 || q.Dominating != "s" {
		t.Errorf("q = %+v", q)
	}
	w := byTag["w"]
	if len(w.Annotations) != 1 || w.Annotations[0].Tag != "n" || w.Annotations[0].Value != "1" {
		t.Errorf("w annotations = %+v", w.Annotations)
	}
	if _, err := svc.Markups(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing id error = %v", err)
	}
}

func TestExportAndSearch(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	rec, _, err := svc.Import(ctx, "x.texmecs", "", []byte(`<s|<a|John <b|loves|a> Mary|b>|s>`), false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	out, err := svc.Export(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if want := "[s>[a>John [b|+overlap-1>loves<a] Mary<b|overlap-1]<s]"; out != want {
		t.Errorf("export = %q, want %q", out, want)
	}

	hits, err := svc.SearchMarkup(ctx, "b", "", 10)
	if err != nil || len(hits) != 1 || hits[0].Text != "loves Mary" {
		t.Errorf("tag search = %+v, %v", hits, err)
	}
	hits, err = svc.SearchMarkup(ctx, "", "Mary", 10)
	if err != nil || len(hits) != 2 {
		t.Errorf("text search = %+v, %v", hits, err)
	}
	if _, err := svc.SearchMarkup(ctx, "", "", 10); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("empty search error = %v", err)
	}
}

func TestImportFilesConcurrently(t *testing.T) {
	svc, _, events := newTestService(t)
	var sources []Source
	for i := range 12 {
		sources = append(sources, Source{
			Path: fmt.Sprintf("batch/%02d.tagml", i),
			Data: []byte(fmt.Sprintf("[p>text %d<p]", i)),
		})
	}
	sources = append(sources, Source{Path: "batch/broken.tagml", Data: []byte("[p>never closed")})

	results, err := svc.ImportFiles(context.Background(), sources, 3)
	if err != nil {
		t.Fatalf("ImportFiles: %v", err)
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			if !strings.HasSuffix(r.Path, "broken.tagml") || !errors.Is(r.Err, apperr.ErrInvalidInput) {
				t.Errorf("unexpected failure %s: %v", r.Path, r.Err)
			}
		}
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if n := len(events.all()); n != 12 {
		t.Errorf("events = %d, want 12", n)
	}
}

func TestMarkupsViewCountsContiguousRuns(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	rec, _, err := svc.Import(ctx, "one.tagml", "", []byte(poem), false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	views, err := svc.Markups(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Markups: %v", err)
	}
	// l and w each span two adjacent text nodes.
	for _, v := range views {
		if v.Segments != 1 {
			t.Errorf("%s segments = %d, want 1 (%q)", v.Tag, v.Segments, v.Text)
		}
	}
}

// failingWrites lets writes through until broken is set.
type failingWrites struct {
	storage.Provider
	broken bool
}

func (f *failingWrites) Write(path string, content []byte) error {
	if f.broken {
		return errors.New("disk full")
	}
	return f.Provider.Write(path, content)
}

func TestOverwriteRestoresStoreWhenWriteFails(t *testing.T) {
	_, files := testutil.TestCorpus(t)
	fw := &failingWrites{Provider: files}
	db := testutil.TestDB(t)
	svc := NewService(fw, db, store.NewIndexer(db, false, testutil.Logger()), testutil.Logger())
	ctx := context.Background()

	rec, _, err := svc.Import(ctx, "r.tagml", "", []byte(`[a>first<a]`), false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	fw.broken = true
	if _, _, err := svc.Import(ctx, "r.tagml", "", []byte(`[b>second<b]`), true); err == nil {
		t.Fatal("expected write error")
	}

	detail, err := svc.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if detail.Text != "first" || detail.Checksum != rec.Checksum {
		t.Errorf("store holds %q (checksum %s), want the original", detail.Text, detail.Checksum)
	}
	data, _ := files.Read("r.tagml")
	if string(data) != `[a>first<a]` {
		t.Errorf("corpus = %q", data)
	}
}

func TestFailedCreateLeavesNoRow(t *testing.T) {
	_, files := testutil.TestCorpus(t)
	db := testutil.TestDB(t)
	svc := NewService(&failingWrites{Provider: files, broken: true}, db, store.NewIndexer(db, false, testutil.Logger()), testutil.Logger())
	if _, _, err := svc.Import(context.Background(), "n.tagml", "", []byte(`[a>x<a]`), false); err == nil {
		t.Fatal("expected write error")
	}
	if _, total, _ := db.List(10, 0, ""); total != 0 {
		t.Errorf("rows = %d, want 0", total)
	}
}
