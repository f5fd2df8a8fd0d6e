package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/starford/limen/internal/checksum"
	"github.com/starford/limen/internal/codec"
	"github.com/starford/limen/internal/document"
	"github.com/starford/limen/internal/models"
	"github.com/starford/limen/internal/notation"
)

// Indexer imports notation sources and stores the resulting graphs.
// It is safe for concurrent use.
type Indexer struct {
	db       DocumentStore
	compress bool
	logger   *slog.Logger
}

// NewIndexer returns an Indexer writing to db. When compress is set the
// stored graphs are xz-compressed.
func NewIndexer(db DocumentStore, compress bool, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{db: db, compress: compress, logger: logger}
}

// Index imports data as kind (detected from path when empty) and upserts
// the graph under path.
func (ix *Indexer) Index(ctx context.Context, path string, kind notation.Kind, data []byte) (models.Document, bool, error) {
	if kind == "" {
		k, err := notation.Detect(path)
		if err != nil {
			return models.Document{}, false, err
		}
		kind = k
	}
	doc, err := notation.Import(ctx, kind, path, bytes.NewReader(data), ix.logger)
	if err != nil {
		return models.Document{}, false, err
	}
	graph, err := codec.Marshal(doc, ix.compress)
	if err != nil {
		return models.Document{}, false, err
	}
	rows := Rows(doc)
	rec := models.Document{
		Path:        path,
		Notation:    string(kind),
		Checksum:    checksum.Sum(data),
		TextLength:  utf8.RuneCountInString(doc.Root().Text()),
		MarkupCount: len(rows),
		Layers:      doc.Layers(),
		Compressed:  ix.compress,
		UpdatedAt:   time.Now().UTC(),
	}
	rec, created, err := ix.db.Upsert(rec, graph, rows)
	if err != nil {
		return models.Document{}, false, fmt.Errorf("store %s: %w", path, err)
	}
	ix.logger.Debug("store: indexed", slog.String("path", path), slog.String("notation", string(kind)),
		slog.Int("markups", rec.MarkupCount))
	return rec, created, nil
}

// Load decodes the stored graph of a document.
func (ix *Indexer) Load(id string) (*document.Document, error) {
	data, err := ix.db.Graph(id)
	if err != nil {
		return nil, err
	}
	return codec.Unmarshal(data)
}

// Rows projects every range of doc for search.
func Rows(doc *document.Document) []MarkupRow {
	var rows []MarkupRow
	for m := range doc.Markups() {
		rows = append(rows, MarkupRow{Tag: m.ExtendedTag(), Layers: m.Layers(), Text: m.Text()})
	}
	return rows
}
