// Package docservice coordinates the corpus, the importer and the graph
// store behind the operations exposed over HTTP, MCP and the CLI.
package docservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/limen/internal/apperr"
	"github.com/starford/limen/internal/document"
	"github.com/starford/limen/internal/importer"
	"github.com/starford/limen/internal/models"
	"github.com/starford/limen/internal/notation"
	"github.com/starford/limen/internal/notation/scan"
	"github.com/starford/limen/internal/storage"
	"github.com/starford/limen/internal/store"
)

// DocumentDetail is a stored document together with its decoded text.
type DocumentDetail struct {
	models.Document
	Text        string                `json:"text"`
	Meta        document.Metadata     `json:"meta"`
	Diagnostics []document.Diagnostic `json:"diagnostics"`
}

// AnnotationView is the read-only view of an annotation.
type AnnotationView struct {
	Tag         string           `json:"tag"`
	Value       string           `json:"value"`
	Annotations []AnnotationView `json:"annotations,omitempty"`
}

// MarkupView is the read-only view of a range.
type MarkupView struct {
	Tag         string           `json:"tag"`
	ID          string           `json:"id,omitempty"`
	Layers      []string         `json:"layers"`
	Text        string           `json:"text"`
	Segments    int              `json:"segments"`
	Milestone   bool             `json:"milestone,omitempty"`
	Optional    bool             `json:"optional,omitempty"`
	Virtual     bool             `json:"virtual,omitempty"`
	Dominating  string           `json:"dominating,omitempty"`
	Annotations []AnnotationView `json:"annotations,omitempty"`
}

// Source is one file handed to ImportFiles.
type Source struct {
	Path     string
	Notation notation.Kind
	Data     []byte
}

// Result is the outcome of importing one Source.
type Result struct {
	Path     string
	Document models.Document
	Created  bool
	Err      error
}

// Service coordinates storage and store operations.
type Service struct {
	files  storage.Provider
	db     store.DocumentStore
	ix     *store.Indexer
	logger *slog.Logger

	mu     sync.RWMutex
	notify store.EventCallback
}

// NewService creates a document service.
func NewService(files storage.Provider, db store.DocumentStore, ix *store.Indexer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{files: files, db: db, ix: ix, logger: logger}
}

// OnChange registers cb to be called after every mutation made through
// the service.
func (s *Service) OnChange(cb store.EventCallback) {
	s.mu.Lock()
	s.notify = cb
	s.mu.Unlock()
}

func (s *Service) emit(kind, id, path string) {
	s.mu.RLock()
	cb := s.notify
	s.mu.RUnlock()
	if cb != nil {
		cb(kind, id, path)
	}
}

// Import parses source, stores its graph and writes it into the corpus at
// path. kind may be empty to detect the notation from the extension. An
// existing document at path is replaced only when overwrite is set.
func (s *Service) Import(ctx context.Context, path string, kind notation.Kind, source []byte, overwrite bool) (models.Document, bool, error) {
	kind, err := resolveKind(path, kind)
	if err != nil {
		return models.Document{}, false, err
	}
	previous, readErr := s.files.Read(path)
	switch {
	case readErr == nil:
		if !overwrite {
			return models.Document{}, false, apperr.ErrAlreadyExists
		}
	case errors.Is(readErr, storage.ErrOutsideCorpus):
		return models.Document{}, false, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, readErr)
	case !errors.Is(readErr, os.ErrNotExist):
		return models.Document{}, false, readErr
	}

	rec, created, err := s.ix.Index(ctx, path, kind, source)
	if err != nil {
		return models.Document{}, false, classify(err)
	}
	if err := s.files.Write(path, source); err != nil {
		s.rollback(ctx, rec, created, kind, previous)
		return models.Document{}, false, err
	}
	kindOfChange := store.Updated
	if created {
		kindOfChange = store.Created
	}
	s.logger.Info("document imported", slog.String("path", path), slog.String("id", rec.ID),
		slog.String("notation", string(kind)), slog.Int("markups", rec.MarkupCount))
	s.emit(kindOfChange, rec.ID, path)
	return rec, created, nil
}

// rollback undoes the store side of an import whose corpus write failed:
// a new row is removed, a replaced one is re-indexed from the source still
// on disk.
func (s *Service) rollback(ctx context.Context, rec models.Document, created bool, kind notation.Kind, previous []byte) {
	if created {
		_, _ = s.db.Delete(rec.ID)
		return
	}
	if _, _, err := s.ix.Index(ctx, rec.Path, kind, previous); err != nil {
		s.logger.Warn("import rollback failed", slog.String("path", rec.Path), slog.String("error", err.Error()))
	}
}

// ImportFiles imports every source concurrently, overwriting existing
// documents. Failures are reported per file; the returned error is set
// only when ctx ends first.
func (s *Service) ImportFiles(ctx context.Context, sources []Source, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = 4
	}
	results := make([]Result, len(sources))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range sources {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			rec, created, err := s.Import(gCtx, src.Path, src.Notation, src.Data, true)
			results[i] = Result{Path: src.Path, Document: rec, Created: created, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

// Check parses source without storing it and returns the resulting graph.
func (s *Service) Check(ctx context.Context, path string, kind notation.Kind, source []byte) (*document.Document, error) {
	kind, err := resolveKind(path, kind)
	if err != nil {
		return nil, err
	}
	doc, err := notation.Import(ctx, kind, path, bytes.NewReader(source), s.logger)
	if err != nil {
		return nil, classify(err)
	}
	return doc, nil
}

// Get returns a document with its text, metadata and diagnostics.
func (s *Service) Get(_ context.Context, id string) (*DocumentDetail, error) {
	rec, err := s.db.Get(id)
	if err != nil {
		return nil, err
	}
	doc, err := s.ix.Load(id)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", rec.Path, err)
	}
	return &DocumentDetail{
		Document:    rec,
		Text:        doc.Root().Text(),
		Meta:        doc.Meta,
		Diagnostics: nonNilSlice(doc.Diagnostics()),
	}, nil
}

// List returns stored documents, optionally restricted to one notation.
func (s *Service) List(_ context.Context, limit, offset int, kind string) ([]models.Document, int, error) {
	if kind != "" {
		if _, err := notation.Parse(kind); err != nil {
			return nil, 0, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
		}
	}
	return s.db.List(limit, offset, kind)
}

// Delete removes a document from the corpus and the store.
func (s *Service) Delete(_ context.Context, id string) error {
	rec, err := s.db.Get(id)
	if err != nil {
		return err
	}
	if err := s.files.Delete(rec.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if _, err := s.db.Delete(id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	s.logger.Info("document deleted", slog.String("path", rec.Path), slog.String("id", id))
	s.emit(store.Deleted, id, rec.Path)
	return nil
}

// SearchMarkup finds ranges by extended tag, text, or both.
func (s *Service) SearchMarkup(_ context.Context, tag, query string, limit int) ([]models.MarkupHit, error) {
	if tag == "" && query == "" {
		return nil, fmt.Errorf("%w: tag or query is required", apperr.ErrInvalidInput)
	}
	return s.db.SearchMarkup(tag, query, limit)
}

// Export renders a stored document as TAGML.
func (s *Service) Export(_ context.Context, id string) (string, error) {
	doc, err := s.ix.Load(id)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := notation.Export(notation.TAGML, &buf, doc); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Markups returns every range of a stored document in open order.
func (s *Service) Markups(_ context.Context, id string) ([]MarkupView, error) {
	doc, err := s.ix.Load(id)
	if err != nil {
		return nil, err
	}
	out := []MarkupView{}
	for m := range doc.Markups() {
		out = append(out, viewOf(m))
	}
	return out, nil
}

// segmentCount counts the runs of members that follow each other in their
// text sequence, so a range suspended once has two.
func segmentCount(m *document.Markup) int {
	n := 0
	var prev *document.TextNode
	for t := range document.TextNodesOf(m) {
		if prev == nil || prev.Next() != t {
			n++
		}
		prev = t
	}
	return n
}

func viewOf(m *document.Markup) MarkupView {
	v := MarkupView{
		Tag:         m.ExtendedTag(),
		ID:          m.ID,
		Layers:      document.LayersOf(m),
		Text:        m.Text(),
		Segments:    segmentCount(m),
		Milestone:   m.IsMilestone(),
		Optional:    m.Optional,
		Virtual:     m.IsVirtual(),
		Annotations: annotationViews(document.AnnotationsOf(m)),
	}
	if parent, ok := document.DominatingMarkup(m); ok {
		v.Dominating = parent.ExtendedTag()
	}
	return v
}

func annotationViews(as []*document.Annotation) []AnnotationView {
	if len(as) == 0 {
		return nil
	}
	out := make([]AnnotationView, len(as))
	for i, a := range as {
		out[i] = AnnotationView{Tag: a.Tag, Value: a.Text(), Annotations: annotationViews(a.Annotations())}
	}
	return out
}

func resolveKind(path string, kind notation.Kind) (notation.Kind, error) {
	if path == "" {
		return "", fmt.Errorf("%w: path is required", apperr.ErrInvalidInput)
	}
	detected, err := notation.Detect(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	if kind != "" && kind != detected {
		return "", fmt.Errorf("%w: %s is not a %s file", apperr.ErrInvalidInput, path, kind)
	}
	return detected, nil
}

// classify marks source errors as invalid input.
func classify(err error) error {
	if errors.Is(err, scan.ErrSyntax) || errors.Is(err, importer.ErrStructural) || errors.Is(err, notation.ErrUnknown) {
		return fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	return err
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
