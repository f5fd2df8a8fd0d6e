// Package notation maps the supported surface syntaxes onto the importer's
// event stream.
package notation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/starford/limen/internal/document"
	"github.com/starford/limen/internal/importer"
	"github.com/starford/limen/internal/notation/lmnl"
	"github.com/starford/limen/internal/notation/tagml"
	"github.com/starford/limen/internal/notation/texmecs"
)

// Kind names a notation.
type Kind string

const (
	TAGML   Kind = "tagml"
	TexMECS Kind = "texmecs"
	LMNL    Kind = "lmnl"
)

// ErrUnknown is returned for unsupported notations or file extensions.
var ErrUnknown = errors.New("unknown notation")

type tokenizer func(name string, r io.Reader) ([]importer.Event, error)

var tokenizers = map[Kind]tokenizer{
	TAGML:   tagml.Tokenize,
	TexMECS: texmecs.Tokenize,
	LMNL:    lmnl.Tokenize,
}

// Kinds lists the supported notations.
func Kinds() []Kind { return []Kind{TAGML, TexMECS, LMNL} }

// Extension returns the file extension used for k, including the dot.
func (k Kind) Extension() string { return "." + string(k) }

// Parse validates a notation name.
func Parse(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tokenizers[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknown, s)
	}
	return k, nil
}

// Detect picks the notation from a file extension.
func Detect(path string) (Kind, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknown, path)
	}
	return Parse(ext)
}

// Supported reports whether path has the extension of a known notation.
func Supported(path string) bool {
	_, err := Detect(path)
	return err == nil
}

// Tokenize maps source text to import events.
func Tokenize(kind Kind, name string, r io.Reader) ([]importer.Event, error) {
	tok, ok := tokenizers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, kind)
	}
	return tok(name, r)
}

// Import tokenizes and builds a document. Each call uses its own builder,
// so imports may run concurrently.
func Import(ctx context.Context, kind Kind, name string, r io.Reader, logger *slog.Logger) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	events, err := Tokenize(kind, name, r)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	doc, err := importer.BuildAll(events, importer.WithLogger(logger.With(slog.String("source", name))))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return doc, nil
}

// Export renders doc in the given notation. Only TAGML has a writer.
func Export(kind Kind, w io.Writer, doc *document.Document) error {
	if kind != TAGML {
		return fmt.Errorf("%w: no writer for %s", ErrUnknown, kind)
	}
	return tagml.ExportTo(w, doc)
}
