package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/limen/internal/docservice"
	"github.com/starford/limen/internal/mcpserver"
	"github.com/starford/limen/internal/notation"
	"github.com/starford/limen/internal/store"
)

// ImportOptions controls the import command.
type ImportOptions struct {
	// Dir is the corpus directory the files are placed in.
	Dir string
	// Export, when set, prints each imported document in that notation
	// instead of the summary line.
	Export notation.Kind
}

// errFailed is returned when at least one file could not be processed.
var errFailed = errors.New("some files failed")

// Import reads files from disk and imports them into the corpus in
// parallel, printing one line per file.
func Import(ctx context.Context, files []string, o ImportOptions, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	if len(files) == 0 {
		return fmt.Errorf("no files given")
	}
	logger := app.logger()

	c, err := openComponents(app.config, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	sources := make([]docservice.Source, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		sources = append(sources, docservice.Source{
			Path: path.Join(filepath.ToSlash(o.Dir), filepath.Base(f)),
			Data: data,
		})
	}

	results, err := c.service.ImportFiles(ctx, sources, app.config.Store.Workers)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(app.stdout, "FAIL\t%s\t%v\n", r.Path, r.Err)
			continue
		}
		if o.Export != "" {
			out, err := exportDocument(ctx, c.service, o.Export, r.Document.ID)
			if err != nil {
				failed++
				fmt.Fprintf(app.stdout, "FAIL\t%s\t%v\n", r.Path, err)
				continue
			}
			fmt.Fprintln(app.stdout, out)
			continue
		}
		kind := store.Updated
		if r.Created {
			kind = store.Created
		}
		fmt.Fprintf(app.stdout, "%s\t%s\t%s\tmarkups=%d\tlayers=%s\n", kind, r.Path, r.Document.ID,
			r.Document.MarkupCount, formatLayers(r.Document.Layers))
	}
	logger.Info("import finished", slog.Int("files", len(results)), slog.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errFailed, failed, len(results))
	}
	return nil
}

func exportDocument(ctx context.Context, svc *docservice.Service, kind notation.Kind, id string) (string, error) {
	if kind != notation.TAGML {
		return "", fmt.Errorf("%w: no writer for %s", notation.ErrUnknown, kind)
	}
	return svc.Export(ctx, id)
}

// Check parses files without storing them and reports each result.
func Check(ctx context.Context, files []string, opts ...Option) error {
	app := newApplication(opts)
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.logger()
	svc := docservice.NewService(nil, nil, nil, logger)

	failed := 0
	for _, f := range files {
		line, err := checkFile(ctx, svc, f)
		if err != nil {
			failed++
			fmt.Fprintf(app.stdout, "FAIL\t%s\t%v\n", f, err)
			continue
		}
		fmt.Fprintln(app.stdout, line)
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errFailed, failed, len(files))
	}
	return nil
}

func checkFile(ctx context.Context, svc *docservice.Service, f string) (string, error) {
	data, err := os.ReadFile(f)
	if err != nil {
		return "", err
	}
	doc, err := svc.Check(ctx, filepath.ToSlash(f), "", data)
	if err != nil {
		return "", err
	}
	count := 0
	for range doc.Markups() {
		count++
	}
	return fmt.Sprintf("ok\t%s\tmarkups=%d\tlayers=%s\tdiagnostics=%d", f, count,
		formatLayers(doc.Layers()), len(doc.Diagnostics())), nil
}

// ServeMCP runs the MCP server on stdio until the client disconnects.
// Logs go to stderr unless WithLogOutput says otherwise.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	logger := app.logger()

	c, err := openComponents(app.config, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := store.Sync(ctx, c.indexer, c.files, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}
	logger.Info("MCP server starting", slog.String("corpus_path", app.config.Corpus.Path))
	return mcpserver.New(c.service).ServeStdio()
}

func formatLayers(layers []string) string {
	out := make([]string, len(layers))
	for i, l := range layers {
		if l == "" {
			l = "-"
		}
		out[i] = l
	}
	return "[" + strings.Join(out, ",") + "]"
}
