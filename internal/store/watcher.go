package store

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/limen/internal/notation"
	"github.com/starford/limen/internal/storage"
)

// Change kinds passed to an EventCallback.
const (
	Created = "created"
	Updated = "updated"
	Deleted = "deleted"
)

// EventCallback is called after a watcher-driven store change.
type EventCallback func(kind, id, path string)

const reconcileDelay = 200 * time.Millisecond

// Watch follows changes under the corpus root until ctx is cancelled,
// re-importing notation files as they are written and dropping them from
// the store when they disappear. cb, if non-nil, is called after every
// successful mutation.
//
// Directories created at runtime are watched too. Renames trigger a
// debounced reconciliation pass over the whole corpus.
func Watch(ctx context.Context, ix *Indexer, files storage.Provider, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := files.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	notify := func(kind, id, path string) {
		if cb != nil {
			cb(kind, id, path)
		}
	}

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(ctx, ix, files, logger, notify)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, abs); addErr != nil {
						logger.Warn("watcher: add new dir failed", slog.String("path", abs), slog.String("error", addErr.Error()))
					}
					importDir(ctx, ix, files, abs, logger, notify)
					continue
				}
			}
			if !notation.Supported(abs) {
				continue
			}
			rel, relErr := filepath.Rel(root, abs)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := files.Read(rel)
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
					continue
				}
				rec, created, idxErr := ix.Index(ctx, rel, "", data)
				if idxErr != nil {
					logger.Warn("watcher: import failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
					continue
				}
				kind := Updated
				if created {
					kind = Created
				}
				logger.Debug("watcher: imported", slog.String("path", rel), slog.String("op", kind))
				notify(kind, rec.ID, rel)

			case ev.Op&fsnotify.Remove != 0:
				rec, delErr := ix.db.DeleteByPath(rel)
				if delErr != nil {
					logger.Debug("watcher: delete skipped", slog.String("path", rel), slog.String("error", delErr.Error()))
					continue
				}
				notify(Deleted, rec.ID, rel)

			case ev.Op&fsnotify.Rename != 0:
				// Rename arrives for the old path only; the new path shows up
				// as a Create if it stays inside a watched directory.
				if rec, delErr := ix.db.DeleteByPath(rel); delErr == nil {
					notify(Deleted, rec.ID, rel)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile drops stored documents whose files are gone and imports files
// that are new or changed.
func reconcile(ctx context.Context, ix *Indexer, files storage.Provider, logger *slog.Logger, notify EventCallback) {
	checksums, err := ix.db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := files.List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}
	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if rec, delErr := ix.db.DeleteByPath(p); delErr == nil {
			logger.Debug("reconcile: removed stale", slog.String("path", p))
			notify(Deleted, rec.ID, p)
		}
	}
	for p, cs := range disk {
		prev, known := checksums[p]
		if prev == cs {
			continue
		}
		data, readErr := files.Read(p)
		if readErr != nil {
			continue
		}
		rec, _, idxErr := ix.Index(ctx, p, "", data)
		if idxErr != nil {
			logger.Warn("reconcile: import failed", slog.String("path", p), slog.String("error", idxErr.Error()))
			continue
		}
		kind := Created
		if known {
			kind = Updated
		}
		notify(kind, rec.ID, p)
	}
}

// importDir imports the notation files already present in a directory that
// just appeared.
func importDir(ctx context.Context, ix *Indexer, files storage.Provider, dir string, logger *slog.Logger, notify EventCallback) {
	root := files.Root()
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !notation.Supported(path) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		data, readErr := files.Read(rel)
		if readErr != nil {
			return nil
		}
		rec, created, idxErr := ix.Index(ctx, rel, "", data)
		if idxErr != nil {
			logger.Warn("watcher: import failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
			return nil
		}
		kind := Updated
		if created {
			kind = Created
		}
		notify(kind, rec.ID, rel)
		return nil
	})
}

// addDirsRecursive adds root and every non-hidden subdirectory to w.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
