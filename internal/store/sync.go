package store

import (
	"context"
	"log/slog"

	"github.com/starford/limen/internal/storage"
)

// Sync walks the corpus and brings the store up to date:
//   - new or changed files are imported and upserted
//   - files removed from disk are deleted from the store
//
// Files that fail to import are logged and skipped.
func Sync(ctx context.Context, ix *Indexer, files storage.Provider, logger *slog.Logger) error {
	metas, err := files.List("")
	if err != nil {
		return err
	}
	checksums, err := ix.db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return err
		}
		disk[m.Path] = struct{}{}
		if checksums[m.Path] == m.Checksum {
			continue
		}
		data, err := files.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if _, _, err := ix.Index(ctx, m.Path, "", data); err != nil {
			logger.Warn("sync: import failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: imported", slog.String("path", m.Path))
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if _, err := ix.db.DeleteByPath(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("path", p))
	}
	return nil
}
