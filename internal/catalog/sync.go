package catalog

import (
	"context"
	"log/slog"
	"sort"

	"github.com/starford/quill/internal/frontmatter"
	"github.com/starford/quill/internal/storage"
)

// SyncReport summarizes one Sync pass.
type SyncReport struct {
	Created   []string
	Updated   []string
	Deleted   []string
	Invalid   []LoadFailure
	Unchanged int
}

// Sync walks the content root and brings the catalog up to date:
//   - new/changed posts are parsed and upserted
//   - posts that no longer parse are dropped from the catalog
//   - posts removed from disk are deleted
func Sync(ctx context.Context, db Index, store storage.Provider, logger *slog.Logger, opts ...frontmatter.Option) (SyncReport, error) {
	var report SyncReport

	metas, err := store.List("")
	if err != nil {
		return report, err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return report, err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			report.Unchanged++
			continue
		}

		c, err := reload(db, store, m.Path, opts)
		switch {
		case err != nil:
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			report.Invalid = append(report.Invalid, LoadFailure{Path: m.Path, Err: err})
		case c.Kind == EventInvalid:
			logger.Warn("sync: invalid post", slog.String("path", m.Path), slog.String("error", c.Err.Error()))
			report.Invalid = append(report.Invalid, LoadFailure{Path: m.Path, Err: c.Err})
		case c.Kind == EventCreated:
			logger.Debug("sync: indexed", slog.String("path", m.Path))
			report.Created = append(report.Created, m.Path)
		case c.Kind == EventUpdated:
			logger.Debug("sync: reindexed", slog.String("path", m.Path))
			report.Updated = append(report.Updated, m.Path)
		default:
			report.Unchanged++
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.DeletePost(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("path", p))
		report.Deleted = append(report.Deleted, p)
	}
	sort.Strings(report.Deleted)

	return report, nil
}
