package catalog

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/quill/internal/frontmatter"
	"github.com/starford/quill/internal/storage"
)

// Source is a storage.Provider that can tell post files from other files.
type Source interface {
	storage.Provider
	IsPost(name string) bool
}

// EventCallback is called after a watcher-driven catalog change. Kind is one
// of EventCreated, EventUpdated, EventDeleted, EventInvalid.
type EventCallback func(c Change)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the content root and processes file
// change events until ctx is cancelled. A changed post is reloaded wholesale;
// cb (if non-nil) is called after each catalog mutation.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a reconciliation pass that removes stale
// entries whose files no longer exist on disk.
//
// EventInvalid is reported once per rejected content: a post that stays
// broken is not reported again until its bytes change.
func Watch(ctx context.Context, db Index, store Source, root string, logger *slog.Logger, cb EventCallback, opts ...frontmatter.Option) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	emit := func(c Change) {
		if cb != nil {
			cb(c)
		}
	}

	// rejected maps a path to the checksum of the content last reported invalid.
	rejected := make(map[string]string)

	load := func(rel string) {
		c, err := reload(db, store, rel, opts)
		switch {
		case err != nil:
			logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
		case c.Kind == EventInvalid:
			if rejected[rel] == c.Checksum {
				return
			}
			rejected[rel] = c.Checksum
			logger.Warn("watcher: invalid post", slog.String("path", rel), slog.String("error", c.Err.Error()))
			emit(c)
		case c.Kind != "":
			delete(rejected, rel)
			logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", c.Kind))
			emit(c)
		}
	}

	remove := func(rel string) {
		delete(rejected, rel)
		cs, err := db.GetChecksum(rel)
		if err != nil || cs == "" {
			return
		}
		if err := db.DeletePost(rel); err != nil {
			logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		logger.Debug("watcher: deleted", slog.String("path", rel))
		emit(Change{Kind: EventDeleted, Path: rel, Checksum: cs})
	}

	// reconcileTimer debounces rename reconciliation.
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
			reconcile(db, store, logger, rejected, load, remove)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name
			if strings.HasPrefix(filepath.Base(absPath), ".") {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					loadDir(store, root, absPath, load)
					continue
				}
			}

			if !store.IsPost(absPath) {
				continue
			}

			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				load(rel)

			case ev.Op&fsnotify.Remove != 0:
				remove(rel)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify reports Rename on the old path only; the new path
				// arrives as a Create if it stays under a watched dir.
				remove(rel)
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

// reconcile removes catalog entries whose files are gone and reloads files
// whose checksum differs from the catalog, skipping content already rejected.
func reconcile(db Index, store storage.Provider, logger *slog.Logger, rejected map[string]string, load, remove func(string)) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	metas, err := store.List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			remove(p)
		}
	}
	for p, cs := range disk {
		if checksums[p] != cs && rejected[p] != cs {
			load(p)
		}
	}
}

// loadDir loads every post found in a newly created directory.
func loadDir(store Source, root, dir string, load func(string)) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !store.IsPost(path) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		load(filepath.ToSlash(rel))
		return nil
	})
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
