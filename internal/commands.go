package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/catalog"
	"github.com/starford/quill/internal/frontmatter"
	"github.com/starford/quill/internal/mcpserver"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/postservice"
)

// ErrInvalidPosts is returned by RunCheck when at least one post fails to parse.
var ErrInvalidPosts = errors.New("invalid posts found")

// RunCheck parses every post in the content root and prints one line per
// rejected file. It does not touch the catalog.
func RunCheck(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	store, parseOpts, err := app.contentStore()
	if err != nil {
		return err
	}

	loaded, failures, err := catalog.LoadAll(ctx, store, app.config.Content.Concurrency, parseOpts...)
	if err != nil {
		return err
	}

	for _, f := range failures {
		kind := frontmatter.Kind(f.Err)
		if kind == "" {
			kind = "read_error"
		}
		fmt.Fprintf(app.output, "FAIL %s [%s] %v\n", f.Path, kind, f.Err)
	}
	fmt.Fprintf(app.output, "%d ok, %d invalid\n", len(loaded), len(failures))

	if len(failures) > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInvalidPosts, len(failures), len(loaded)+len(failures))
	}
	return nil
}

// RunNew writes a new post built from doc at path, relative to the content
// root. The file is rendered with frontmatter.Format and parsed back before
// it is written, so an accepted file always loads.
func RunNew(ctx context.Context, path string, doc models.Document, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}

	store, parseOpts, err := app.contentStore()
	if err != nil {
		return err
	}
	if !store.IsPost(path) {
		return fmt.Errorf("new: %w: not a post file: %s", apperr.ErrInvalidInput, path)
	}

	if _, err := store.Read(path); err == nil {
		return fmt.Errorf("new: %w: %s", apperr.ErrAlreadyExists, path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("new: %w", err)
	}

	data, err := frontmatter.Format(doc)
	if err != nil {
		return fmt.Errorf("new: %w: %v", apperr.ErrInvalidInput, err)
	}
	if _, err := frontmatter.Parse(data, parseOpts...); err != nil {
		return fmt.Errorf("new: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.Write(path, data); err != nil {
		return fmt.Errorf("new: %w", err)
	}

	fmt.Fprintf(app.output, "created %s\n", path)
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
// The catalog is synced first and kept current by the watcher when enabled.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.logger()
	slog.SetDefault(logger)

	env, err := app.open(ctx, logger)
	if err != nil {
		return err
	}
	defer env.db.Close()

	svc := postservice.NewService(env.store, env.db, env.parseOpts...)
	srv := mcpserver.New(svc, app.version)

	g, gCtx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gCtx)

	if cfg.Content.Watch {
		g.Go(func() error {
			if err := catalog.Watch(watchCtx, env.db, env.store, env.store.Root(), logger, nil, env.parseOpts...); err != nil {
				logger.Error("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		defer stopWatch()
		logger.Info("MCP server starting on stdio", slog.String("version", app.version))
		if err := srv.ServeStdio(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	})

	return g.Wait()
}
