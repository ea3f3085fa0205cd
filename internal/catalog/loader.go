package catalog

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/quill/internal/checksum"
	"github.com/starford/quill/internal/frontmatter"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/storage"
)

// Loaded is one post that was read and parsed successfully.
type Loaded struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
	Doc       models.Document
}

// LoadFailure is a post that could not be read or parsed.
type LoadFailure struct {
	Path string
	Err  error
}

func (f LoadFailure) Error() string {
	return f.Path + ": " + f.Err.Error()
}

func (f LoadFailure) Unwrap() error {
	return f.Err
}

type loadResult struct {
	loaded Loaded
	err    error
}

// LoadAll reads and parses every post under the content root, at most
// concurrency files at a time (GOMAXPROCS when concurrency <= 0).
//
// A file that fails to read or parse is reported in the failures and never
// aborts the batch. Only listing errors and ctx cancellation return an error.
// Both slices are sorted by path.
func LoadAll(ctx context.Context, store storage.Provider, concurrency int, opts ...frontmatter.Option) ([]Loaded, []LoadFailure, error) {
	metas, err := store.List("")
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: load: %w", err)
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	results := make([]loadResult, len(metas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, m := range metas {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := store.Read(m.Path)
			if err != nil {
				results[i].err = err
				return nil
			}
			doc, err := frontmatter.Parse(data, opts...)
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].loaded = Loaded{
				Path:      m.Path,
				Checksum:  checksum.Sum(data),
				UpdatedAt: m.UpdatedAt,
				Doc:       doc,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("catalog: load: %w", err)
	}

	var (
		loaded   = make([]Loaded, 0, len(metas))
		failures []LoadFailure
	)
	for i, r := range results {
		if r.err != nil {
			failures = append(failures, LoadFailure{Path: metas[i].Path, Err: r.err})
			continue
		}
		loaded = append(loaded, r.loaded)
	}
	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Path < loaded[j].Path })
	sort.Slice(failures, func(i, j int) bool { return failures[i].Path < failures[j].Path })
	return loaded, failures, nil
}

// Watcher and sync event kinds.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
	EventInvalid = "invalid"
)

// Change is one catalog mutation driven by a file on disk.
type Change struct {
	Kind     string
	Path     string
	Checksum string
	// Doc is set for EventCreated and EventUpdated.
	Doc *models.Document
	// Err is the parse error behind EventInvalid.
	Err error
}

// reload reads the post at path and replaces its catalog entry wholesale.
//
// The returned Change has an empty Kind when the stored checksum already
// matches. A post that no longer parses is removed from the catalog and
// reported as EventInvalid with the parse error in Change.Err; the error
// return is kept for read and database failures.
func reload(db Index, store storage.Provider, path string, opts []frontmatter.Option) (Change, error) {
	c := Change{Path: path}
	prev, err := db.GetChecksum(path)
	if err != nil {
		return c, err
	}
	data, err := store.Read(path)
	if err != nil {
		return c, err
	}
	c.Checksum = checksum.Sum(data)
	if prev == c.Checksum {
		return c, nil
	}

	doc, parseErr := frontmatter.Parse(data, opts...)
	if parseErr != nil {
		if prev != "" {
			if err := db.DeletePost(path); err != nil {
				return c, err
			}
		}
		c.Kind, c.Err = EventInvalid, parseErr
		return c, nil
	}

	if err := db.UpsertPost(PostRow{
		Path:      path,
		Checksum:  c.Checksum,
		UpdatedAt: time.Now(),
		Doc:       doc,
	}); err != nil {
		return c, err
	}
	c.Doc = &doc
	if prev == "" {
		c.Kind = EventCreated
	} else {
		c.Kind = EventUpdated
	}
	return c, nil
}
