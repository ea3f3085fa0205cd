// Package postservice coordinates the content store, the parser and the
// catalog for the HTTP and MCP surfaces.
package postservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/catalog"
	"github.com/starford/quill/internal/checksum"
	"github.com/starford/quill/internal/frontmatter"
	"github.com/starford/quill/internal/models"
)

// PostDetail is the full representation of a post.
type PostDetail struct {
	Path       string         `json:"path"`
	Title      string         `json:"title"`
	Date       time.Time      `json:"date"`
	Categories []string       `json:"categories"`
	Tags       []string       `json:"tags"`
	TOC        bool           `json:"toc"`
	Extra      map[string]any `json:"extra"`
	Body       string         `json:"body"`
	Checksum   string         `json:"checksum"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// PostListItem is a lightweight item in a list response.
type PostListItem struct {
	Path       string    `json:"path"`
	Title      string    `json:"title"`
	Date       time.Time `json:"date"`
	Categories []string  `json:"categories"`
	Tags       []string  `json:"tags"`
	TOC        bool      `json:"toc"`
	Checksum   string    `json:"checksum"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Service coordinates storage and catalog operations.
type Service struct {
	store catalog.Source
	db    catalog.Index
	opts  []frontmatter.Option
}

// NewService creates a new post service. opts are applied to every parse.
func NewService(store catalog.Source, db catalog.Index, opts ...frontmatter.Option) *Service {
	return &Service{store: store, db: db, opts: opts}
}

// ParseOptions returns the parser options the service was created with.
func (s *Service) ParseOptions() []frontmatter.Option {
	return s.opts
}

// GetPost returns a catalogued post.
func (s *Service) GetPost(_ context.Context, path string) (*PostDetail, error) {
	row, err := s.db.GetPost(path)
	if err != nil {
		return nil, err
	}
	return detailFromRow(row), nil
}

// Raw returns the source text of a post exactly as stored. Paths that are
// not post files are refused, which also guards UpdatePost and DeletePost.
func (s *Service) Raw(_ context.Context, path string) ([]byte, error) {
	if err := s.checkPath(path); err != nil {
		return nil, err
	}
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// ListPosts returns a page of posts, newest first, and the total match count.
func (s *Service) ListPosts(_ context.Context, f catalog.Filter) ([]PostListItem, int, error) {
	rows, total, err := s.db.ListPosts(f)
	if err != nil {
		return nil, 0, err
	}
	items := make([]PostListItem, len(rows))
	for i, r := range rows {
		items[i] = PostListItem{
			Path:       r.Path,
			Title:      r.Doc.Title,
			Date:       r.Doc.Date,
			Categories: nonNilSlice(r.Doc.Categories),
			Tags:       nonNilSlice(r.Doc.Tags),
			TOC:        r.Doc.TOC,
			Checksum:   r.Checksum,
			UpdatedAt:  r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Terms returns the categories or tags in use with their post counts.
func (s *Service) Terms(_ context.Context, kind string) ([]models.Term, error) {
	return s.db.Terms(kind)
}

// Validate parses raw with the service's parser options without storing anything.
func (s *Service) Validate(raw []byte) (models.Document, error) {
	return frontmatter.Parse(raw, s.opts...)
}

// CreatePost formats doc, writes it to path and catalogs it.
func (s *Service) CreatePost(ctx context.Context, path string, doc models.Document) (*PostDetail, error) {
	data, err := frontmatter.Format(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	return s.CreateRaw(ctx, path, data)
}

// CreateRaw writes raw source text to a new post at path and catalogs it.
// Text that does not parse is rejected with the parser's error.
func (s *Service) CreateRaw(ctx context.Context, path string, data []byte) (*PostDetail, error) {
	if err := s.checkPath(path); err != nil {
		return nil, err
	}
	if _, err := s.Validate(data); err != nil {
		return nil, err
	}
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(path, data); err != nil {
		return nil, err
	}
	if err := s.IndexFile(path, data); err != nil {
		return nil, err
	}
	return s.GetPost(ctx, path)
}

// UpdatePost replaces the source of an existing post with optimistic
// concurrency: a non-empty ifMatch must equal the current checksum.
func (s *Service) UpdatePost(ctx context.Context, path string, data []byte, ifMatch string) (*PostDetail, error) {
	existing, err := s.Raw(ctx, path)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if _, err := s.Validate(data); err != nil {
		return nil, err
	}
	if err := s.store.Write(path, data); err != nil {
		return nil, err
	}
	if err := s.IndexFile(path, data); err != nil {
		return nil, err
	}
	return s.GetPost(ctx, path)
}

// DeletePost removes a post from storage and catalog.
func (s *Service) DeletePost(ctx context.Context, path string) error {
	if _, err := s.Raw(ctx, path); err != nil {
		return err
	}
	if err := s.store.Delete(path); err != nil {
		return err
	}
	return s.db.DeletePost(path)
}

// IndexFile parses data and replaces the catalog entry for path. When data
// does not parse, any stale entry is removed and the parse error returned.
func (s *Service) IndexFile(path string, data []byte) error {
	doc, err := frontmatter.Parse(data, s.opts...)
	if err != nil {
		if delErr := s.db.DeletePost(path); delErr != nil {
			return delErr
		}
		return err
	}
	return s.db.UpsertPost(catalog.PostRow{
		Path:      path,
		Checksum:  checksum.Sum(data),
		UpdatedAt: time.Now(),
		Doc:       doc,
	})
}

func (s *Service) checkPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: path is required", apperr.ErrInvalidInput)
	}
	if !s.store.IsPost(path) {
		return fmt.Errorf("%w: %s is not a post file", apperr.ErrInvalidInput, path)
	}
	return nil
}

func detailFromRow(r *catalog.PostRow) *PostDetail {
	return &PostDetail{
		Path:       r.Path,
		Title:      r.Doc.Title,
		Date:       r.Doc.Date,
		Categories: nonNilSlice(r.Doc.Categories),
		Tags:       nonNilSlice(r.Doc.Tags),
		TOC:        r.Doc.TOC,
		Extra:      r.Doc.Extra,
		Body:       r.Doc.Body,
		Checksum:   r.Checksum,
		UpdatedAt:  r.UpdatedAt,
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
