package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/frontmatter"
	"github.com/starford/quill/internal/models"
)

// PostRow is one catalogued post. Rows returned by ListPosts carry no body.
type PostRow struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
	Doc       models.Document
}

// Filter narrows ListPosts. Empty Category/Tag match everything.
type Filter struct {
	Category string
	Tag      string
	Limit    int
	Offset   int
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

// UpsertPost inserts or replaces a post and its categories and tags within a transaction.
func (db *DB) UpsertPost(p PostRow) error {
	extra, err := encodeExtra(p.Doc.Extra)
	if err != nil {
		return fmt.Errorf("catalog: encode extra for %s: %w", p.Path, err)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO posts (path, title, date, date_unix, toc, extra, body, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			date       = excluded.date,
			date_unix  = excluded.date_unix,
			toc        = excluded.toc,
			extra      = excluded.extra,
			body       = excluded.body,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, p.Path, p.Doc.Title, p.Doc.Date.Format(time.RFC3339Nano), p.Doc.Date.UnixNano(),
		p.Doc.TOC, extra, p.Doc.Body, p.Checksum, p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("catalog: upsert post: %w", err)
	}

	// Replace terms: delete old then insert in document order.
	if _, err := tx.Exec(`DELETE FROM post_terms WHERE path = ?`, p.Path); err != nil {
		return fmt.Errorf("catalog: clear terms: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO post_terms (path, kind, term, position) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("catalog: prepare term insert: %w", err)
	}
	defer stmt.Close()
	for i, c := range p.Doc.Categories {
		if _, err := stmt.Exec(p.Path, models.TermCategory, c, i); err != nil {
			return fmt.Errorf("catalog: insert category: %w", err)
		}
	}
	for i, t := range p.Doc.Tags {
		if _, err := stmt.Exec(p.Path, models.TermTag, t, i); err != nil {
			return fmt.Errorf("catalog: insert tag: %w", err)
		}
	}

	return tx.Commit()
}

// DeletePost removes a post and its terms. Deleting an unknown path is not an error.
func (db *DB) DeletePost(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM post_terms WHERE path = ?`, path); err != nil {
		return fmt.Errorf("catalog: delete terms: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM posts WHERE path = ?`, path); err != nil {
		return fmt.Errorf("catalog: delete post: %w", err)
	}
	return tx.Commit()
}

// GetPost returns the full post at path, or apperr.ErrNotFound.
func (db *DB) GetPost(path string) (*PostRow, error) {
	row := db.conn.QueryRow(`
		SELECT path, title, date, toc, extra, body, checksum, updated_at
		FROM posts WHERE path = ?
	`, path)

	var (
		p     PostRow
		date  string
		extra string
	)
	err := row.Scan(&p.Path, &p.Doc.Title, &date, &p.Doc.TOC, &extra, &p.Doc.Body, &p.Checksum, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get post: %w", err)
	}
	if err := fillRow(&p, date, extra); err != nil {
		return nil, err
	}

	terms, err := db.loadTerms([]string{p.Path})
	if err != nil {
		return nil, err
	}
	applyTerms(&p, terms[p.Path])
	return &p, nil
}

// GetChecksum returns the stored checksum for a post, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM posts WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("catalog: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns path → checksum for every catalogued post.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM posts`)
	if err != nil {
		return nil, fmt.Errorf("catalog: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

const filterSQL = `
	WHERE (? = '' OR EXISTS (
		SELECT 1 FROM post_terms t WHERE t.path = p.path AND t.kind = 'category' AND t.term = ?))
	  AND (? = '' OR EXISTS (
		SELECT 1 FROM post_terms t WHERE t.path = p.path AND t.kind = 'tag' AND t.term = ?))
`

// ListPosts returns posts newest first (ties broken by path) and the total
// number of posts matching f.
func (db *DB) ListPosts(f Filter) ([]PostRow, int, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	args := []any{f.Category, f.Category, f.Tag, f.Tag}

	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM posts p `+filterSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count posts: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT p.path, p.title, p.date, p.toc, p.extra, p.checksum, p.updated_at
		FROM posts p `+filterSQL+`
		ORDER BY p.date_unix DESC, p.path ASC
		LIMIT ? OFFSET ?
	`, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list posts: %w", err)
	}
	defer rows.Close()

	var out []PostRow
	for rows.Next() {
		var (
			p     PostRow
			date  string
			extra string
		)
		if err := rows.Scan(&p.Path, &p.Doc.Title, &date, &p.Doc.TOC, &extra, &p.Checksum, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		if err := fillRow(&p, date, extra); err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	paths := make([]string, len(out))
	for i := range out {
		paths[i] = out[i].Path
	}
	terms, err := db.loadTerms(paths)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		applyTerms(&out[i], terms[out[i].Path])
	}
	return out, total, nil
}

// Terms returns every distinct category or tag with the number of posts
// carrying it, most used first.
func (db *DB) Terms(kind string) ([]models.Term, error) {
	if kind != models.TermCategory && kind != models.TermTag {
		return nil, fmt.Errorf("catalog: unknown term kind %q", kind)
	}
	rows, err := db.conn.Query(`
		SELECT term, COUNT(DISTINCT path) AS n
		FROM post_terms
		WHERE kind = ?
		GROUP BY term
		ORDER BY n DESC, term ASC
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("catalog: terms: %w", err)
	}
	defer rows.Close()

	out := []models.Term{}
	for rows.Next() {
		t := models.Term{Kind: kind}
		if err := rows.Scan(&t.Name, &t.Count); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type postTerms struct {
	categories []string
	tags       []string
}

func (db *DB) loadTerms(paths []string) (map[string]*postTerms, error) {
	out := make(map[string]*postTerms, len(paths))
	if len(paths) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(paths)), ",")
	args := make([]any, len(paths))
	for i, p := range paths {
		args[i] = p
	}
	rows, err := db.conn.Query(`
		SELECT path, kind, term FROM post_terms
		WHERE path IN (`+placeholders+`)
		ORDER BY path, kind, position
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: load terms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path, kind, term string
		if err := rows.Scan(&path, &kind, &term); err != nil {
			return nil, err
		}
		pt, ok := out[path]
		if !ok {
			pt = &postTerms{}
			out[path] = pt
		}
		switch kind {
		case models.TermCategory:
			pt.categories = append(pt.categories, term)
		case models.TermTag:
			pt.tags = append(pt.tags, term)
		}
	}
	return out, rows.Err()
}

func applyTerms(p *PostRow, pt *postTerms) {
	p.Doc.Categories = []string{}
	p.Doc.Tags = []string{}
	if pt == nil {
		return
	}
	p.Doc.Categories = append(p.Doc.Categories, pt.categories...)
	p.Doc.Tags = append(p.Doc.Tags, pt.tags...)
}

func fillRow(p *PostRow, date, extra string) error {
	t, err := time.Parse(time.RFC3339Nano, date)
	if err != nil {
		return fmt.Errorf("catalog: stored date for %s: %w", p.Path, err)
	}
	_, offset := t.Zone()
	p.Doc.Date = t.In(time.FixedZone("", offset))

	m, err := decodeExtra(extra)
	if err != nil {
		return fmt.Errorf("catalog: stored extra for %s: %w", p.Path, err)
	}
	p.Doc.Extra = m
	return nil
}

// Extra metadata is stored as YAML so values decode back to the same Go
// types the parser produced.
func encodeExtra(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	n, err := frontmatter.EncodeValue(m)
	if err != nil {
		return "", err
	}
	b, err := yaml.Marshal(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeExtra(s string) (map[string]any, error) {
	out := map[string]any{}
	if s == "" {
		return out, nil
	}
	if err := yaml.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
