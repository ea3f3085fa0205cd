package catalog

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "quill-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testRow(path, title string, date time.Time, cats, tags []string) PostRow {
	return PostRow{
		Path:      path,
		Checksum:  "cs-" + path,
		UpdatedAt: time.Now(),
		Doc: models.Document{
			Title:      title,
			Date:       date,
			Categories: cats,
			Tags:       tags,
			Extra:      map[string]any{},
			Body:       "body of " + path,
		},
	}
}

func day(d int) time.Time {
	return time.Date(2020, 1, d, 10, 0, 0, 0, time.FixedZone("", 0))
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM posts`).Scan(&count); err != nil {
		t.Fatalf("posts table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM post_terms`).Scan(&count); err != nil {
		t.Fatalf("post_terms table missing: %v", err)
	}
}

func TestUpsertAndGetPost(t *testing.T) {
	db := testDB(t)
	row := testRow("hello.md", "Hello", day(1), []string{"web"}, []string{"a", "b", "a"})
	row.Doc.Date = time.Date(2015, 6, 30, 23, 59, 59, 500, time.FixedZone("", -7*3600))
	row.Doc.TOC = true
	row.Doc.Extra = map[string]any{
		"foo":     "bar",
		"weight":  3,
		"ratio":   1.0,
		"scale":   1e3,
		"aliases": []any{"/x"},
		"series":  map[string]any{"part": 2.0},
	}
	if err := db.UpsertPost(row); err != nil {
		t.Fatalf("UpsertPost: %v", err)
	}

	got, err := db.GetPost("hello.md")
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if got.Checksum != "cs-hello.md" {
		t.Errorf("checksum = %q", got.Checksum)
	}
	if !got.Doc.Equal(row.Doc) {
		t.Errorf("stored document differs\n got: %#v\nwant: %#v", got.Doc, row.Doc)
	}
}

func TestGetPost_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetPost("missing.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPost(testRow("up.md", "Old", day(1), []string{"old"}, []string{"x"}))
	row := testRow("up.md", "New", day(2), []string{"new"}, []string{"y"})
	row.Checksum = "2"
	if err := db.UpsertPost(row); err != nil {
		t.Fatalf("UpsertPost: %v", err)
	}

	cs, _ := db.GetChecksum("up.md")
	if cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	got, _ := db.GetPost("up.md")
	if got.Doc.Title != "New" || len(got.Doc.Categories) != 1 || got.Doc.Categories[0] != "new" {
		t.Errorf("post not replaced: %+v", got.Doc)
	}
	tags, _ := db.Terms(models.TermTag)
	if len(tags) != 1 || tags[0].Name != "y" {
		t.Errorf("old tags should be removed on upsert, got %+v", tags)
	}
}

func TestDeletePost(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPost(testRow("del.md", "Del", day(1), []string{"c"}, []string{"t"}))

	if err := db.DeletePost("del.md"); err != nil {
		t.Fatalf("DeletePost: %v", err)
	}
	cs, _ := db.GetChecksum("del.md")
	if cs != "" {
		t.Errorf("deleted post still has checksum %q", cs)
	}
	cats, _ := db.Terms(models.TermCategory)
	if len(cats) != 0 {
		t.Errorf("expected 0 categories after delete, got %d", len(cats))
	}
	if err := db.DeletePost("del.md"); err != nil {
		t.Errorf("deleting a missing post: %v", err)
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestAllChecksums(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPost(testRow("a.md", "A", day(1), nil, nil))
	_ = db.UpsertPost(testRow("b.md", "B", day(2), nil, nil))

	m, err := db.AllChecksums()
	if err != nil {
		t.Fatalf("AllChecksums: %v", err)
	}
	if len(m) != 2 || m["a.md"] != "cs-a.md" || m["b.md"] != "cs-b.md" {
		t.Errorf("AllChecksums = %v", m)
	}
}

func TestListPosts_OrderAndFilter(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPost(testRow("old.md", "Old", day(1), []string{"frontend"}, []string{"js"}))
	_ = db.UpsertPost(testRow("mid.md", "Mid", day(2), []string{"backend"}, []string{"go", "js"}))
	_ = db.UpsertPost(testRow("new.md", "New", day(3), []string{"frontend"}, []string{"css"}))

	rows, total, err := db.ListPosts(Filter{})
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if total != 3 || len(rows) != 3 {
		t.Fatalf("total=%d len=%d, want 3", total, len(rows))
	}
	want := []string{"new.md", "mid.md", "old.md"}
	for i, r := range rows {
		if r.Path != want[i] {
			t.Errorf("rows[%d] = %s, want %s", i, r.Path, want[i])
		}
		if r.Doc.Body != "" {
			t.Errorf("list rows should not carry a body")
		}
	}
	if len(rows[1].Doc.Tags) != 2 || rows[1].Doc.Tags[0] != "go" {
		t.Errorf("mid.md tags = %v", rows[1].Doc.Tags)
	}

	rows, total, _ = db.ListPosts(Filter{Category: "frontend"})
	if total != 2 || rows[0].Path != "new.md" || rows[1].Path != "old.md" {
		t.Errorf("category filter: total=%d rows=%+v", total, rows)
	}

	rows, total, _ = db.ListPosts(Filter{Tag: "js"})
	if total != 2 || rows[0].Path != "mid.md" {
		t.Errorf("tag filter: total=%d rows=%+v", total, rows)
	}

	rows, total, _ = db.ListPosts(Filter{Category: "frontend", Tag: "js"})
	if total != 1 || rows[0].Path != "old.md" {
		t.Errorf("combined filter: total=%d rows=%+v", total, rows)
	}
}

func TestListPosts_Pagination(t *testing.T) {
	db := testDB(t)
	for i, p := range []string{"a.md", "b.md", "c.md", "d.md"} {
		_ = db.UpsertPost(testRow(p, p, day(i+1), nil, nil))
	}

	rows, total, err := db.ListPosts(Filter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	if len(rows) != 2 || rows[0].Path != "c.md" || rows[1].Path != "b.md" {
		t.Errorf("page = %+v", rows)
	}
}

func TestListPosts_SameDateOrderedByPath(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPost(testRow("b.md", "B", day(1), nil, nil))
	_ = db.UpsertPost(testRow("a.md", "A", day(1), nil, nil))

	rows, _, _ := db.ListPosts(Filter{})
	if len(rows) != 2 || rows[0].Path != "a.md" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestTerms(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPost(testRow("a.md", "A", day(1), []string{"web"}, []string{"go", "go"}))
	_ = db.UpsertPost(testRow("b.md", "B", day(2), []string{"web", "ops"}, []string{"go"}))

	cats, err := db.Terms(models.TermCategory)
	if err != nil {
		t.Fatalf("Terms: %v", err)
	}
	if len(cats) != 2 || cats[0].Name != "web" || cats[0].Count != 2 || cats[1].Name != "ops" {
		t.Errorf("categories = %+v", cats)
	}

	tags, _ := db.Terms(models.TermTag)
	if len(tags) != 1 || tags[0].Count != 2 {
		t.Errorf("duplicate tag within a post should count once: %+v", tags)
	}

	if _, err := db.Terms("author"); err == nil {
		t.Error("expected error for unknown term kind")
	}
}
