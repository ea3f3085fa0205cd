package internal

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/frontmatter"
	"github.com/starford/quill/internal/models"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Content.Root = filepath.Join(dir, "content")
	cfg.SQLite.Path = filepath.Join(dir, "quill.db")
	cfg.Content.Watch = false
	return cfg
}

func writePost(t *testing.T, cfg *Config, rel, content string) {
	t.Helper()
	p := filepath.Join(cfg.Content.Root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := RunCheck(context.Background()); !errors.Is(err, errConfigRequired) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunCheck_AllValid(t *testing.T) {
	cfg := testConfig(t)
	writePost(t, cfg, "a.md", "---\ntitle: A\ndate: 2020-01-01 10:00:00 +0000\n---\nbody")
	writePost(t, cfg, "2021/b.md", "---\ntitle: B\ndate: 2021-01-01T00:00:00Z\ntags: [x]\n---\n")

	var out bytes.Buffer
	if err := RunCheck(context.Background(), WithConfig(cfg), WithOutput(&out)); err != nil {
		t.Fatalf("RunCheck: %v", err)
	}
	if !strings.Contains(out.String(), "2 ok, 0 invalid") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRunCheck_ReportsFailures(t *testing.T) {
	cfg := testConfig(t)
	writePost(t, cfg, "good.md", "---\ntitle: A\ndate: 2020-01-01 10:00:00 +0000\n---\n")
	writePost(t, cfg, "nodate.md", "---\ntitle: A\n---\n")
	writePost(t, cfg, "plain.md", "just text")

	var out bytes.Buffer
	err := RunCheck(context.Background(), WithConfig(cfg), WithOutput(&out))
	if !errors.Is(err, ErrInvalidPosts) {
		t.Fatalf("err = %v, want ErrInvalidPosts", err)
	}
	got := out.String()
	for _, want := range []string{
		"FAIL nodate.md [missing_required_field]",
		"FAIL plain.md [malformed_document]",
		"1 ok, 2 invalid",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunCheck_UsesTimezone(t *testing.T) {
	cfg := testConfig(t)
	writePost(t, cfg, "local.md", "---\ntitle: A\ndate: 2020-01-01 10:00\n---\n")

	var out bytes.Buffer
	if err := RunCheck(context.Background(), WithConfig(cfg), WithOutput(&out)); err == nil {
		t.Fatal("offset-less date should fail without a timezone")
	}

	cfg.Content.Timezone = "Asia/Tokyo"
	out.Reset()
	if err := RunCheck(context.Background(), WithConfig(cfg), WithOutput(&out)); err != nil {
		t.Fatalf("with timezone: %v\n%s", err, out.String())
	}
}

func TestRunNew(t *testing.T) {
	cfg := testConfig(t)
	doc := models.Document{
		Title:      "Hello",
		Date:       time.Date(2022, 5, 1, 9, 30, 0, 0, time.FixedZone("", 2*3600)),
		Categories: []string{"notes"},
		Tags:       []string{"go", "yaml"},
		Body:       "First line.\n",
	}

	var out bytes.Buffer
	if err := RunNew(context.Background(), "2022/hello.md", doc, WithConfig(cfg), WithOutput(&out)); err != nil {
		t.Fatalf("RunNew: %v", err)
	}
	if !strings.Contains(out.String(), "created 2022/hello.md") {
		t.Errorf("output = %q", out.String())
	}

	data, err := os.ReadFile(filepath.Join(cfg.Content.Root, "2022", "hello.md"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := frontmatter.Parse(data)
	if err != nil {
		t.Fatalf("written post does not parse: %v", err)
	}
	if got.Title != "Hello" || len(got.Tags) != 2 || got.Body != "First line.\n" {
		t.Errorf("doc = %+v", got)
	}
	if !got.Date.Equal(doc.Date) {
		t.Errorf("date = %v, want %v", got.Date, doc.Date)
	}

	err = RunNew(context.Background(), "2022/hello.md", doc, WithConfig(cfg), WithOutput(&out))
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("second create err = %v, want ErrAlreadyExists", err)
	}
}

func TestRunNew_Rejects(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer

	err := RunNew(context.Background(), "notes.txt", models.Document{Title: "A", Date: time.Now()},
		WithConfig(cfg), WithOutput(&out))
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("wrong extension err = %v", err)
	}

	err = RunNew(context.Background(), "untitled.md", models.Document{Date: time.Now()},
		WithConfig(cfg), WithOutput(&out))
	if !errors.Is(err, frontmatter.ErrMissingRequiredField) {
		t.Errorf("missing title err = %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(cfg.Content.Root, "untitled.md")); statErr == nil {
		t.Error("rejected post should not be written")
	}
}
