package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/quill/internal/postservice"
	"github.com/starford/quill/internal/storage"
	"github.com/starford/quill/internal/testutil"
)

const helloPost = "---\ntitle: Hello\ndate: 2020-01-01 10:00:00 +0000\ncategories: [web]\ntags: [a, b]\n---\nBody text."

func testServer(t *testing.T) (*Server, storage.Provider) {
	t.Helper()
	_, store := testutil.TestContent(t)
	db := testutil.TestDB(t)
	srv := New(postservice.NewService(store, db), "test")
	return srv, store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_posts":
		result, err = srv.listPosts(ctx, req)
	case "read_post":
		result, err = srv.readPost(ctx, req)
	case "validate_post":
		result, err = srv.validatePost(ctx, req)
	case "create_post":
		result, err = srv.createPost(ctx, req)
	case "list_terms":
		result, err = srv.listTerms(ctx, req)
	case "get_post_format":
		result, err = srv.getPostFormat(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadPost(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_post", map[string]any{
		"path":    "test.md",
		"content": helloPost,
	})
	if text := resultText(r); text != "created: test.md" {
		t.Errorf("create result = %q", text)
	}

	r = callTool(t, srv, "read_post", map[string]any{"path": "test.md"})
	if text := resultText(r); text != helloPost {
		t.Errorf("read result = %q", text)
	}

	r = callTool(t, srv, "create_post", map[string]any{"path": "test.md", "content": helloPost})
	if !r.IsError || !strings.Contains(resultText(r), "already exists") {
		t.Errorf("duplicate create = %q", resultText(r))
	}
}

func TestCreatePostRejectsInvalid(t *testing.T) {
	srv, store := testServer(t)

	r := callTool(t, srv, "create_post", map[string]any{
		"path":    "bad.md",
		"content": "# no metadata",
	})
	if !r.IsError || !strings.Contains(resultText(r), "malformed_document") {
		t.Errorf("result = %q", resultText(r))
	}
	if _, err := store.Read("bad.md"); err == nil {
		t.Error("invalid post should not be written")
	}
}

func TestReadPostMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_post", map[string]any{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing post")
	}
}

func TestValidatePost(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "validate_post", map[string]any{"content": helloPost})
	if r.IsError {
		t.Fatalf("valid post rejected: %s", resultText(r))
	}
	var doc struct {
		Title string   `json:"title"`
		Tags  []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &doc); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if doc.Title != "Hello" || len(doc.Tags) != 2 {
		t.Errorf("doc = %+v", doc)
	}

	r = callTool(t, srv, "validate_post", map[string]any{
		"content": "---\ntitle: Hello\ndate: not-a-date\n---\n",
	})
	if !r.IsError {
		t.Fatal("expected error for bad date")
	}
	var perr map[string]string
	_ = json.Unmarshal([]byte(resultText(r)), &perr)
	if perr["kind"] != "invalid_field_value" || perr["field"] != "date" {
		t.Errorf("error = %v", perr)
	}
}

func TestListPostsAndTerms(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_post", map[string]any{"path": "a.md", "content": helloPost})
	_ = callTool(t, srv, "create_post", map[string]any{
		"path":    "b.md",
		"content": "---\ntitle: B\ndate: 2021-01-01T00:00:00Z\ntags: [c]\n---\n",
	})

	r := callTool(t, srv, "list_posts", map[string]any{"tag": "a"})
	var list struct {
		Posts []struct {
			Path string `json:"path"`
		} `json:"posts"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &list); err != nil {
		t.Fatalf("list is not JSON: %v", err)
	}
	if list.Total != 1 || list.Posts[0].Path != "a.md" {
		t.Errorf("list = %+v", list)
	}

	r = callTool(t, srv, "list_terms", map[string]any{"kind": "category"})
	if !strings.Contains(resultText(r), `"name": "web"`) {
		t.Errorf("terms = %s", resultText(r))
	}
}

func TestGetPostFormat(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_post_format", map[string]any{})
	if !strings.Contains(resultText(r), "missing_required_field") {
		t.Error("format contract should describe the error kinds")
	}
}

func TestReadPostRejectsNonPostFiles(t *testing.T) {
	dir, store := testutil.TestContent(t)
	srv := New(postservice.NewService(store, testutil.TestDB(t)), "test")
	testutil.WriteFile(t, dir, "secret.txt", "s3cret")

	r := callTool(t, srv, "read_post", map[string]any{"path": "secret.txt"})
	if !r.IsError || strings.Contains(resultText(r), "s3cret") {
		t.Errorf("read_post on a non-post file = %q", resultText(r))
	}
}
