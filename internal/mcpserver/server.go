// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Quill tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quill/internal/apperr"
	"github.com/starford/quill/internal/catalog"
	"github.com/starford/quill/internal/frontmatter"
	"github.com/starford/quill/internal/postservice"
)

// Server wraps the MCP server with Quill tools.
type Server struct {
	mcp *server.MCPServer
	svc *postservice.Service
}

// New creates a new MCP server with all Quill tools registered.
func New(svc *postservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Quill",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_posts",
		mcp.WithDescription("List posts newest first, optionally filtered by category or tag."),
		mcp.WithString("category", mcp.Description("Only posts in this category")),
		mcp.WithString("tag", mcp.Description("Only posts with this tag")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of posts (default 50)")),
	), s.listPosts)

	s.mcp.AddTool(mcp.NewTool("read_post",
		mcp.WithDescription("Read the full source text of a post."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the post (e.g. 2016/modules.md)")),
	), s.readPost)

	s.mcp.AddTool(mcp.NewTool("validate_post",
		mcp.WithDescription("Parse post source text without storing it. Returns the parsed "+
			"metadata or the reason the text was rejected."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full post text, metadata block included")),
	), s.validatePost)

	s.mcp.AddTool(mcp.NewTool("create_post",
		mcp.WithDescription("Create a new post at the specified path. "+
			"Content MUST follow the post format; read it first via the get_post_format tool "+
			"or the "+FormatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new post (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full post text following the post format")),
	), s.createPost)

	s.mcp.AddTool(mcp.NewTool("list_terms",
		mcp.WithDescription("List categories or tags in use with their post counts."),
		mcp.WithString("kind", mcp.Required(), mcp.Enum("category", "tag"), mcp.Description("category or tag")),
	), s.listTerms)

	s.mcp.AddTool(mcp.NewTool("get_post_format",
		mcp.WithDescription("Returns the Quill post format. "+
			"Call this before writing posts to ensure correct structure."),
	), s.getPostFormat)

	// Resource: post format contract.
	s.mcp.AddResource(
		mcp.NewResource(FormatURI, "Post Format",
			mcp.WithResourceDescription("Metadata block and body format that all posts must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPostFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// parseErrorResult reports a parser rejection in the same shape as the HTTP API.
func parseErrorResult(err error) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(map[string]string{
		"error": err.Error(),
		"kind":  frontmatter.Kind(err),
		"field": frontmatter.Field(err),
	}, "", "  ")
	return mcp.NewToolResultError(string(out))
}

func (s *Server) listPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, total, err := s.svc.ListPosts(ctx, catalog.Filter{
		Category: req.GetString("category", ""),
		Tag:      req.GetString("tag", ""),
		Limit:    req.GetInt("limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"posts": items, "total": total})
}

func (s *Server) readPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := s.svc.Raw(ctx, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) validatePost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.Validate([]byte(content))
	if err != nil {
		return parseErrorResult(err), nil
	}
	return jsonResult(doc)
}

func (s *Server) createPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if _, err := s.svc.CreateRaw(ctx, path, []byte(content)); err != nil {
		switch {
		case frontmatter.Kind(err) != "":
			return parseErrorResult(err), nil
		case errors.Is(err, apperr.ErrAlreadyExists):
			return mcp.NewToolResultError(fmt.Sprintf("post already exists: %s", path)), nil
		default:
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", path)), nil
}

func (s *Server) listTerms(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	terms, err := s.svc.Terms(ctx, kind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(terms)
}

func (s *Server) getPostFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PostFormatContract), nil
}

func (s *Server) readPostFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatURI,
			MIMEType: "text/markdown",
			Text:     PostFormatContract,
		},
	}, nil
}
