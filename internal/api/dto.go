package api

import (
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/postservice"
)

// CreatePostRequest is the request body for creating a post. Either Content
// (full source text) or Document (structured fields) must be set; Content wins.
type CreatePostRequest struct {
	Path     string           `json:"path" example:"2016/hello.md" validate:"required"`
	Content  string           `json:"content,omitempty" example:"---\ntitle: Hello\ndate: 2020-01-01 10:00:00 +0000\n---\nBody"`
	Document *models.Document `json:"document,omitempty"`
}

// UpdatePostRequest is the request body for replacing a post's source.
type UpdatePostRequest struct {
	Content string `json:"content" example:"---\ntitle: Updated\ndate: 2020-01-01 10:00:00 +0000\n---\nBody" validate:"required"`
}

// PostDetail is the full post response type (aliased from the domain layer).
type PostDetail = postservice.PostDetail

// PostListItem is a lightweight item in a list response (aliased from the domain layer).
type PostListItem = postservice.PostListItem

// PostListResponse wraps paginated post listings.
type PostListResponse struct {
	Posts []PostListItem `json:"posts" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// TermListResponse wraps category or tag listings.
type TermListResponse struct {
	Terms []models.Term `json:"terms" validate:"required"`
}
