package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quill/internal/catalog"
	"github.com/starford/quill/internal/checksum"
	"github.com/starford/quill/internal/models"
	"github.com/starford/quill/internal/postservice"
	"github.com/starford/quill/internal/sse"
)

const maxBodyBytes = 10 << 20

// EventPublisher receives post changes made through the API.
type EventPublisher interface {
	PublishPost(c sse.PostChange)
}

// Handler holds API route handlers.
type Handler struct {
	svc    *postservice.Service
	events EventPublisher
}

// NewHandler creates a new Handler. events may be nil.
func NewHandler(svc *postservice.Service, events EventPublisher) *Handler {
	return &Handler{svc: svc, events: events}
}

// publish reports a change to post; post is nil for deletions.
func (h *Handler) publish(kind, path string, post *postservice.PostDetail) {
	if h.events == nil {
		return
	}
	var doc *models.Document
	if post != nil {
		doc = &models.Document{
			Title:      post.Title,
			Date:       post.Date,
			Categories: post.Categories,
			Tags:       post.Tags,
		}
	}
	h.events.PublishPost(sse.NewPostChange(kind, path, doc, nil))
}

// postPath extracts the post path from the URL (everything after /api/posts/).
// Supports encoded slashes (e.g. 2016%2Fhello.md).
func postPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListPosts handles GET /api/posts.
//
//	@Summary		List posts newest first with optional filtering
//	@Tags			posts
//	@Produce		json
//	@Param			category	query		string	false	"Filter by category"
//	@Param			tag			query		string	false	"Filter by tag"
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Success		200			{object}	PostListResponse
//	@Security		BearerAuth
//	@Router			/posts [get]
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListPosts(r.Context(), catalog.Filter{
		Category: q.Get("category"),
		Tag:      q.Get("tag"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, "list posts", "", err)
		return
	}
	writeJSON(w, http.StatusOK, PostListResponse{Posts: items, Total: total})
}

// GetPost handles GET /api/posts/*. With ?raw=1 the stored source text is
// returned as text/markdown.
//
//	@Summary		Get a single post by path
//	@Tags			posts
//	@Produce		json
//	@Param			path	path		string	true	"Post path"
//	@Param			raw		query		bool	false	"Return the source text"
//	@Success		200		{object}	PostDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/{path} [get]
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	path := postPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}

	if raw, _ := strconv.ParseBool(r.URL.Query().Get("raw")); raw {
		data, err := h.svc.Raw(r.Context(), path)
		if err != nil {
			writeError(w, "read post", path, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("ETag", checksum.ETag(checksum.Sum(data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	post, err := h.svc.GetPost(r.Context(), path)
	if err != nil {
		writeError(w, "get post", path, err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(post.Checksum))
	writeJSON(w, http.StatusOK, post)
}

// CreatePost handles POST /api/posts.
//
//	@Summary		Create a new post from source text or structured fields
//	@Tags			posts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreatePostRequest	true	"Post to create"
//	@Success		201		{object}	PostDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	parseErrResponse
//	@Security		BearerAuth
//	@Router			/posts [post]
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || (req.Content == "" && req.Document == nil) {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content or document are required"))
		return
	}

	var (
		post *postservice.PostDetail
		err  error
	)
	if req.Content != "" {
		post, err = h.svc.CreateRaw(r.Context(), req.Path, []byte(req.Content))
	} else {
		post, err = h.svc.CreatePost(r.Context(), req.Path, *req.Document)
	}
	if err != nil {
		writeError(w, "create post", req.Path, err)
		return
	}
	h.publish(catalog.EventCreated, post.Path, post)
	w.Header().Set("ETag", checksum.ETag(post.Checksum))
	writeJSON(w, http.StatusCreated, post)
}

// UpdatePost handles PUT /api/posts/*.
//
//	@Summary		Replace a post's source with optimistic concurrency
//	@Tags			posts
//	@Accept			plain,json
//	@Produce		json
//	@Param			path		path	string				true	"Post path"
//	@Param			If-Match	header	string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	string				true	"Raw post source, or UpdatePostRequest as JSON"
//	@Success		200		{object}	PostDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	parseErrResponse
//	@Security		BearerAuth
//	@Router			/posts/{path} [put]
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	path := postPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	content, ok := updateContent(w, r)
	if !ok {
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	post, err := h.svc.UpdatePost(r.Context(), path, content, ifMatch)
	if err != nil {
		writeError(w, "update post", path, err)
		return
	}
	h.publish(catalog.EventUpdated, post.Path, post)
	w.Header().Set("ETag", checksum.ETag(post.Checksum))
	writeJSON(w, http.StatusOK, post)
}

// updateContent reads the new post source: a JSON UpdatePostRequest when the
// request says application/json, otherwise the raw body.
func updateContent(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req UpdatePostRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return nil, false
		}
		if req.Content == "" {
			writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
			return nil, false
		}
		return []byte(req.Content), true
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return nil, false
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return nil, false
	}
	return data, true
}

// DeletePost handles DELETE /api/posts/*.
//
//	@Summary		Delete a post
//	@Tags			posts
//	@Param			path	path	string	true	"Post path"
//	@Success		204		"Post deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/{path} [delete]
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	path := postPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeletePost(r.Context(), path); err != nil {
		writeError(w, "delete post", path, err)
		return
	}
	h.publish(catalog.EventDeleted, path, nil)
	w.WriteHeader(http.StatusNoContent)
}

// Categories handles GET /api/categories.
//
//	@Summary		List categories with post counts
//	@Tags			taxonomy
//	@Produce		json
//	@Success		200	{object}	TermListResponse
//	@Security		BearerAuth
//	@Router			/categories [get]
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	h.terms(w, r, models.TermCategory)
}

// Tags handles GET /api/tags.
//
//	@Summary		List tags with post counts
//	@Tags			taxonomy
//	@Produce		json
//	@Success		200	{object}	TermListResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	h.terms(w, r, models.TermTag)
}

func (h *Handler) terms(w http.ResponseWriter, r *http.Request, kind string) {
	terms, err := h.svc.Terms(r.Context(), kind)
	if err != nil {
		writeError(w, "list "+kind+" terms", "", err)
		return
	}
	writeJSON(w, http.StatusOK, TermListResponse{Terms: terms})
}

// Parse handles POST /api/parse. The request body is the raw document text.
//
//	@Summary		Parse a document without storing it
//	@Tags			posts
//	@Accept			plain
//	@Produce		json
//	@Success		200	{object}	models.Document
//	@Failure		422	{object}	parseErrResponse
//	@Security		BearerAuth
//	@Router			/parse [post]
func (h *Handler) Parse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	doc, err := h.svc.Validate(data)
	if err != nil {
		writeError(w, "parse", "", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}
