package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/quill/internal/postservice"
)

// Events is the change-notification side of the API: an SSE endpoint that
// also accepts post events.
type Events interface {
	http.Handler
	EventPublisher
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// events, if non-nil, is mounted at GET /events inside the auth group and
// receives post changes made through the API.
func NewRouter(svc *postservice.Service, authEnabled bool, token string, events Events) chi.Router {
	var pub EventPublisher
	if events != nil {
		pub = events
	}
	h := NewHandler(svc, pub)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Posts.
	r.Get("/posts", h.ListPosts)
	r.Post("/posts", h.CreatePost)
	r.Get("/posts/*", h.GetPost)
	r.Put("/posts/*", h.UpdatePost)
	r.Delete("/posts/*", h.DeletePost)

	// Taxonomy.
	r.Get("/categories", h.Categories)
	r.Get("/tags", h.Tags)

	// Validation without storage.
	r.Post("/parse", h.Parse)

	// SSE endpoint (protected by same auth middleware).
	if events != nil {
		r.Get("/events", events.ServeHTTP)
	}

	return r
}
