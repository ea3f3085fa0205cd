// Package sse implements a Server-Sent Events broker that tells clients when
// posts change.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/quill/internal/frontmatter"
	"github.com/starford/quill/internal/models"
)

// Post event kinds.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
	KindInvalid = "invalid"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// PostChange is the payload of a post.<kind> event.
type PostChange struct {
	Kind       string     `json:"-"`
	Path       string     `json:"path"`
	Title      string     `json:"title,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	Categories []string   `json:"categories,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	Error      string     `json:"error,omitempty"`
	ErrorKind  string     `json:"error_kind,omitempty"`
	ErrorField string     `json:"error_field,omitempty"`
}

// NewPostChange builds the event for a post. doc is read for created and
// updated posts, err for invalid ones.
func NewPostChange(kind, path string, doc *models.Document, err error) PostChange {
	c := PostChange{Kind: kind, Path: path}
	switch kind {
	case KindCreated, KindUpdated:
		if doc != nil {
			date := doc.Date
			c.Title = doc.Title
			c.Date = &date
			c.Categories = slices.Clone(doc.Categories)
			c.Tags = slices.Clone(doc.Tags)
		}
	case KindInvalid:
		if err != nil {
			c.Error = err.Error()
			c.ErrorKind = frontmatter.Kind(err)
			c.ErrorField = frontmatter.Field(err)
		}
	}
	return c
}

// termKey identifies the set of categories and tags a change leaves the post
// with. Deleted and invalid posts contribute no terms.
func (c PostChange) termKey() string {
	if c.Kind != KindCreated && c.Kind != KindUpdated {
		return ""
	}
	if len(c.Categories) == 0 && len(c.Tags) == 0 {
		return ""
	}
	cats := slices.Clone(c.Categories)
	tags := slices.Clone(c.Tags)
	slices.Sort(cats)
	slices.Sort(tags)
	return strings.Join(cats, "\x1f") + "\x1e" + strings.Join(tags, "\x1f")
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients, the last known terms of each post and the taxonomy throttle). Public
// methods communicate with this loop through channels, so no mutexes are required.
type Broker struct {
	taxonomyMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	postCh        chan PostChange
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. taxonomy.updated is sent only when a
// post's categories or tags change, at most once per taxonomyThrottle; a
// change inside the window is delivered when the window ends.
func NewBroker(taxonomyThrottle time.Duration) *Broker {
	if taxonomyThrottle <= 0 {
		taxonomyThrottle = 2 * time.Second
	}

	b := &Broker{
		taxonomyMin:   taxonomyThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		postCh:        make(chan PostChange, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	terms := make(map[string]string)

	var (
		lastTaxonomy time.Time
		taxonomyDue  <-chan time.Time
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		msg := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)
		raw := []byte(msg)

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	sendTaxonomy := func() {
		lastTaxonomy = time.Now()
		broadcast(Event{Type: "taxonomy.updated", Data: map[string]string{}})
	}

	taxonomyChanged := func() {
		if taxonomyDue != nil {
			return
		}
		wait := b.taxonomyMin - time.Since(lastTaxonomy)
		if wait <= 0 {
			sendTaxonomy()
			return
		}
		taxonomyDue = time.After(wait)
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case c := <-b.postCh:
			switch c.Kind {
			case KindCreated, KindUpdated, KindDeleted, KindInvalid:
			default:
				continue
			}
			broadcast(Event{Type: "post." + c.Kind, Data: c})

			key := c.termKey()
			prev, known := terms[c.Path]
			if !known && c.Kind == KindCreated {
				known = true
			}
			if c.Kind == KindDeleted {
				delete(terms, c.Path)
			} else {
				terms[c.Path] = key
			}
			if !known || prev != key {
				taxonomyChanged()
			}

		case <-taxonomyDue:
			taxonomyDue = nil
			sendTaxonomy()

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishPost publishes post.<kind> for c and, when the post's terms changed,
// a throttled taxonomy.updated event. Unknown kinds are dropped.
func (b *Broker) PublishPost(c PostChange) {
	if b.closed.Load() {
		return
	}
	select {
	case b.postCh <- c:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
