// Package models defines the domain types for Quill.
package models

import (
	"reflect"
	"slices"
	"time"
)

// Document is one parsed article: front matter plus the verbatim body.
type Document struct {
	Title      string         `json:"title"`
	Date       time.Time      `json:"date"`
	Categories []string       `json:"categories"`
	Tags       []string       `json:"tags"`
	TOC        bool           `json:"toc"`
	Extra      map[string]any `json:"extra,omitempty"`
	Body       string         `json:"body"`
}

// Equal reports whether d and other carry the same metadata and body. Dates
// must denote the same instant with the same offset.
func (d Document) Equal(other Document) bool {
	if d.Title != other.Title || d.TOC != other.TOC || d.Body != other.Body {
		return false
	}
	if !d.Date.Equal(other.Date) {
		return false
	}
	_, off := d.Date.Zone()
	_, otherOff := other.Date.Zone()
	if off != otherOff {
		return false
	}
	if !slices.Equal(d.Categories, other.Categories) || !slices.Equal(d.Tags, other.Tags) {
		return false
	}
	if len(d.Extra) == 0 && len(other.Extra) == 0 {
		return true
	}
	return reflect.DeepEqual(d.Extra, other.Extra)
}

// PostMetadata is a lightweight representation returned by list operations.
type PostMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Term kinds stored in the catalog.
const (
	TermCategory = "category"
	TermTag      = "tag"
)

// Term is a category or tag together with the number of posts carrying it.
type Term struct {
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}
