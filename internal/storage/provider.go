// Package storage defines the content directory abstraction that feeds
// source files to the parser.
package storage

import "github.com/starford/quill/internal/models"

// Provider is the interface for content file operations.
type Provider interface {
	// List returns metadata for every post file under dir (relative to the content root).
	List(dir string) ([]models.PostMetadata, error)
	// Read returns the raw bytes of the file at path (relative to the content root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the content root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to the content root).
	Delete(path string) error
}
