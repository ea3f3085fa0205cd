package catalog

import "github.com/starford/quill/internal/models"

// Index defines the catalog operations used by the outer surfaces.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type Index interface {
	UpsertPost(p PostRow) error
	DeletePost(path string) error
	GetPost(path string) (*PostRow, error)
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	ListPosts(f Filter) ([]PostRow, int, error)
	Terms(kind string) ([]models.Term, error)
	Close() error
}

// Verify *DB satisfies Index at compile time.
var _ Index = (*DB)(nil)
