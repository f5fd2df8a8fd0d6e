package store

import "github.com/starford/limen/internal/models"

// DocumentStore defines the persistence operations used by services.
// Consumers depend on this interface rather than *DB so they can be tested
// with fakes.
type DocumentStore interface {
	Upsert(doc models.Document, graph []byte, markups []MarkupRow) (models.Document, bool, error)
	Get(id string) (models.Document, error)
	GetByPath(path string) (models.Document, error)
	Graph(id string) ([]byte, error)
	List(limit, offset int, notation string) ([]models.Document, int, error)
	Delete(id string) (models.Document, error)
	DeleteByPath(path string) (models.Document, error)
	SearchMarkup(tag, query string, limit int) ([]models.MarkupHit, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies DocumentStore at compile time.
var _ DocumentStore = (*DB)(nil)
