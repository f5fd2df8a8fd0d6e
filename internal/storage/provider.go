// Package storage defines the corpus file-system abstraction.
package storage

import "github.com/starford/limen/internal/models"

// Provider is the interface for corpus file operations.
type Provider interface {
	// List returns every notation file under dir (relative to the corpus root).
	List(dir string) ([]models.SourceFile, error)
	// Read returns the raw bytes of the file at path (relative to the corpus root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the corpus root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to the corpus root).
	Delete(path string) error
	// Root returns the absolute corpus directory.
	Root() string
}
