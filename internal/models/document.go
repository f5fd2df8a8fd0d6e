// Package models defines the persisted types for limen.
package models

import "time"

// Document is the stored record of one imported source file.
type Document struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Notation    string    `json:"notation"`
	Checksum    string    `json:"checksum"`
	TextLength  int       `json:"text_length"`
	MarkupCount int       `json:"markup_count"`
	Layers      []string  `json:"layers"`
	Compressed  bool      `json:"compressed"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SourceFile is a notation file in the corpus as seen by a listing.
type SourceFile struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarkupHit is a single range matched by a markup search.
type MarkupHit struct {
	DocumentID string   `json:"document_id"`
	Path       string   `json:"path"`
	Tag        string   `json:"tag"`
	Layers     []string `json:"layers"`
	Text       string   `json:"text"`
}
