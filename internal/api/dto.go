package api

import (
	"github.com/starford/limen/internal/docservice"
	"github.com/starford/limen/internal/models"
)

// CreateDocumentRequest is the JSON body for importing a document.
type CreateDocumentRequest struct {
	Path      string `json:"path" example:"poems/frost.tagml" validate:"required"`
	Notation  string `json:"notation,omitempty" example:"tagml"`
	Source    string `json:"source" example:"[s>Whose woods these are<s]" validate:"required"`
	Overwrite bool   `json:"overwrite,omitempty"`
}

// DocumentResponse is returned after an import.
type DocumentResponse struct {
	Document models.Document `json:"document" validate:"required"`
	Created  bool            `json:"created"`
}

// DocumentDetail is the full document response type (aliased from the domain layer).
type DocumentDetail = docservice.DocumentDetail

// MarkupView is a single range in a markups response (aliased from the domain layer).
type MarkupView = docservice.MarkupView

// DocumentListResponse wraps paginated document listings.
type DocumentListResponse struct {
	Documents []models.Document `json:"documents" validate:"required"`
	Total     int               `json:"total" example:"42" validate:"required"`
}

// MarkupListResponse wraps the ranges of one document.
type MarkupListResponse struct {
	Markups []MarkupView `json:"markups" validate:"required"`
}

// SearchResponse wraps markup search hits.
type SearchResponse struct {
	Results []models.MarkupHit `json:"results" validate:"required"`
}
