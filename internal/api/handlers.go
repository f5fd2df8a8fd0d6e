package api

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/limen/internal/docservice"
	"github.com/starford/limen/internal/notation"
)

const maxSourceBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *docservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *docservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List imported documents
//	@Tags			documents
//	@Produce		json
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Param			notation	query		string	false	"Filter by notation"	Enums(tagml, texmecs, lmnl)
//	@Success		200			{object}	DocumentListResponse
//	@Failure		422			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	docs, total, err := h.svc.List(r.Context(), limit, offset, q.Get("notation"))
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: docs, Total: total})
}

// GetDocument handles GET /api/documents/{id}.
//
//	@Summary		Get a document with its text and diagnostics
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Document ID"
//	@Success		200	{object}	DocumentDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get document", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// CreateDocument handles POST /api/documents. It accepts either a JSON
// body or a multipart upload with a "file" field.
//
//	@Summary		Import a document
//	@Tags			documents
//	@Accept			json,mpfd
//	@Produce		json
//	@Param			body	body		CreateDocumentRequest	false	"Document to import"
//	@Success		201		{object}	DocumentResponse
//	@Success		200		{object}	DocumentResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		h.upload(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSourceBytes)
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Source == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and source are required"))
		return
	}
	h.importSource(w, r, req.Path, notation.Kind(req.Notation), []byte(req.Source), req.Overwrite)
}

func (h *Handler) importSource(w http.ResponseWriter, r *http.Request, path string, kind notation.Kind, source []byte, overwrite bool) {
	rec, created, err := h.svc.Import(r.Context(), path, kind, source, overwrite)
	if err != nil {
		writeError(w, "import document", err, slog.String("path", path))
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, DocumentResponse{Document: rec, Created: created})
}

// ListMarkups handles GET /api/documents/{id}/markups.
//
//	@Summary		List the ranges of a document
//	@Tags			documents
//	@Produce		json
//	@Param			id	path		string	true	"Document ID"
//	@Success		200	{object}	MarkupListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/markups [get]
func (h *Handler) ListMarkups(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	views, err := h.svc.Markups(r.Context(), id)
	if err != nil {
		writeError(w, "list markups", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, MarkupListResponse{Markups: views})
}

// ExportTAGML handles GET /api/documents/{id}/tagml.
//
//	@Summary		Export a document as TAGML
//	@Tags			documents
//	@Produce		plain
//	@Param			id	path		string	true	"Document ID"
//	@Success		200	{string}	string
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id}/tagml [get]
func (h *Handler) ExportTAGML(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	out, err := h.svc.Export(r.Context(), id)
	if err != nil {
		writeError(w, "export document", err, slog.String("id", id))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

// DeleteDocument handles DELETE /api/documents/{id}.
//
//	@Summary		Delete a document from the corpus and the store
//	@Tags			documents
//	@Param			id	path	string	true	"Document ID"
//	@Success		204	"Document deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{id} [delete]
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, "delete document", err, slog.String("id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Search ranges by tag and text
//	@Tags			search
//	@Produce		json
//	@Param			tag		query		string	false	"Extended tag"
//	@Param			q		query		string	false	"Text query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tag, text := q.Get("tag"), q.Get("q")
	if tag == "" && text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'tag' or 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	hits, err := h.svc.SearchMarkup(r.Context(), tag, text, limit)
	if err != nil {
		writeError(w, "search", err, slog.String("tag", tag), slog.String("query", text))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: hits})
}
