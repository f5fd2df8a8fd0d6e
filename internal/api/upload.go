package api

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/starford/limen/internal/notation"
)

// upload imports a multipart "file" field. The optional "path" field sets
// the corpus path; otherwise the file name is used at the corpus root.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSourceBytes)

	if err := r.ParseMultipartForm(maxSourceBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	target := r.FormValue("path")
	if target == "" {
		name, err := safeName(header.Filename)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		target = name
	}

	source, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	h.importSource(w, r, target, notation.Kind(r.FormValue("notation")), source, r.FormValue("overwrite") == "true")
}

// safeName accepts a plain file name with no directory part.
func safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if cleaned != path.Base(cleaned) || cleaned == ".." || cleaned == "." {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	return cleaned, nil
}
