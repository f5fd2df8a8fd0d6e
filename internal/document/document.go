// Package document models text annotated with overlapping, discontinuous
// and non-linear markup as a graph of text nodes, ranges and annotations.
//
// A Document is built once by the importer and is read-only afterwards, so
// it can be shared between goroutines without locking.
package document

import (
	"iter"
	"slices"
)

// Metadata holds side information that does not affect the graph.
type Metadata struct {
	Comments   []string          `json:"comments,omitempty"`
	Namespaces map[string]string `json:"namespaces,omitempty"`
	Schemas    []string          `json:"schemas,omitempty"`
}

// Diagnostic kinds.
const (
	DiagnosticSuspended = "suspended"
)

// Diagnostic is a reportable, non-fatal condition found while building.
type Diagnostic struct {
	Kind    string `json:"kind"`
	Tag     string `json:"tag,omitempty"`
	Message string `json:"message"`
}

// Document is the root of a markup graph.
type Document struct {
	Meta Metadata

	root        *Limen
	diagnostics []Diagnostic
}

// New returns a Document with an empty root space.
func New() *Document {
	return &Document{root: NewLimen()}
}

// Root returns the top-level markup space.
func (d *Document) Root() *Limen { return d.root }

// Diagnostics returns non-fatal conditions recorded during import.
func (d *Document) Diagnostics() []Diagnostic { return d.diagnostics }

// AddDiagnostic records a non-fatal condition.
func (d *Document) AddDiagnostic(diag Diagnostic) {
	d.diagnostics = append(d.diagnostics, diag)
}

// Markups yields every range rooted in the root space or in any of its
// branches, depth first in open order. Ranges inside annotation values are
// not included.
func (d *Document) Markups() iter.Seq[*Markup] {
	return func(yield func(*Markup) bool) {
		walkMarkups(d.root, yield)
	}
}

func walkMarkups(l *Limen, yield func(*Markup) bool) bool {
	for _, m := range l.markups {
		if !yield(m) {
			return false
		}
	}
	for _, bs := range l.branchSets {
		for _, br := range bs.branches {
			if !walkMarkups(br, yield) {
				return false
			}
		}
	}
	return true
}

// MarkupByID returns the identified range, if any.
func (d *Document) MarkupByID(id string) (*Markup, bool) {
	if id == "" {
		return nil, false
	}
	for m := range d.Markups() {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// Layers returns the sorted set of layers used by any range.
func (d *Document) Layers() []string {
	var out []string
	for m := range d.Markups() {
		out = append(out, m.layers...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Spaces yields the root space, every branch space and every annotation
// value space, parents before children.
func (d *Document) Spaces() iter.Seq[*Limen] {
	return func(yield func(*Limen) bool) {
		walkSpaces(d.root, yield)
	}
}

func walkSpaces(l *Limen, yield func(*Limen) bool) bool {
	if !yield(l) {
		return false
	}
	for _, m := range l.markups {
		for _, a := range m.annotations {
			if !walkAnnotationSpaces(a, yield) {
				return false
			}
		}
	}
	for _, bs := range l.branchSets {
		for _, br := range bs.branches {
			if !walkSpaces(br, yield) {
				return false
			}
		}
	}
	return true
}

func walkAnnotationSpaces(a *Annotation, yield func(*Limen) bool) bool {
	if !walkSpaces(a.value, yield) {
		return false
	}
	for _, c := range a.annotations {
		if !walkAnnotationSpaces(c, yield) {
			return false
		}
	}
	return true
}
