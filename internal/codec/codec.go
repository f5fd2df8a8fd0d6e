// Package codec converts document graphs to and from a flat, index-based
// JSON form suitable for storage. Pointers between text nodes, markups,
// annotations and branch-sets become integer indexes into shared tables.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"

	"github.com/starford/limen/internal/document"
)

// FormatVersion is written into every encoded graph.
const FormatVersion = 1

// ErrCorrupt is returned when an encoded graph cannot be decoded.
var ErrCorrupt = errors.New("corrupt document graph")

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// none marks an absent reference.
const none = -1

// Graph is the serialized form of a document.
type Graph struct {
	Version     int                   `json:"version"`
	Meta        document.Metadata     `json:"meta"`
	Diagnostics []document.Diagnostic `json:"diagnostics,omitempty"`
	Nodes       []string              `json:"nodes"`
	Limens      []Limen               `json:"limens"`
	Markups     []Markup              `json:"markups"`
	Annotations []Annotation          `json:"annotations,omitempty"`
	BranchSets  []BranchSet           `json:"branch_sets,omitempty"`
}

// Limen lists the marks of one text space. Limen 0 is the document root.
type Limen struct {
	Marks []Mark `json:"marks"`
}

// Mark is one replay step. Ref indexes Nodes, Markups or BranchSets
// depending on Kind.
type Mark struct {
	Kind string `json:"k"`
	Ref  int    `json:"r"`
}

type Markup struct {
	Tag         string   `json:"tag"`
	Suffix      string   `json:"suffix,omitempty"`
	ID          string   `json:"id,omitempty"`
	Optional    bool     `json:"optional,omitempty"`
	Milestone   bool     `json:"milestone,omitempty"`
	Layers      []string `json:"layers"`
	Owner       int      `json:"owner"`
	Nodes       []int    `json:"nodes,omitempty"`
	Annotations []int    `json:"annotations,omitempty"`
	Dominating  int      `json:"dominating"`
	Dominated   int      `json:"dominated"`
	Target      int      `json:"target"`
}

type Annotation struct {
	Tag         string `json:"tag"`
	Value       int    `json:"value"`
	Annotations []int  `json:"annotations,omitempty"`
}

type BranchSet struct {
	Fork     int   `json:"fork"`
	Branches []int `json:"branches"`
}

var markKinds = map[string]document.MarkKind{}

func init() {
	for k := document.MarkText; k <= document.MarkBranchSet; k++ {
		markKinds[k.String()] = k
	}
}

// Marshal encodes doc as JSON, xz-compressed when compress is set.
func Marshal(doc *document.Document, compress bool) ([]byte, error) {
	data, err := json.Marshal(Encode(doc))
	if err != nil {
		return nil, fmt.Errorf("encode graph: %w", err)
	}
	if !compress {
		return data, nil
	}
	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("create xz writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compress graph: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress graph: %w", err)
	}
	return buf.Bytes(), nil
}

// Compressed reports whether data carries the xz magic bytes.
func Compressed(data []byte) bool { return bytes.HasPrefix(data, xzMagic) }

// Unmarshal decodes data produced by Marshal, compressed or not.
func Unmarshal(data []byte) (*document.Document, error) {
	if Compressed(data) {
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if data, err = io.ReadAll(r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
	}
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return Decode(&g)
}

// Encode flattens doc.
func Encode(doc *document.Document) *Graph {
	e := newEncoder()
	e.collect(doc.Root())
	g := &Graph{
		Version:     FormatVersion,
		Meta:        doc.Meta,
		Diagnostics: doc.Diagnostics(),
		Nodes:       make([]string, len(e.nodes)),
		Limens:      make([]Limen, len(e.limens)),
		Markups:     make([]Markup, len(e.markups)),
		Annotations: make([]Annotation, len(e.annotations)),
		BranchSets:  make([]BranchSet, len(e.branchSets)),
	}
	for i, n := range e.nodes {
		g.Nodes[i] = n.Content()
	}
	for i, l := range e.limens {
		marks := make([]Mark, 0, len(l.Marks()))
		for _, mk := range l.Marks() {
			ref := none
			switch mk.Kind {
			case document.MarkText:
				ref = e.nodeIdx[mk.Node]
			case document.MarkBranchSet:
				ref = e.bsIdx[mk.BranchSet]
			default:
				ref = e.markupIdx[mk.Markup]
			}
			marks = append(marks, Mark{Kind: mk.Kind.String(), Ref: ref})
		}
		g.Limens[i] = Limen{Marks: marks}
	}
	for i, m := range e.markups {
		dto := Markup{
			Tag:        m.Tag,
			Suffix:     m.Suffix,
			ID:         m.ID,
			Optional:   m.Optional,
			Milestone:  m.IsMilestone(),
			Layers:     m.Layers(),
			Owner:      e.limenIdx[m.Owner()],
			Dominating: none,
			Dominated:  none,
			Target:     e.ref(m.Target()),
		}
		for _, n := range m.TextNodes() {
			dto.Nodes = append(dto.Nodes, e.nodeIdx[n])
		}
		for _, a := range m.Annotations() {
			dto.Annotations = append(dto.Annotations, e.annoIdx[a])
		}
		if p, ok := document.DominatingMarkup(m); ok {
			dto.Dominating = e.ref(p)
		}
		if c, ok := document.DominatedMarkup(m); ok {
			dto.Dominated = e.ref(c)
		}
		g.Markups[i] = dto
	}
	for i, a := range e.annotations {
		dto := Annotation{Tag: a.Tag, Value: e.limenIdx[a.Value()]}
		for _, c := range a.Annotations() {
			dto.Annotations = append(dto.Annotations, e.annoIdx[c])
		}
		g.Annotations[i] = dto
	}
	for i, bs := range e.branchSets {
		dto := BranchSet{Fork: bs.Fork()}
		for _, br := range bs.Branches() {
			dto.Branches = append(dto.Branches, e.limenIdx[br])
		}
		g.BranchSets[i] = dto
	}
	return g
}

type encoder struct {
	limens      []*document.Limen
	nodes       []*document.TextNode
	markups     []*document.Markup
	annotations []*document.Annotation
	branchSets  []*document.BranchSet

	limenIdx  map[*document.Limen]int
	nodeIdx   map[*document.TextNode]int
	markupIdx map[*document.Markup]int
	annoIdx   map[*document.Annotation]int
	bsIdx     map[*document.BranchSet]int
}

func newEncoder() *encoder {
	return &encoder{
		limenIdx:  make(map[*document.Limen]int),
		nodeIdx:   make(map[*document.TextNode]int),
		markupIdx: make(map[*document.Markup]int),
		annoIdx:   make(map[*document.Annotation]int),
		bsIdx:     make(map[*document.BranchSet]int),
	}
}

func (e *encoder) ref(m *document.Markup) int {
	if m == nil {
		return none
	}
	if i, ok := e.markupIdx[m]; ok {
		return i
	}
	return none
}

// collect numbers every object reachable from l, parents before children.
func (e *encoder) collect(l *document.Limen) {
	e.limenIdx[l] = len(e.limens)
	e.limens = append(e.limens, l)
	for n := range l.TextNodes() {
		e.nodeIdx[n] = len(e.nodes)
		e.nodes = append(e.nodes, n)
	}
	for _, m := range l.Markups() {
		e.markupIdx[m] = len(e.markups)
		e.markups = append(e.markups, m)
	}
	for _, m := range l.Markups() {
		for _, a := range m.Annotations() {
			e.collectAnnotation(a)
		}
	}
	for _, bs := range l.BranchSets() {
		e.bsIdx[bs] = len(e.branchSets)
		e.branchSets = append(e.branchSets, bs)
		for _, br := range bs.Branches() {
			e.collect(br)
		}
	}
}

func (e *encoder) collectAnnotation(a *document.Annotation) {
	e.annoIdx[a] = len(e.annotations)
	e.annotations = append(e.annotations, a)
	e.collect(a.Value())
	for _, c := range a.Annotations() {
		e.collectAnnotation(c)
	}
}

// Decode rebuilds the pointer graph described by g.
func Decode(g *Graph) (*document.Document, error) {
	if g.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, g.Version)
	}
	if len(g.Limens) == 0 {
		return nil, fmt.Errorf("%w: no root text space", ErrCorrupt)
	}
	d := &decoder{g: g, doc: document.New()}
	d.doc.Meta = g.Meta
	for _, diag := range g.Diagnostics {
		d.doc.AddDiagnostic(diag)
	}
	if err := d.decode(); err != nil {
		return nil, err
	}
	return d.doc, nil
}

type decoder struct {
	g           *Graph
	doc         *document.Document
	limens      []*document.Limen
	nodes       []*document.TextNode
	markups     []*document.Markup
	annotations []*document.Annotation
	branchSets  []*document.BranchSet
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}

func (d *decoder) decode() error {
	g := d.g
	d.limens = make([]*document.Limen, len(g.Limens))
	d.limens[0] = d.doc.Root()

	d.markups = make([]*document.Markup, len(g.Markups))
	for i, dto := range g.Markups {
		m := document.NewMarkup(dto.Tag, dto.Suffix, dto.Layers)
		m.ID = dto.ID
		m.Optional = dto.Optional
		if dto.Milestone {
			m.MarkMilestone()
		}
		d.markups[i] = m
	}

	// Annotation values and branches own their text spaces, so those
	// limens come into being with their parents.
	d.annotations = make([]*document.Annotation, len(g.Annotations))
	for i, dto := range g.Annotations {
		a := document.NewAnnotation(dto.Tag)
		if err := d.bindLimen(dto.Value, a.Value()); err != nil {
			return err
		}
		d.annotations[i] = a
	}
	d.branchSets = make([]*document.BranchSet, len(g.BranchSets))
	for i, dto := range g.BranchSets {
		bs := document.NewBranchSet(dto.Fork)
		for _, li := range dto.Branches {
			if err := d.bindLimen(li, bs.AddBranch()); err != nil {
				return err
			}
		}
		d.branchSets[i] = bs
	}
	for i, l := range d.limens {
		if l == nil {
			return corrupt("text space %d is unreachable", i)
		}
	}

	d.nodes = make([]*document.TextNode, len(g.Nodes))
	for i, l := range d.limens {
		if err := d.replay(l, g.Limens[i].Marks); err != nil {
			return err
		}
	}
	for i, n := range d.nodes {
		if n == nil {
			return corrupt("text node %d is never placed", i)
		}
	}
	return d.link()
}

func (d *decoder) bindLimen(i int, l *document.Limen) error {
	if i <= 0 || i >= len(d.limens) || d.limens[i] != nil {
		return corrupt("bad text space reference %d", i)
	}
	d.limens[i] = l
	return nil
}

func (d *decoder) replay(l *document.Limen, marks []Mark) error {
	for _, mk := range marks {
		kind, ok := markKinds[mk.Kind]
		if !ok {
			return corrupt("unknown mark %q", mk.Kind)
		}
		switch kind {
		case document.MarkText:
			if mk.Ref < 0 || mk.Ref >= len(d.nodes) || d.nodes[mk.Ref] != nil {
				return corrupt("bad text node reference %d", mk.Ref)
			}
			d.nodes[mk.Ref] = l.AppendText(d.g.Nodes[mk.Ref])
		case document.MarkBranchSet:
			if mk.Ref < 0 || mk.Ref >= len(d.branchSets) {
				return corrupt("bad branch-set reference %d", mk.Ref)
			}
			l.AddBranchSet(d.branchSets[mk.Ref])
		default:
			m, err := d.markup(mk.Ref)
			if err != nil {
				return err
			}
			l.Record(kind, m)
		}
	}
	return nil
}

func (d *decoder) markup(i int) (*document.Markup, error) {
	if i < 0 || i >= len(d.markups) {
		return nil, corrupt("bad markup reference %d", i)
	}
	return d.markups[i], nil
}

func (d *decoder) optionalMarkup(i int) (*document.Markup, error) {
	if i == none {
		return nil, nil
	}
	return d.markup(i)
}

func (d *decoder) annotation(i int) (*document.Annotation, error) {
	if i < 0 || i >= len(d.annotations) {
		return nil, corrupt("bad annotation reference %d", i)
	}
	return d.annotations[i], nil
}

// link restores the references between markups, annotations and text.
func (d *decoder) link() error {
	for i, dto := range d.g.Markups {
		m := d.markups[i]
		if dto.Owner < 0 || dto.Owner >= len(d.limens) {
			return corrupt("markup %d has bad owner %d", i, dto.Owner)
		}
		d.limens[dto.Owner].AddMarkup(m)
		for _, ni := range dto.Nodes {
			if ni < 0 || ni >= len(d.nodes) {
				return corrupt("markup %d has bad text node %d", i, ni)
			}
			m.AddTextNode(d.nodes[ni])
		}
		for _, ai := range dto.Annotations {
			a, err := d.annotation(ai)
			if err != nil {
				return err
			}
			m.AddAnnotation(a)
		}
		target, err := d.optionalMarkup(dto.Target)
		if err != nil {
			return err
		}
		if target != nil {
			m.SetTarget(target)
		}
		parent, err := d.optionalMarkup(dto.Dominating)
		if err != nil {
			return err
		}
		if parent != nil {
			m.SetDominating(parent)
		}
	}
	// Dominated links are restored last so the recorded first child wins.
	for i, dto := range d.g.Markups {
		child, err := d.optionalMarkup(dto.Dominated)
		if err != nil {
			return err
		}
		if child != nil {
			d.markups[i].SetDominated(child)
		}
	}
	for i, dto := range d.g.Annotations {
		for _, ci := range dto.Annotations {
			c, err := d.annotation(ci)
			if err != nil {
				return err
			}
			d.annotations[i].AddAnnotation(c)
		}
	}
	return nil
}
