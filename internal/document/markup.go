package document

import (
	"slices"
	"strings"
)

// DefaultLayer is the layer ranges are opened in when none is named.
const DefaultLayer = ""

// Markup is a named range over text. Its members may be discontinuous and
// it may live in several layers at once.
type Markup struct {
	Tag      string
	Suffix   string
	ID       string
	Optional bool

	layers      []string
	nodes       []*TextNode
	annotations []*Annotation
	dominating  *Markup
	dominated   *Markup
	target      *Markup
	milestone   bool
	owner       *Limen
}

// NewMarkup returns a range in the given layers. An empty layer list places
// it in the default layer.
func NewMarkup(tag, suffix string, layers []string) *Markup {
	if len(layers) == 0 {
		layers = []string{DefaultLayer}
	}
	ls := slices.Clone(layers)
	slices.Sort(ls)
	return &Markup{Tag: tag, Suffix: suffix, layers: slices.Compact(ls)}
}

// ExtendedTag returns the tag followed by "~suffix" when a suffix is set.
func (m *Markup) ExtendedTag() string {
	return ExtendedTag(m.Tag, m.Suffix)
}

// ExtendedTag joins a tag and its optional disambiguating suffix.
func ExtendedTag(tag, suffix string) string {
	if suffix == "" {
		return tag
	}
	return tag + "~" + suffix
}

// Layers returns the sorted layer identifiers the range is open in.
func (m *Markup) Layers() []string { return m.layers }

// InLayer reports whether the range belongs to layer.
func (m *Markup) InLayer(layer string) bool {
	_, ok := slices.BinarySearch(m.layers, layer)
	return ok
}

// TextNodes returns the member nodes in the order they were added.
func (m *Markup) TextNodes() []*TextNode { return m.nodes }

// Text concatenates the member nodes' content.
func (m *Markup) Text() string {
	var b strings.Builder
	for n := range TextNodesOf(m) {
		b.WriteString(n.content)
	}
	return b.String()
}

// Annotations returns the annotations attached to the range.
func (m *Markup) Annotations() []*Annotation { return m.annotations }

// Owner returns the space the range is rooted in.
func (m *Markup) Owner() *Limen { return m.owner }

// IsMilestone reports whether the range is a zero-width point marker.
func (m *Markup) IsMilestone() bool { return m.milestone }

// IsVirtual reports whether the range aliases another identified range.
func (m *Markup) IsVirtual() bool { return m.target != nil }

// Target returns the aliased range of a virtual element.
func (m *Markup) Target() *Markup { return m.target }

// AddTextNode appends n to the members. Adding the current last member again
// is a no-op.
func (m *Markup) AddTextNode(n *TextNode) {
	if k := len(m.nodes); k > 0 && m.nodes[k-1] == n {
		return
	}
	m.nodes = append(m.nodes, n)
}

// AddAnnotation attaches a to the range.
func (m *Markup) AddAnnotation(a *Annotation) {
	m.annotations = append(m.annotations, a)
}

// SetDominating links parent as the range directly enclosing m at open
// time. The first range linked under parent becomes its dominated range.
func (m *Markup) SetDominating(parent *Markup) {
	if parent == nil {
		return
	}
	m.dominating = parent
	if parent.dominated == nil {
		parent.dominated = m
	}
}

// SetDominated links child directly, bypassing open-order derivation.
func (m *Markup) SetDominated(child *Markup) { m.dominated = child }

// MarkMilestone flags the range as a point marker.
func (m *Markup) MarkMilestone() { m.milestone = true }

// SetTarget turns m into a virtual alias of target.
func (m *Markup) SetTarget(target *Markup) { m.target = target }

// Annotation decorates a range or another annotation. Its value is a full
// markup space, so annotation content may carry text, ranges and nested
// annotations.
type Annotation struct {
	Tag string

	value       *Limen
	annotations []*Annotation
}

// NewAnnotation returns an annotation with an empty value.
func NewAnnotation(tag string) *Annotation {
	return &Annotation{Tag: tag, value: NewLimen()}
}

// Value returns the annotation's content space.
func (a *Annotation) Value() *Limen { return a.value }

// Text returns the plain text of the value.
func (a *Annotation) Text() string { return a.value.Text() }

// Annotations returns nested annotations.
func (a *Annotation) Annotations() []*Annotation { return a.annotations }

// AddAnnotation nests child under a.
func (a *Annotation) AddAnnotation(child *Annotation) {
	a.annotations = append(a.annotations, child)
}
