package document

import "iter"

// TextNodesOf yields the members of m in the order they were added. For a
// suspended and resumed range this is the pre-suspend segment followed by
// the post-resume segment. A virtual element yields its target's members.
func TextNodesOf(m *Markup) iter.Seq[*TextNode] {
	return func(yield func(*TextNode) bool) {
		src := m
		if m.target != nil {
			src = m.target
		}
		for _, n := range src.nodes {
			if !yield(n) {
				return
			}
		}
	}
}

// AnnotationsOf returns the annotations of m in input order.
func AnnotationsOf(m *Markup) []*Annotation {
	return m.annotations
}

// DominatingMarkup returns the range that was on top of m's first layer
// when m was opened.
func DominatingMarkup(m *Markup) (*Markup, bool) {
	return m.dominating, m.dominating != nil
}

// DominatedMarkup returns the first range opened directly under m.
func DominatedMarkup(m *Markup) (*Markup, bool) {
	return m.dominated, m.dominated != nil
}

// LayersOf returns the sorted set of layers m belongs to.
func LayersOf(m *Markup) []string {
	return m.layers
}
