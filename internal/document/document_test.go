package document

import (
	"slices"
	"testing"
)

func TestAppendTextLinksNeighbours(t *testing.T) {
	l := NewLimen()
	a := l.AppendText("a")
	b := l.AppendText("b")
	c := l.AppendText("c")

	if a.Prev() != nil || a.Next() != b || b.Prev() != a || b.Next() != c || c.Next() != nil {
		t.Fatal("nodes are not linked in insertion order")
	}
	if l.Len() != 3 || l.Text() != "abc" {
		t.Errorf("len=%d text=%q", l.Len(), l.Text())
	}
}

func TestTextNodesIsRestartable(t *testing.T) {
	l := NewLimen()
	for _, s := range []string{"one", "two", "three"} {
		l.AppendText(s)
	}
	collect := func() []string {
		var out []string
		for n := range l.TextNodes() {
			out = append(out, n.Content())
		}
		return out
	}
	first, second := collect(), collect()
	if !slices.Equal(first, []string{"one", "two", "three"}) || !slices.Equal(first, second) {
		t.Errorf("first=%v second=%v", first, second)
	}

	var early []string
	for n := range l.TextNodes() {
		early = append(early, n.Content())
		if len(early) == 2 {
			break
		}
	}
	if len(early) != 2 {
		t.Errorf("early stop yielded %v", early)
	}
}

func TestMarkupLayersAreSortedSet(t *testing.T) {
	m := NewMarkup("x", "", []string{"b", "a", "b"})
	if !slices.Equal(LayersOf(m), []string{"a", "b"}) {
		t.Errorf("layers = %v", LayersOf(m))
	}
	if !m.InLayer("a") || m.InLayer("") {
		t.Error("InLayer mismatch")
	}
	d := NewMarkup("y", "2", nil)
	if !slices.Equal(LayersOf(d), []string{DefaultLayer}) {
		t.Errorf("default layers = %v", LayersOf(d))
	}
	if d.ExtendedTag() != "y~2" {
		t.Errorf("extended tag = %q", d.ExtendedTag())
	}
}

func TestSetDominatingKeepsFirstChild(t *testing.T) {
	parent := NewMarkup("p", "", nil)
	first := NewMarkup("a", "", nil)
	second := NewMarkup("b", "", nil)
	first.SetDominating(parent)
	second.SetDominating(parent)

	if got, _ := DominatedMarkup(parent); got != first {
		t.Error("dominated should be the first child")
	}
	if got, _ := DominatingMarkup(second); got != parent {
		t.Error("second child should still point to its parent")
	}
}

func TestAddTextNodeSkipsRepeat(t *testing.T) {
	l := NewLimen()
	n := l.AppendText("x")
	m := NewMarkup("m", "", nil)
	m.AddTextNode(n)
	m.AddTextNode(n)
	if len(m.TextNodes()) != 1 {
		t.Errorf("members = %d", len(m.TextNodes()))
	}
}

func TestSpacesVisitsAnnotationsAndBranches(t *testing.T) {
	d := New()
	root := d.Root()
	m := NewMarkup("m", "", nil)
	root.AddMarkup(m)
	a := NewAnnotation("n")
	a.Value().AppendText("note")
	nested := NewAnnotation("inner")
	a.AddAnnotation(nested)
	m.AddAnnotation(a)
	bs := NewBranchSet(0)
	br := bs.AddBranch()
	br.AddMarkup(NewMarkup("alt", "", []string{"L"}))
	root.AddBranchSet(bs)

	var spaces []*Limen
	for l := range d.Spaces() {
		spaces = append(spaces, l)
	}
	want := []*Limen{root, a.Value(), nested.Value(), br}
	if !slices.Equal(spaces, want) {
		t.Errorf("visited %d spaces, want %d", len(spaces), len(want))
	}
	if !slices.Equal(d.Layers(), []string{DefaultLayer, "L"}) {
		t.Errorf("layers = %v", d.Layers())
	}
	if got := len(slices.Collect(d.Markups())); got != 2 {
		t.Errorf("markups = %d", got)
	}
}
