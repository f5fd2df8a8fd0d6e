package document

import (
	"iter"
	"strings"
)

// TextNode is an immutable chunk of text owned by exactly one Limen.
type TextNode struct {
	content    string
	prev, next *TextNode
}

// Content returns the node's text.
func (n *TextNode) Content() string { return n.content }

// Prev returns the preceding node in the owning sequence, or nil.
func (n *TextNode) Prev() *TextNode { return n.prev }

// Next returns the following node in the owning sequence, or nil.
func (n *TextNode) Next() *TextNode { return n.next }

// MarkKind identifies an entry in a Limen's structural log.
type MarkKind int

const (
	MarkText MarkKind = iota
	MarkOpen
	MarkClose
	MarkSuspend
	MarkResume
	MarkMilestone
	MarkVirtual
	MarkBranchSet
)

var markKindNames = [...]string{
	MarkText:      "text",
	MarkOpen:      "open",
	MarkClose:     "close",
	MarkSuspend:   "suspend",
	MarkResume:    "resume",
	MarkMilestone: "milestone",
	MarkVirtual:   "virtual",
	MarkBranchSet: "branchset",
}

func (k MarkKind) String() string {
	if k >= 0 && int(k) < len(markKindNames) {
		return markKindNames[k]
	}
	return "unknown"
}

// Mark is one entry of the structural log. Exactly one of Node, Markup or
// BranchSet is set, depending on Kind.
type Mark struct {
	Kind      MarkKind
	Node      *TextNode
	Markup    *Markup
	BranchSet *BranchSet
}

// Limen is a markup space: an append-only text sequence plus the ranges
// and branch-sets rooted in it.
type Limen struct {
	first, last *TextNode
	size        int
	markups     []*Markup
	branchSets  []*BranchSet
	marks       []Mark
}

// NewLimen returns an empty markup space.
func NewLimen() *Limen {
	return &Limen{}
}

// AppendText links a new node after the current last node and returns it.
func (l *Limen) AppendText(content string) *TextNode {
	n := &TextNode{content: content, prev: l.last}
	if l.last != nil {
		l.last.next = n
	} else {
		l.first = n
	}
	l.last = n
	l.size++
	l.marks = append(l.marks, Mark{Kind: MarkText, Node: n})
	return n
}

// TextNodes yields the sequence in document order. The returned sequence can
// be ranged over any number of times.
func (l *Limen) TextNodes() iter.Seq[*TextNode] {
	return func(yield func(*TextNode) bool) {
		for n := l.first; n != nil; n = n.next {
			if !yield(n) {
				return
			}
		}
	}
}

// Len returns the number of text nodes in the sequence.
func (l *Limen) Len() int { return l.size }

// Text concatenates the content of every node in the sequence.
func (l *Limen) Text() string {
	var b strings.Builder
	for n := range l.TextNodes() {
		b.WriteString(n.content)
	}
	return b.String()
}

// IsEmpty reports whether the space holds neither text nor markup.
func (l *Limen) IsEmpty() bool {
	return l.size == 0 && len(l.markups) == 0 && len(l.branchSets) == 0
}

// Markups returns the ranges rooted in this space, in open order.
func (l *Limen) Markups() []*Markup { return l.markups }

// BranchSets returns the branch-sets attached to this space, in join order.
func (l *Limen) BranchSets() []*BranchSet { return l.branchSets }

// Marks returns the structural log in the order events were applied.
func (l *Limen) Marks() []Mark { return l.marks }

// AddMarkup roots m in this space.
func (l *Limen) AddMarkup(m *Markup) {
	m.owner = l
	l.markups = append(l.markups, m)
}

// AddBranchSet attaches a completed branch-set at the current position.
func (l *Limen) AddBranchSet(bs *BranchSet) {
	l.branchSets = append(l.branchSets, bs)
	l.marks = append(l.marks, Mark{Kind: MarkBranchSet, BranchSet: bs})
}

// Record appends a markup event to the structural log.
func (l *Limen) Record(kind MarkKind, m *Markup) {
	l.marks = append(l.marks, Mark{Kind: kind, Markup: m})
}

// BranchSet holds sibling alternative readings for a single position in the
// enclosing sequence.
type BranchSet struct {
	fork     int
	branches []*Limen
}

// NewBranchSet starts a branch-set forking after fork text nodes of the
// enclosing sequence.
func NewBranchSet(fork int) *BranchSet {
	return &BranchSet{fork: fork}
}

// Fork returns the number of enclosing text nodes preceding the branch-set.
func (b *BranchSet) Fork() int { return b.fork }

// Branches returns every branch in input order.
func (b *BranchSet) Branches() []*Limen { return b.branches }

// AddBranch opens a new sibling branch and returns its space.
func (b *BranchSet) AddBranch() *Limen {
	l := NewLimen()
	b.branches = append(b.branches, l)
	return l
}
