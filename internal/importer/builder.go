// Package importer turns a notation-neutral event stream into a validated
// document graph.
//
// A Builder is single-threaded and owns all of its mutable state (layer
// stacks, suspend tables, branch-set frames). Concurrent imports each use
// their own Builder.
package importer

import (
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/starford/limen/internal/document"
)

// State is the builder's position in the import state machine.
type State int

const (
	InDefault State = iota
	InOpenTag
	InCloseTag
	InAnnotation
	InBranchSet
)

func (s State) String() string {
	switch s {
	case InDefault:
		return "InDefault"
	case InOpenTag:
		return "InOpenTag"
	case InCloseTag:
		return "InCloseTag"
	case InAnnotation:
		return "InAnnotation"
	case InBranchSet:
		return "InBranchSet"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type frameKind int

const (
	rootFrame frameKind = iota
	annotationFrame
	branchFrame
)

// frame is one level of nesting: the root space, an annotation value or a
// branch of a branch-set.
type frame struct {
	kind       frameKind
	limen      *document.Limen
	reg        *registry
	annotation *document.Annotation
	branches   *document.BranchSet
	// attach is the range a following BeginAnnotation decorates.
	attach *document.Markup
	// restore is the state to return to when an annotation frame ends.
	restore State
}

func (f *frame) base() State {
	switch f.kind {
	case annotationFrame:
		return InAnnotation
	case branchFrame:
		return InBranchSet
	}
	return InDefault
}

// Builder consumes events one at a time and builds a Document.
type Builder struct {
	logger *slog.Logger
	doc    *document.Document
	frames []*frame
	ids    map[string]*document.Markup
	last   *document.Markup
	state  State
	pos    Pos
	err    error
	done   bool
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger used for non-fatal diagnostics.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder returns a Builder positioned on a fresh root space.
func NewBuilder(opts ...BuilderOption) *Builder {
	doc := document.New()
	b := &Builder{
		logger: slog.Default(),
		doc:    doc,
		frames: []*frame{{kind: rootFrame, limen: doc.Root(), reg: newRegistry()}},
		ids:    make(map[string]*document.Markup),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state.
func (b *Builder) State() State { return b.state }

func (b *Builder) current() *frame { return b.frames[len(b.frames)-1] }

// fail records the first structural error and discards the partial graph.
func (b *Builder) fail(err error) error {
	b.err = err
	b.doc = nil
	b.frames = nil
	return err
}

func (b *Builder) unexpected(e Event, format string, args ...any) error {
	return b.fail(&UnexpectedEventError{Pos: e.Pos, Event: e.Kind, State: b.state, Msg: fmt.Sprintf(format, args...)})
}

// Apply feeds one event to the builder. After the first error every call
// returns that error.
func (b *Builder) Apply(e Event) error {
	if b.err != nil {
		return b.err
	}
	if b.done {
		return &UnexpectedEventError{Pos: e.Pos, Event: e.Kind, State: b.state, Msg: "document already finished"}
	}
	b.pos = e.Pos
	f := b.current()

	switch e.Kind {
	case KindText:
		b.text(f, e.Value)
		f.attach = nil
		b.state = f.base()

	case KindOpenRange:
		m := document.NewMarkup(e.Tag, e.Suffix, e.Layers)
		m.SetDominating(b.dominating(m))
		f.reg.push(m)
		f.limen.AddMarkup(m)
		f.limen.Record(document.MarkOpen, m)
		b.last = m
		f.attach = m
		b.state = InOpenTag

	case KindCloseRange:
		m, err := f.reg.close(e.Pos, document.ExtendedTag(e.Tag, e.Suffix), e.Layers)
		if err != nil {
			return b.fail(err)
		}
		f.limen.Record(document.MarkClose, m)
		f.attach = m
		b.state = InCloseTag

	case KindSuspendRange:
		m, err := f.reg.suspend(e.Pos, document.ExtendedTag(e.Tag, e.Suffix), e.Layers)
		if err != nil {
			return b.fail(err)
		}
		f.limen.Record(document.MarkSuspend, m)
		f.attach = nil
		b.state = f.base()

	case KindResumeRange:
		m, err := f.reg.resume(e.Pos, document.ExtendedTag(e.Tag, e.Suffix), e.Layers)
		if err != nil {
			return b.fail(err)
		}
		f.limen.Record(document.MarkResume, m)
		f.attach = nil
		b.state = f.base()

	case KindMilestone:
		m := document.NewMarkup(e.Tag, e.Suffix, e.Layers)
		m.MarkMilestone()
		m.SetDominating(b.dominating(m))
		f.limen.AddMarkup(m)
		f.limen.Record(document.MarkMilestone, m)
		b.last = m
		f.attach = m
		b.state = InCloseTag

	case KindBeginAnnotation:
		a := document.NewAnnotation(e.Tag)
		switch {
		case (b.state == InOpenTag || b.state == InCloseTag) && f.attach != nil:
			f.attach.AddAnnotation(a)
		case f.kind == annotationFrame:
			f.annotation.AddAnnotation(a)
		default:
			return b.unexpected(e, "annotation %s has no range to decorate", e.Tag)
		}
		b.frames = append(b.frames, &frame{
			kind:       annotationFrame,
			limen:      a.Value(),
			reg:        newRegistry(),
			annotation: a,
			restore:    b.state,
		})
		b.state = InAnnotation

	case KindEndAnnotation:
		if f.kind != annotationFrame {
			return b.unexpected(e, "no annotation is open")
		}
		if err := b.closeFrame(f); err != nil {
			return b.fail(err)
		}
		b.frames = b.frames[:len(b.frames)-1]
		b.state = f.restore

	case KindBeginBranchSet:
		bs := document.NewBranchSet(f.limen.Len())
		b.frames = append(b.frames, &frame{
			kind:     branchFrame,
			limen:    bs.AddBranch(),
			reg:      newRegistry(),
			branches: bs,
		})
		f.attach = nil
		b.state = InBranchSet

	case KindNextBranch:
		if f.kind != branchFrame {
			return b.unexpected(e, "no branch-set is open")
		}
		if err := b.closeFrame(f); err != nil {
			return b.fail(err)
		}
		f.limen = f.branches.AddBranch()
		f.reg = newRegistry()
		f.attach = nil
		b.state = InBranchSet

	case KindEndBranchSet:
		if f.kind != branchFrame {
			return b.unexpected(e, "no branch-set is open")
		}
		if err := b.closeFrame(f); err != nil {
			return b.fail(err)
		}
		b.frames = b.frames[:len(b.frames)-1]
		parent := b.current()
		parent.limen.AddBranchSet(f.branches)
		parent.attach = nil
		b.state = parent.base()

	case KindDeclareIdentifier:
		if b.last == nil {
			return b.unexpected(e, "identifier %q has no range to name", e.Value)
		}
		if _, dup := b.ids[e.Value]; dup {
			return b.fail(&DuplicateIDError{Pos: e.Pos, ID: e.Value})
		}
		if b.last.ID != "" {
			return b.unexpected(e, "range %s already has id %q", b.last.ExtendedTag(), b.last.ID)
		}
		b.last.ID = e.Value
		b.ids[e.Value] = b.last

	case KindVirtualReference:
		target, ok := b.ids[e.Value]
		if !ok {
			return b.fail(&UnresolvedReferenceError{Pos: e.Pos, ID: e.Value})
		}
		tag := e.Tag
		if tag == "" {
			tag = target.Tag
		}
		m := document.NewMarkup(tag, e.Suffix, e.Layers)
		m.SetTarget(target)
		m.SetDominating(b.dominating(m))
		f.limen.AddMarkup(m)
		f.limen.Record(document.MarkVirtual, m)
		f.attach = m
		b.state = InCloseTag

	case KindOptionalMarker:
		if b.last == nil {
			return b.unexpected(e, "optional marker has no range")
		}
		b.last.Optional = true

	case KindComment:
		b.doc.Meta.Comments = append(b.doc.Meta.Comments, e.Value)

	case KindNamespace:
		if b.doc.Meta.Namespaces == nil {
			b.doc.Meta.Namespaces = make(map[string]string)
		}
		b.doc.Meta.Namespaces[e.Tag] = e.Value

	case KindSchema:
		b.doc.Meta.Schemas = append(b.doc.Meta.Schemas, e.Value)

	default:
		return b.unexpected(e, "unknown event kind")
	}
	return nil
}

// text appends content to the active space and adds the new node to every
// range visible from it: ranges open in the current frame and, through
// branch frames, ranges open around the enclosing branch-set.
func (b *Builder) text(f *frame, content string) {
	n := f.limen.AppendText(content)
	for i := len(b.frames) - 1; i >= 0; i-- {
		fr := b.frames[i]
		for _, m := range fr.reg.open {
			m.AddTextNode(n)
		}
		if fr.kind != branchFrame {
			return
		}
	}
}

// dominating returns the range on top of m's first layer, looking through
// branch frames when the branch itself has nothing open in that layer.
func (b *Builder) dominating(m *document.Markup) *document.Markup {
	layer := m.Layers()[0]
	for i := len(b.frames) - 1; i >= 0; i-- {
		fr := b.frames[i]
		if t := fr.reg.top(layer); t != nil {
			return t
		}
		if fr.kind != branchFrame {
			return nil
		}
	}
	return nil
}

// closeFrame checks that an annotation value or branch ends with nothing
// left open and reports ranges left suspended.
func (b *Builder) closeFrame(f *frame) error {
	if !f.reg.empty() {
		return &UnclosedMarkupError{Pos: b.pos, Tags: f.reg.unclosed()}
	}
	b.reportSuspended(f.reg)
	return nil
}

func (b *Builder) reportSuspended(r *registry) {
	for _, m := range r.pendingSuspended() {
		msg := fmt.Sprintf("range %s was suspended and never resumed", m.ExtendedTag())
		b.doc.AddDiagnostic(document.Diagnostic{Kind: document.DiagnosticSuspended, Tag: m.ExtendedTag(), Message: msg})
		b.logger.Warn("importer: range left suspended", slog.String("tag", m.ExtendedTag()))
	}
}

// Finish validates the end-of-input conditions and returns the Document.
// Calling it again returns the same result without re-validating.
func (b *Builder) Finish() (*document.Document, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.done {
		return b.doc, nil
	}
	f := b.current()
	switch f.kind {
	case annotationFrame:
		return nil, b.fail(&UnexpectedEventError{Pos: b.pos, State: b.state, Event: KindEndAnnotation,
			Msg: fmt.Sprintf("input ended inside annotation %s", f.annotation.Tag)})
	case branchFrame:
		return nil, b.fail(&UnexpectedEventError{Pos: b.pos, State: b.state, Event: KindEndBranchSet,
			Msg: "input ended inside a branch-set"})
	}
	if !f.reg.empty() {
		return nil, b.fail(&UnclosedMarkupError{Pos: b.pos, Tags: f.reg.unclosed()})
	}
	b.reportSuspended(f.reg)
	b.done = true
	return b.doc, nil
}

// Build runs a fresh Builder over events.
func Build(events iter.Seq[Event], opts ...BuilderOption) (*document.Document, error) {
	b := NewBuilder(opts...)
	for e := range events {
		if err := b.Apply(e); err != nil {
			return nil, err
		}
	}
	return b.Finish()
}

// BuildAll runs a fresh Builder over a slice of events.
func BuildAll(events []Event, opts ...BuilderOption) (*document.Document, error) {
	return Build(slices.Values(events), opts...)
}
