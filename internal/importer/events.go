package importer

import (
	"fmt"
	"strings"
)

// Kind identifies a notation-neutral import event.
type Kind int

const (
	KindText Kind = iota
	KindOpenRange
	KindCloseRange
	KindSuspendRange
	KindResumeRange
	KindMilestone
	KindBeginAnnotation
	KindEndAnnotation
	KindBeginBranchSet
	KindNextBranch
	KindEndBranchSet
	KindDeclareIdentifier
	KindVirtualReference
	KindOptionalMarker
	KindComment
	KindNamespace
	KindSchema
)

var kindNames = [...]string{
	KindText:              "Text",
	KindOpenRange:         "OpenRange",
	KindCloseRange:        "CloseRange",
	KindSuspendRange:      "SuspendRange",
	KindResumeRange:       "ResumeRange",
	KindMilestone:         "Milestone",
	KindBeginAnnotation:   "BeginAnnotation",
	KindEndAnnotation:     "EndAnnotation",
	KindBeginBranchSet:    "BeginBranchSet",
	KindNextBranch:        "NextBranch",
	KindEndBranchSet:      "EndBranchSet",
	KindDeclareIdentifier: "DeclareIdentifier",
	KindVirtualReference:  "VirtualReference",
	KindOptionalMarker:    "OptionalMarker",
	KindComment:           "Comment",
	KindNamespace:         "Namespace",
	KindSchema:            "Schema",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Pos is a 1-based source location. The zero value means unknown.
type Pos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p Pos) String() string {
	if p.Line == 0 {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Event is one step of a token stream produced by a notation adapter.
//
// Tag, Suffix and Layers describe ranges and annotations. Value carries the
// text of Text and Comment events, the identifier of DeclareIdentifier and
// VirtualReference, the URI of Namespace (whose prefix is in Tag) and the
// location of Schema.
type Event struct {
	Kind   Kind
	Pos    Pos
	Tag    string
	Suffix string
	Layers []string
	Value  string
}

// At returns a copy of e positioned at p.
func (e Event) At(p Pos) Event {
	e.Pos = p
	return e
}

// WithSuffix returns a copy of e carrying a disambiguating suffix.
func (e Event) WithSuffix(suffix string) Event {
	e.Suffix = suffix
	return e
}

func (e Event) String() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Tag != "" {
		b.WriteString(" ")
		b.WriteString(e.Tag)
		if e.Suffix != "" {
			b.WriteString("~" + e.Suffix)
		}
	}
	if len(e.Layers) > 0 {
		b.WriteString("|" + strings.Join(e.Layers, ","))
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " %q", e.Value)
	}
	return b.String()
}

func Text(content string) Event { return Event{Kind: KindText, Value: content} }

func Open(tag string, layers ...string) Event {
	return Event{Kind: KindOpenRange, Tag: tag, Layers: layers}
}

func Close(tag string, layers ...string) Event {
	return Event{Kind: KindCloseRange, Tag: tag, Layers: layers}
}

func Suspend(tag string, layers ...string) Event {
	return Event{Kind: KindSuspendRange, Tag: tag, Layers: layers}
}

func Resume(tag string, layers ...string) Event {
	return Event{Kind: KindResumeRange, Tag: tag, Layers: layers}
}

func Milestone(tag string, layers ...string) Event {
	return Event{Kind: KindMilestone, Tag: tag, Layers: layers}
}

func BeginAnnotation(tag string) Event { return Event{Kind: KindBeginAnnotation, Tag: tag} }

func EndAnnotation() Event { return Event{Kind: KindEndAnnotation} }

func BeginBranchSet() Event { return Event{Kind: KindBeginBranchSet} }

func NextBranch() Event { return Event{Kind: KindNextBranch} }

func EndBranchSet() Event { return Event{Kind: KindEndBranchSet} }

func DeclareIdentifier(id string) Event { return Event{Kind: KindDeclareIdentifier, Value: id} }

// VirtualReference aliases the range identified by id under the given tag.
func VirtualReference(tag, id string) Event {
	return Event{Kind: KindVirtualReference, Tag: tag, Value: id}
}

func OptionalMarker() Event { return Event{Kind: KindOptionalMarker} }

func Comment(text string) Event { return Event{Kind: KindComment, Value: text} }

func Namespace(prefix, uri string) Event {
	return Event{Kind: KindNamespace, Tag: prefix, Value: uri}
}

func Schema(location string) Event { return Event{Kind: KindSchema, Value: location} }
