package importer

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for programmatic error checking via errors.Is().
var (
	// ErrStructural is wrapped by every error the builder returns.
	ErrStructural = errors.New("structural error")

	ErrUnclosedMarkup        = errors.New("unclosed markup")
	ErrUnmatchedClose        = errors.New("unmatched close")
	ErrAmbiguousClose        = errors.New("ambiguous close")
	ErrUnmatchedResume       = errors.New("unmatched resume")
	ErrUnmatchedSuspendClose = errors.New("unmatched suspend or close")
	ErrDuplicateID           = errors.New("duplicate identifier")
	ErrUnresolvedReference   = errors.New("unresolved reference")
	ErrUnexpectedEvent       = errors.New("unexpected event")
)

// UnclosedMarkupError reports ranges still open at end of input.
// Tags lists them innermost first.
type UnclosedMarkupError struct {
	Pos  Pos
	Tags []string
}

func (e *UnclosedMarkupError) Error() string {
	return fmt.Sprintf("%s: some markup was not closed: %s", e.Pos, strings.Join(e.Tags, ", "))
}

func (e *UnclosedMarkupError) Unwrap() []error { return []error{ErrStructural, ErrUnclosedMarkup} }

// UnmatchedCloseError reports a close tag with no corresponding open range
// on top of its layer. Crosses names the later range that sits above an
// open range of the same tag.
type UnmatchedCloseError struct {
	Pos     Pos
	Tag     string
	Layer   string
	Crosses string
}

func (e *UnmatchedCloseError) Error() string {
	if e.Crosses != "" {
		where := ""
		if e.Layer != "" {
			where = fmt.Sprintf(" in layer %q", e.Layer)
		}
		return fmt.Sprintf("%s: closing tag %s crosses range %s%s, which was opened after it and is still open", e.Pos, e.Tag, e.Crosses, where)
	}
	if e.Layer != "" {
		return fmt.Sprintf("%s: closing tag %s found in layer %q, which has no corresponding open range on top", e.Pos, e.Tag, e.Layer)
	}
	return fmt.Sprintf("%s: closing tag %s found, which has no corresponding earlier opening tag", e.Pos, e.Tag)
}

func (e *UnmatchedCloseError) Unwrap() []error { return []error{ErrStructural, ErrUnmatchedClose} }

// AmbiguousCloseError reports a close tag without layers while the tag is on
// top of more than one layer with distinct ranges.
type AmbiguousCloseError struct {
	Pos    Pos
	Tag    string
	Layers []string
}

func (e *AmbiguousCloseError) Error() string {
	return fmt.Sprintf("%s: closing tag %s is ambiguous, it is open in layers %s; name a layer",
		e.Pos, e.Tag, strings.Join(quoteAll(e.Layers), ", "))
}

func (e *AmbiguousCloseError) Unwrap() []error { return []error{ErrStructural, ErrAmbiguousClose} }

// UnmatchedResumeError reports a resume with no earlier suspend.
type UnmatchedResumeError struct {
	Pos Pos
	Tag string
}

func (e *UnmatchedResumeError) Error() string {
	return fmt.Sprintf("%s: resuming tag %s found, which has no corresponding earlier suspending tag", e.Pos, e.Tag)
}

func (e *UnmatchedResumeError) Unwrap() []error { return []error{ErrStructural, ErrUnmatchedResume} }

// UnmatchedSuspendCloseError reports a suspend of a range that is not open,
// or a close of a range that is currently suspended.
type UnmatchedSuspendCloseError struct {
	Pos       Pos
	Tag       string
	Suspended bool
}

func (e *UnmatchedSuspendCloseError) Error() string {
	if e.Suspended {
		return fmt.Sprintf("%s: closing tag %s found while the range is suspended; resume it first", e.Pos, e.Tag)
	}
	return fmt.Sprintf("%s: suspending tag %s found, which has no corresponding open range", e.Pos, e.Tag)
}

func (e *UnmatchedSuspendCloseError) Unwrap() []error {
	return []error{ErrStructural, ErrUnmatchedSuspendClose}
}

// DuplicateIDError reports an identifier declared twice in one document.
type DuplicateIDError struct {
	Pos Pos
	ID  string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s: id %q was already used", e.Pos, e.ID)
}

func (e *DuplicateIDError) Unwrap() []error { return []error{ErrStructural, ErrDuplicateID} }

// UnresolvedReferenceError reports a virtual element whose identifier was
// never declared.
type UnresolvedReferenceError struct {
	Pos Pos
	ID  string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("%s: idref %q not found: no element with that id found before this virtual element", e.Pos, e.ID)
}

func (e *UnresolvedReferenceError) Unwrap() []error {
	return []error{ErrStructural, ErrUnresolvedReference}
}

// UnexpectedEventError reports an event that is not valid in the builder's
// current state.
type UnexpectedEventError struct {
	Pos   Pos
	Event Kind
	State State
	Msg   string
}

func (e *UnexpectedEventError) Error() string {
	msg := fmt.Sprintf("%s: unexpected %s in state %s", e.Pos, e.Event, e.State)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	return msg
}

func (e *UnexpectedEventError) Unwrap() []error { return []error{ErrStructural, ErrUnexpectedEvent} }

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
