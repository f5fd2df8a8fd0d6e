// Package tagml reads and writes TAGML, a notation with explicit layers,
// discontinuity and text variation.
package tagml

import (
	"io"
	"strings"

	"github.com/starford/limen/internal/importer"
	"github.com/starford/limen/internal/notation/scan"
)

// Attribute names with structural meaning.
const (
	attrID  = ":id"
	attrRef = ":ref"
)

// Tokenize reads TAGML from r and returns the import events.
func Tokenize(name string, r io.Reader) ([]importer.Event, error) {
	toks, err := scan.Tokens(documentLexer, name, r)
	if err != nil {
		return nil, err
	}
	t := &tokenizer{name: name}
	for _, tok := range toks {
		if err := t.token(tok); err != nil {
			return nil, err
		}
	}
	return t.em.Events(), nil
}

type tokenizer struct {
	name   string
	em     scan.Emitter
	branch int
}

func (t *tokenizer) token(tok scan.Token) error {
	pos := scan.PosOf(tok.Token)
	switch tok.Kind {
	case "Text":
		t.em.Emit(importer.Text(tok.Value).At(pos))
	case "Escape":
		t.em.Emit(importer.Text(tok.Value[1:]).At(pos))
	case "Comment":
		body := strings.TrimSuffix(strings.TrimPrefix(tok.Value, "[!"), "!]")
		t.em.Emit(importer.Comment(strings.TrimSpace(body)).At(pos))
	case "Namespace":
		fields := strings.Fields(strings.TrimSuffix(strings.TrimPrefix(tok.Value, "[!ns"), "]"))
		if len(fields) != 2 {
			return scan.Errorf(t.name, tok.Token, "namespace declaration needs a prefix and a URI: %s", tok.Value)
		}
		t.em.Emit(importer.Namespace(fields[0], fields[1]).At(pos))
	case "Schema":
		loc := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(tok.Value, "[!schema"), "]"))
		t.em.Emit(importer.Schema(loc).At(pos))
	case "StartTag":
		return t.startTag(tok)
	case "EndTag":
		return t.endTag(tok)
	case "BranchOpen":
		t.branch++
		t.em.Emit(importer.BeginBranchSet().At(pos))
	case "Divider":
		if t.branch == 0 {
			t.em.Emit(importer.Text(tok.Value).At(pos))
			return nil
		}
		t.em.Emit(importer.NextBranch().At(pos))
	case "BranchClose":
		if t.branch == 0 {
			t.em.Emit(importer.Text(tok.Value).At(pos))
			return nil
		}
		t.branch--
		t.em.Emit(importer.EndBranchSet().At(pos))
	default:
		return scan.Errorf(t.name, tok.Token, "unexpected token %q", tok.Value)
	}
	return nil
}

func (t *tokenizer) startTag(tok scan.Token) error {
	m := startTagRe.FindStringSubmatch(tok.Value)
	if m == nil {
		return scan.Errorf(t.name, tok.Token, "malformed tag %s", tok.Value)
	}
	prefix, tag, suffix, layers, rawAttrs, end := m[1], m[2], m[3], scan.SplitLayers(m[4]), m[5], m[6]
	if rawAttrs != "" && !startsWithSpace(rawAttrs) {
		return scan.Errorf(t.name, tok.Token, "attributes of %s must be separated by white space", tag)
	}
	attrs, err := parseAttributes(t.name, tok, rawAttrs)
	if err != nil {
		return err
	}
	pos := scan.PosOf(tok.Token)

	switch {
	case prefix == "+":
		if end != ">" || len(attrs) > 0 {
			return scan.Errorf(t.name, tok.Token, "resume tag %s takes no attributes", tag)
		}
		t.em.Emit(importer.Resume(tag, layers...).WithSuffix(suffix).At(pos))
		return nil
	case end == "]":
		if prefix != "" {
			return scan.Errorf(t.name, tok.Token, "milestone %s cannot be %q", tag, prefix)
		}
		if ref, ok := attrs.take(attrRef); ok {
			t.em.Emit(importer.VirtualReference(tag, ref.text).WithSuffix(suffix).At(pos))
		} else {
			t.em.Emit(importer.Milestone(tag, layers...).WithSuffix(suffix).At(pos))
		}
	default:
		t.em.Emit(importer.Open(tag, layers...).WithSuffix(suffix).At(pos))
		if prefix == "?" {
			t.em.Emit(importer.OptionalMarker().At(pos))
		}
	}
	if id, ok := attrs.take(attrID); ok {
		t.em.Emit(importer.DeclareIdentifier(id.text).At(pos))
	}
	for _, a := range attrs {
		a.emit(&t.em, pos)
	}
	return nil
}

func (t *tokenizer) endTag(tok scan.Token) error {
	m := endTagRe.FindStringSubmatch(tok.Value)
	if m == nil {
		return scan.Errorf(t.name, tok.Token, "malformed close tag %s", tok.Value)
	}
	prefix, tag, suffix, layers := m[1], m[2], m[3], scan.SplitLayers(m[4])
	pos := scan.PosOf(tok.Token)
	if prefix == "-" {
		t.em.Emit(importer.Suspend(tag, layers...).WithSuffix(suffix).At(pos))
		return nil
	}
	t.em.Emit(importer.Close(tag, layers...).WithSuffix(suffix).At(pos))
	return nil
}

func startsWithSpace(s string) bool {
	switch s[0] {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
