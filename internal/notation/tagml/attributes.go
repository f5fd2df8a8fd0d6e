package tagml

import (
	"strings"

	"github.com/starford/limen/internal/importer"
	"github.com/starford/limen/internal/notation/scan"
)

// listItem names the annotations a list value expands to.
const listItem = "item"

type valueKind int

const (
	scalarValue valueKind = iota
	objectValue
	listValue
)

type value struct {
	kind   valueKind
	text   string
	fields attributes
	items  []value
}

type attribute struct {
	name  string
	value value
}

type attributes []attribute

// take removes and returns the value of the named attribute.
func (as *attributes) take(name string) (value, bool) {
	for i, a := range *as {
		if a.name == name {
			*as = append((*as)[:i], (*as)[i+1:]...)
			return a.value, true
		}
	}
	return value{}, false
}

func (a attribute) emit(em *scan.Emitter, pos importer.Pos) {
	em.Emit(importer.BeginAnnotation(a.name).At(pos))
	a.value.emit(em, pos)
	em.Emit(importer.EndAnnotation().At(pos))
}

func (v value) emit(em *scan.Emitter, pos importer.Pos) {
	switch v.kind {
	case scalarValue:
		em.Emit(importer.Text(v.text).At(pos))
	case objectValue:
		for _, f := range v.fields {
			f.emit(em, pos)
		}
	case listValue:
		for _, item := range v.items {
			attribute{name: listItem, value: item}.emit(em, pos)
		}
	}
}

// attrParser is a recursive descent parser over attribute tokens:
//
//	attributes = { name "=" value }
//	value      = string | number | bool | list | object
//	list       = "[" [ value { "," value } ] "]"
//	object     = "{" { name "=" value } "}"
type attrParser struct {
	name string
	tag  scan.Token
	toks []scan.Token
	i    int
}

func parseAttributes(name string, tag scan.Token, raw string) (attributes, error) {
	if scan.IsBlank(raw) {
		return nil, nil
	}
	all, err := scan.Tokens(attributeLexer, name, strings.NewReader(raw))
	if err != nil {
		return nil, scan.Errorf(name, tag.Token, "attributes of %s: %v", tag.Value, err)
	}
	p := &attrParser{name: name, tag: tag}
	for _, tok := range all {
		if tok.Kind != "Whitespace" {
			p.toks = append(p.toks, tok)
		}
	}
	attrs, err := p.fields("")
	if err != nil {
		return nil, err
	}
	if p.i < len(p.toks) {
		return nil, p.errorf("unexpected %q", p.toks[p.i].Value)
	}
	return attrs, nil
}

func (p *attrParser) errorf(format string, args ...any) error {
	return scan.Errorf(p.name, p.tag.Token, "attributes of %s: "+format, append([]any{p.tag.Value}, args...)...)
}

func (p *attrParser) peek() (scan.Token, bool) {
	if p.i >= len(p.toks) {
		return scan.Token{}, false
	}
	return p.toks[p.i], true
}

func (p *attrParser) punct(s string) bool {
	tok, ok := p.peek()
	if ok && tok.Kind == "Punct" && tok.Value == s {
		p.i++
		return true
	}
	return false
}

// fields reads name=value pairs until end, or until the closing brace
// when end is "}".
func (p *attrParser) fields(end string) (attributes, error) {
	var out attributes
	for {
		tok, ok := p.peek()
		if !ok {
			if end != "" {
				return nil, p.errorf("missing %q", end)
			}
			return out, nil
		}
		if end != "" && p.punct(end) {
			return out, nil
		}
		if tok.Kind != "Name" {
			if end == "" {
				return out, nil
			}
			return nil, p.errorf("expected attribute name, got %q", tok.Value)
		}
		p.i++
		if !p.punct("=") {
			return nil, p.errorf("attribute %s has no value", tok.Value)
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, attribute{name: tok.Value, value: v})
	}
}

func (p *attrParser) value() (value, error) {
	tok, ok := p.peek()
	if !ok {
		return value{}, p.errorf("missing value")
	}
	switch tok.Kind {
	case "String":
		p.i++
		return value{kind: scalarValue, text: unquote(tok.Value)}, nil
	case "Number", "Bool":
		p.i++
		return value{kind: scalarValue, text: tok.Value}, nil
	case "Punct":
		switch {
		case p.punct("{"):
			fields, err := p.fields("}")
			if err != nil {
				return value{}, err
			}
			return value{kind: objectValue, fields: fields}, nil
		case p.punct("["):
			return p.list()
		}
	}
	return value{}, p.errorf("unexpected %q in value", tok.Value)
}

func (p *attrParser) list() (value, error) {
	v := value{kind: listValue}
	if p.punct("]") {
		return v, nil
	}
	for {
		item, err := p.value()
		if err != nil {
			return value{}, err
		}
		v.items = append(v.items, item)
		if p.punct("]") {
			return v, nil
		}
		if !p.punct(",") {
			return value{}, p.errorf("expected \",\" or \"]\" in list")
		}
	}
}

// unquote strips the quotes of a string literal and resolves backslash
// escapes to the escaped character.
func unquote(s string) string {
	s = s[1 : len(s)-1]
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// quote is the inverse of unquote for double-quoted literals.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
